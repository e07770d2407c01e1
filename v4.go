package prefixdb

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	// MaxBits is the length of an IPv4 address in bits and the maximum
	// depth of the trie.
	MaxBits = 32
)

// Key is an IPv4 prefix: the address as a 32 bit integer (most significant
// bit first) and the number of leading bits that are significant.
type Key struct {
	Addr uint32
	Bits uint8
}

// Returns the mask with the leading bits set for the given prefix length
// Arguments:
//
//	bits - prefix length, 0 to 32
//
// Returns:
//
//	uint32 - network mask
func maskOf(bits uint8) uint32 {
	if bits == 0 {
		return 0
	}
	if bits >= MaxBits {
		return 0xFFFFFFFF
	}
	return ^uint32(0) << (MaxBits - bits)
}

// NewKey returns the key for addr/bits with the host bits cleared.
func NewKey(addr uint32, bits uint8) (Key, error) {
	if bits > MaxBits {
		return Key{}, fmt.Errorf("prefix length %d out of range: %w", bits, ErrInvalidKey)
	}
	return Key{Addr: addr & maskOf(bits), Bits: bits}, nil
}

// HostKey returns the /32 key of a single address.
func HostKey(addr uint32) Key {
	return Key{Addr: addr, Bits: MaxBits}
}

func (k Key) valid() bool {
	return k.Bits <= MaxBits && k.Addr&^maskOf(k.Bits) == 0
}

// Contains reports whether addr lies within the prefix.
func (k Key) Contains(addr uint32) bool {
	return addr&maskOf(k.Bits) == k.Addr
}

// bitAt returns the bit of the key's address at the given depth, depth 0
// being the most significant bit.
func (k Key) bitAt(depth int) uint32 {
	return (k.Addr >> (MaxBits - 1 - depth)) & 1
}

// child returns the key one level below k along the given bit.
func (k Key) child(bit uint32) Key {
	return Key{Addr: k.Addr | bit<<(MaxBits-1-int(k.Bits)), Bits: k.Bits + 1}
}

func (k Key) Prefix() netip.Prefix {
	return netip.PrefixFrom(addrFromUint32(k.Addr), int(k.Bits))
}

func (k Key) String() string {
	return k.Prefix().String()
}

func addrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func uint32FromAddr(addr netip.Addr) uint32 {
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// validPrefixLength accepts one or two decimal digits without sign or
// leading zero.
func validPrefixLength(text string) bool {
	if len(text) == 0 || len(text) > 2 || (len(text) == 2 && text[0] == '0') {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

// Returns the key for the given string representation of an IPv4 prefix
// Arguments:
//
//	text - "A.B.C.D/N" with every octet in 0-255 and N in 0-32. A plain
//	       "A.B.C.D" is taken as a /32 host prefix.
//
// Returns:
//
//	Key   - prefix with the host bits cleared
//	error - wraps ErrInvalidFormat when the text is not an IPv4 prefix
func ParsePrefix(text string) (Key, error) {
	if !strings.Contains(text, "/") {
		return ParseAddress(text)
	}

	if !validPrefixLength(text[strings.IndexByte(text, '/')+1:]) {
		return Key{}, fmt.Errorf("invalid v4 prefix %q: %w", text, ErrInvalidFormat)
	}

	pfx, err := netip.ParsePrefix(text)
	if err != nil {
		return Key{}, fmt.Errorf("invalid v4 prefix %q: %w", text, ErrInvalidFormat)
	}

	// Rejects IPv6 as well as IPv4-mapped IPv6 notation.
	if !pfx.Addr().Is4() {
		return Key{}, fmt.Errorf("invalid v4 prefix %q: %w", text, ErrInvalidFormat)
	}

	return NewKey(uint32FromAddr(pfx.Addr()), uint8(pfx.Bits()))
}

// Returns the /32 key for the given string representation of an IPv4 address
// Arguments:
//
//	text - "A.B.C.D" with every octet in 0-255
//
// Returns:
//
//	Key   - host key
//	error - wraps ErrInvalidFormat when the text is not an IPv4 address
func ParseAddress(text string) (Key, error) {
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return Key{}, fmt.Errorf("invalid v4 address %q: %w", text, ErrInvalidFormat)
	}

	return HostKey(uint32FromAddr(addr)), nil
}
