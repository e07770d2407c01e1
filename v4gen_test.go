package prefixdb

import (
	"fmt"
	"math/rand"
	"testing"
)

const (
	ipv4ClassAMaxOctet          = 126
	ipv4ClassAPrivateFirstOctet = 10
	ipv4LoopbackFirstOctet      = 127
)

type ipv4AddrClass int

const (
	ipv4AddrClassMin ipv4AddrClass = iota
	ipv4AddrClassAny
	ipv4AddrClassA
	ipv4AddrClassAPrivate
	ipv4AddrClassLoopback
	ipv4AddrClassMax
)

// ipv4Gen produces random prefixes of one address class. A fixed seed
// makes failures reproducible.
type ipv4Gen struct {
	rand  *rand.Rand
	class ipv4AddrClass
}

func newIpv4Generator(seed int64, class ipv4AddrClass) (*ipv4Gen, error) {
	if class <= ipv4AddrClassMin || class >= ipv4AddrClassMax {
		return nil, fmt.Errorf("invalid address class %v", class)
	}
	return &ipv4Gen{rand: rand.New(rand.NewSource(seed)), class: class}, nil
}

func (g *ipv4Gen) firstOctet() uint32 {
	switch g.class {
	case ipv4AddrClassA:
		for {
			octet := uint32(g.rand.Intn(ipv4ClassAMaxOctet)) + 1
			if octet != ipv4ClassAPrivateFirstOctet {
				return octet
			}
		}
	case ipv4AddrClassAPrivate:
		return ipv4ClassAPrivateFirstOctet
	case ipv4AddrClassLoopback:
		return ipv4LoopbackFirstOctet
	}
	return uint32(g.rand.Intn(255)) + 1
}

// addr returns a random address of the generator's class.
func (g *ipv4Gen) addr() uint32 {
	return g.firstOctet()<<24 | uint32(g.rand.Intn(1<<24))
}

// key returns a random prefix of the generator's class with a length in
// [minBits, maxBits]. Lengths below 8 would leave the class.
func (g *ipv4Gen) key(minBits, maxBits int) Key {
	bits := uint8(minBits + g.rand.Intn(maxBits-minBits+1))
	return Key{Addr: g.addr() & maskOf(bits), Bits: bits}
}

func (g *ipv4Gen) keys(count, minBits, maxBits int) []Key {
	keys := make([]Key, count)
	for i := range keys {
		keys[i] = g.key(minBits, maxBits)
	}
	return keys
}

func (g *ipv4Gen) validate(addr uint32) error {
	first := addr >> 24
	switch g.class {
	case ipv4AddrClassAny:
		if first == 0 {
			return fmt.Errorf("address %v starting with octet 0", addrFromUint32(addr))
		}
	case ipv4AddrClassA:
		if first == 0 || first > ipv4ClassAMaxOctet || first == ipv4ClassAPrivateFirstOctet {
			return fmt.Errorf("not a public class A address %v", addrFromUint32(addr))
		}
	case ipv4AddrClassAPrivate:
		if first != ipv4ClassAPrivateFirstOctet {
			return fmt.Errorf("not a class A private address %v", addrFromUint32(addr))
		}
	case ipv4AddrClassLoopback:
		if first != ipv4LoopbackFirstOctet {
			return fmt.Errorf("not a loopback address %v", addrFromUint32(addr))
		}
	}
	return nil
}

func TestIpv4Gen(t *testing.T) {
	if _, err := newIpv4Generator(1, ipv4AddrClassMin); err == nil {
		t.Fatalf("newIpv4Generator: accepted invalid address class - lower bound")
	}
	if _, err := newIpv4Generator(1, ipv4AddrClassMax); err == nil {
		t.Fatalf("newIpv4Generator: accepted invalid address class - upper bound")
	}

	for class := ipv4AddrClassAny; class < ipv4AddrClassMax; class++ {
		gen, err := newIpv4Generator(int64(class), class)
		if err != nil {
			t.Fatalf("newIpv4Generator: failed for class %v: %v", class, err)
		}

		for _, key := range gen.keys(256, 8, 32) {
			if !key.valid() {
				t.Fatalf("key: host bits set in %v", key)
			}
			if err := gen.validate(key.Addr); err != nil {
				t.Fatalf("key: %v for class %v", err, class)
			}
		}
	}
}
