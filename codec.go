package prefixdb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/sha3"
)

// Image layout, all integers big-endian:
//
//	magic        4 bytes  "PFDB"
//	version      2 bytes
//	value size   2 bytes  payload bytes per stored prefix
//	prefix count 4 bytes
//	node count   4 bytes
//	records      one per node in pre-order (node, left subtree, right
//	             subtree): a flag byte followed by the payload if the
//	             node holds a prefix
//	checksum    32 bytes  SHA3-256 of everything before it
const (
	imageMagic   uint32 = 0x50464442
	imageVersion uint16 = 2

	headerSize   = 16
	checksumSize = 32

	flagTerminal byte = 1 << 0
	flagLeft     byte = 1 << 1
	flagRight    byte = 1 << 2
	flagMask          = flagTerminal | flagLeft | flagRight

	flushThreshold = 64 * 1024
)

// ImageStats are the counts recorded in the header of an image.
type ImageStats struct {
	Prefixes uint64
	Nodes    uint64
}

type imageHeader struct {
	valueSize uint16
	prefixes  uint32
	nodes     uint32
}

func (h imageHeader) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:], imageMagic)
	binary.BigEndian.PutUint16(buf[4:], imageVersion)
	binary.BigEndian.PutUint16(buf[6:], h.valueSize)
	binary.BigEndian.PutUint32(buf[8:], h.prefixes)
	binary.BigEndian.PutUint32(buf[12:], h.nodes)
	return buf
}

func unmarshalHeader(buf []byte) (imageHeader, error) {
	if magic := binary.BigEndian.Uint32(buf[0:]); magic != imageMagic {
		return imageHeader{}, fmt.Errorf("bad magic %#08x: %w", magic, ErrCorruptData)
	}
	if version := binary.BigEndian.Uint16(buf[4:]); version != imageVersion {
		return imageHeader{}, fmt.Errorf("unsupported format version %d: %w", version, ErrCorruptData)
	}
	h := imageHeader{
		valueSize: binary.BigEndian.Uint16(buf[6:]),
		prefixes:  binary.BigEndian.Uint32(buf[8:]),
		nodes:     binary.BigEndian.Uint32(buf[12:]),
	}
	// Every node but the root lies on the path to some stored prefix.
	if h.nodes == 0 || uint64(h.prefixes) > uint64(h.nodes) || uint64(h.nodes) > 1+MaxBits*uint64(h.prefixes) {
		return imageHeader{}, fmt.Errorf("implausible counts %d prefixes / %d nodes: %w", h.prefixes, h.nodes, ErrCorruptData)
	}
	return h, nil
}

// ImageSize returns the exact length of an image holding the given numbers
// of nodes and prefixes with payloads of valueSize bytes.
func ImageSize(nodes, prefixes uint64, valueSize int) int64 {
	return int64(headerSize + checksumSize + nodes + prefixes*uint64(valueSize))
}

// imageWriter forwards everything written to both the output and the
// checksum, in large chunks.
type imageWriter struct {
	w       io.Writer
	h       hash.Hash
	pending []byte
}

func (iw *imageWriter) write(b ...byte) error {
	iw.pending = append(iw.pending, b...)
	if len(iw.pending) >= flushThreshold {
		return iw.flush()
	}
	return nil
}

func (iw *imageWriter) flush() error {
	iw.h.Write(iw.pending)
	_, err := iw.w.Write(iw.pending)
	iw.pending = iw.pending[:0]
	return err
}

// Serializes the tree into the binary image format
// Arguments:
//
//	w - destination of the image
//	t - tree to serialize; read-locked for the duration of the call
//	s - serializer of the tree's payloads
//
// Returns:
//
//	error - error, if any
func Encode[V any](w io.Writer, t *Tree[V], s Serializer[V]) error {
	_, err := encode(context.Background(), w, t, s)
	return err
}

// encode writes the image of t and returns the counts it recorded, taken
// under the same read lock as the records.
func encode[V any](ctx context.Context, w io.Writer, t *Tree[V], s Serializer[V]) (ImageStats, error) {
	if nil == t {
		return ImageStats{}, ErrInvalidPrefixTree
	}

	t.rlock(ctx)
	defer t.runlock(ctx)

	if t.numNodes > 0xFFFFFFFF || s.Size() > 0xFFFF {
		return ImageStats{}, fmt.Errorf("tree of %d nodes with %d byte values exceeds the image format", t.numNodes, s.Size())
	}

	iw := &imageWriter{
		w:       w,
		h:       sha3.New256(),
		pending: make([]byte, 0, flushThreshold+1+s.Size()),
	}

	header := imageHeader{
		valueSize: uint16(s.Size()),
		prefixes:  uint32(t.numPrefixes),
		nodes:     uint32(t.numNodes),
	}
	if err := iw.write(header.marshal()...); err != nil {
		return ImageStats{}, err
	}

	var nodes, prefixes uint64
	value := make([]byte, s.Size())
	stack := newNodeStack[V](MaxBits + 1)
	stack.Push(t.root, Key{})

	for !stack.IsEmpty() {
		node, _ := stack.Pop()
		nodes++

		var flags byte
		if node.isTerminal() {
			flags |= flagTerminal
		}
		if nil != node.left {
			flags |= flagLeft
		}
		if nil != node.right {
			flags |= flagRight
		}

		if err := iw.write(flags); err != nil {
			return ImageStats{}, err
		}
		if node.isTerminal() {
			prefixes++
			s.CopyBytes(node.value, value)
			if err := iw.write(value...); err != nil {
				return ImageStats{}, err
			}
		}

		if nil != node.right {
			stack.Push(node.right, Key{})
		}
		if nil != node.left {
			stack.Push(node.left, Key{})
		}
	}

	if nodes != t.numNodes || prefixes != t.numPrefixes {
		return ImageStats{}, fmt.Errorf("tree counters out of sync (%d/%d nodes, %d/%d prefixes): %w",
			nodes, t.numNodes, prefixes, t.numPrefixes, ErrInvalidPrefixTree)
	}

	if err := iw.flush(); err != nil {
		return ImageStats{}, err
	}
	if _, err := w.Write(iw.h.Sum(nil)); err != nil {
		return ImageStats{}, err
	}
	return ImageStats{Prefixes: prefixes, Nodes: nodes}, nil
}

// imageReader reads an image while feeding all consumed bytes but the
// checksum into the hash.
type imageReader struct {
	r       *bufio.Reader
	h       hash.Hash
	pending []byte
}

func (ir *imageReader) readByte() (byte, error) {
	b, err := ir.r.ReadByte()
	if err != nil {
		return 0, readError(err)
	}
	ir.note(b)
	return b, nil
}

func (ir *imageReader) readFull(buf []byte) error {
	if _, err := io.ReadFull(ir.r, buf); err != nil {
		return readError(err)
	}
	ir.note(buf...)
	return nil
}

func (ir *imageReader) note(b ...byte) {
	ir.pending = append(ir.pending, b...)
	if len(ir.pending) >= flushThreshold {
		ir.h.Write(ir.pending)
		ir.pending = ir.pending[:0]
	}
}

func (ir *imageReader) sum() []byte {
	ir.h.Write(ir.pending)
	ir.pending = ir.pending[:0]
	return ir.h.Sum(nil)
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated image: %w", ErrCorruptData)
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// Reconstructs a tree from the binary image format
// Arguments:
//
//	r - source of the image; it is read up to its end
//	s - serializer of the tree's payloads
//
// Returns:
//
//	*Tree[V] - the reconstructed tree, without lock handlers
//	error    - wraps ErrCorruptData if the image is malformed, ErrIO if
//	           reading failed
func Decode[V any](r io.Reader, s Serializer[V]) (*Tree[V], error) {
	return decode(r, -1, s)
}

// DecodeSized is like Decode, but additionally rejects the image right
// after the header if the header's counts do not account for exactly size
// bytes.
func DecodeSized[V any](r io.Reader, size int64, s Serializer[V]) (*Tree[V], error) {
	if size < headerSize+checksumSize {
		return nil, fmt.Errorf("image of %d bytes too short: %w", size, ErrCorruptData)
	}
	return decode(r, size, s)
}

func decode[V any](r io.Reader, size int64, s Serializer[V]) (*Tree[V], error) {
	ir := &imageReader{
		r:       bufio.NewReaderSize(r, flushThreshold),
		h:       sha3.New256(),
		pending: make([]byte, 0, flushThreshold+1+s.Size()),
	}

	buf := make([]byte, headerSize)
	if err := ir.readFull(buf); err != nil {
		return nil, err
	}
	header, err := unmarshalHeader(buf)
	if err != nil {
		return nil, err
	}
	if int(header.valueSize) != s.Size() {
		return nil, fmt.Errorf("image holds %d byte values, expected %d: %w", header.valueSize, s.Size(), ErrCorruptData)
	}
	if size >= 0 && size != ImageSize(uint64(header.nodes), uint64(header.prefixes), s.Size()) {
		return nil, fmt.Errorf("image size %d does not match its header: %w", size, ErrCorruptData)
	}

	type frame struct {
		slot  **treeNode[V]
		depth int
	}

	t := &Tree[V]{}
	var nodes, prefixes uint64
	value := make([]byte, s.Size())
	stack := make([]frame, 0, MaxBits+1)
	stack = append(stack, frame{slot: &t.root})

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if nodes == uint64(header.nodes) {
			return nil, fmt.Errorf("more than %d node records: %w", header.nodes, ErrCorruptData)
		}

		flags, err := ir.readByte()
		if err != nil {
			return nil, err
		}
		nodes++

		if flags&^flagMask != 0 {
			return nil, fmt.Errorf("record %d: unknown flags %#02x: %w", nodes, flags, ErrCorruptData)
		}
		if f.depth > 0 && flags == 0 {
			return nil, fmt.Errorf("record %d: empty node: %w", nodes, ErrCorruptData)
		}
		if f.depth == MaxBits && flags&(flagLeft|flagRight) != 0 {
			return nil, fmt.Errorf("record %d: children below depth %d: %w", nodes, MaxBits, ErrCorruptData)
		}

		node := newNode[V]()
		if flags&flagTerminal != 0 {
			if err := ir.readFull(value); err != nil {
				return nil, err
			}
			node.saveAndMarkTerminal(s.FromBytes(value))
			prefixes++
		}
		*f.slot = node

		if flags&flagRight != 0 {
			stack = append(stack, frame{slot: &node.right, depth: f.depth + 1})
		}
		if flags&flagLeft != 0 {
			stack = append(stack, frame{slot: &node.left, depth: f.depth + 1})
		}
	}

	if nodes != uint64(header.nodes) || prefixes != uint64(header.prefixes) {
		return nil, fmt.Errorf("image holds %d nodes / %d prefixes, header declares %d / %d: %w",
			nodes, prefixes, header.nodes, header.prefixes, ErrCorruptData)
	}

	want := ir.sum()
	got := make([]byte, checksumSize)
	if _, err := io.ReadFull(ir.r, got); err != nil {
		return nil, readError(err)
	}
	if !bytes.Equal(want, got) {
		return nil, fmt.Errorf("checksum mismatch: %w", ErrCorruptData)
	}

	if _, err := ir.r.ReadByte(); err == nil {
		return nil, fmt.Errorf("trailing data after checksum: %w", ErrCorruptData)
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	t.numNodes = nodes
	t.numPrefixes = prefixes
	return t, nil
}
