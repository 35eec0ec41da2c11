// Package persistence serializes a built index set (corpus vectors,
// provenance, KD-tree arena and HNSW graph) so it can be reloaded without
// rebuilding.
package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hupe1980/shindex/index/hnsw"
	"github.com/hupe1980/shindex/index/kdtree"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Options contains configuration options for writing a snapshot.
type Options struct {
	// Compression selects the payload codec.
	Compression CompressionType
}

// DefaultOptions contains the default configuration options for writing a
// snapshot.
var DefaultOptions = Options{
	Compression: CompressionZSTD,
}

// Snapshot is the serializable state of a built index set.
type Snapshot struct {
	Dim     int
	Vectors []float32 // flat row-major corpus storage
	Sources []string  // recording id per item

	KDLeafSize int
	KDNodes    []kdtree.Node
	KDItems    []uint32

	Graph *hnsw.Graph
}

// Write serializes the snapshot to w.
func Write(w io.Writer, s *Snapshot, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	payload, err := marshalPayload(s)
	if err != nil {
		return err
	}

	crc := crc32.Checksum(payload, castagnoli)

	block, ctype, err := compressBlock(payload, opts.Compression)
	if err != nil {
		return err
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:], MagicNumber)
	binary.LittleEndian.PutUint16(header[4:], Version)
	header[6] = byte(ctype)
	header[7] = 0
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("persistence: write header: %w", err)
	}

	trailer := make([]byte, 20)
	binary.LittleEndian.PutUint32(trailer[0:], crc)
	binary.LittleEndian.PutUint64(trailer[4:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(trailer[12:], uint64(len(block)))
	if _, err := w.Write(trailer); err != nil {
		return fmt.Errorf("persistence: write block sizes: %w", err)
	}

	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("persistence: write block: %w", err)
	}

	return nil
}

// Read deserializes a snapshot from r and verifies its checksum.
func Read(r io.Reader) (*Snapshot, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("persistence: read header: %w", err)
	}
	if binary.LittleEndian.Uint32(header[0:]) != MagicNumber {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(header[4:]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	ctype := CompressionType(header[6])

	trailer := make([]byte, 20)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, fmt.Errorf("persistence: read block sizes: %w", err)
	}
	crc := binary.LittleEndian.Uint32(trailer[0:])
	payloadLen := binary.LittleEndian.Uint64(trailer[4:])
	blockLen := binary.LittleEndian.Uint64(trailer[12:])

	block := make([]byte, blockLen)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("persistence: read block: %w", err)
	}

	payload, err := decompressBlock(block, ctype, int(payloadLen))
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) != payloadLen {
		return nil, fmt.Errorf("persistence: payload length %d, trailer says %d", len(payload), payloadLen)
	}
	if crc32.Checksum(payload, castagnoli) != crc {
		return nil, ErrChecksum
	}

	return unmarshalPayload(payload)
}

func marshalPayload(s *Snapshot) ([]byte, error) {
	if s.Dim < 1 {
		return nil, fmt.Errorf("persistence: invalid dimension %d", s.Dim)
	}
	if s.Graph == nil {
		return nil, fmt.Errorf("persistence: missing graph")
	}
	n := len(s.Vectors) / s.Dim
	if len(s.Vectors)%s.Dim != 0 || len(s.Sources) != n || len(s.KDItems) != n {
		return nil, fmt.Errorf("persistence: inconsistent snapshot sections")
	}

	w := &payloadWriter{}

	// Corpus
	w.u32(uint32(s.Dim))
	w.u32(uint32(n))
	w.f32s(s.Vectors)

	// Provenance
	for _, src := range s.Sources {
		w.str(src)
	}

	// KD-tree
	w.u32(uint32(s.KDLeafSize))
	w.u32(uint32(len(s.KDNodes)))
	for _, node := range s.KDNodes {
		w.i32(node.Axis)
		w.f32(node.Split)
		w.i32(node.Left)
		w.i32(node.Right)
		w.i32(node.Start)
		w.i32(node.End)
	}
	w.u32s(s.KDItems)

	// HNSW
	g := s.Graph
	if len(g.Levels) != n || len(g.Conns) != n {
		return nil, fmt.Errorf("persistence: graph sized for %d items, corpus has %d", len(g.Levels), n)
	}
	w.u32(uint32(g.M))
	if g.Heuristic {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u32(g.EntryPoint)
	w.i32(g.MaxLevel)
	for i := 0; i < n; i++ {
		w.i32(g.Levels[i])
		layers := g.Conns[i]
		w.u32(uint32(len(layers)))
		for _, conns := range layers {
			w.u32(uint32(len(conns)))
			w.u32s(conns)
		}
	}

	return w.buf.Bytes(), nil
}

func unmarshalPayload(payload []byte) (*Snapshot, error) {
	r := &payloadReader{data: payload}

	s := &Snapshot{}

	// Corpus
	dim := int(r.u32())
	n := int(r.u32())
	if r.err == nil && (dim < 1 || n < 0) {
		return nil, fmt.Errorf("persistence: corrupt corpus header (dim=%d n=%d)", dim, n)
	}
	s.Dim = dim
	s.Vectors = r.f32s(n * dim)

	// Provenance
	s.Sources = make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		s.Sources = append(s.Sources, r.str())
	}

	// KD-tree
	s.KDLeafSize = int(r.u32())
	nodeCount := int(r.u32())
	if r.err == nil {
		s.KDNodes = make([]kdtree.Node, 0, nodeCount)
		for i := 0; i < nodeCount && r.err == nil; i++ {
			s.KDNodes = append(s.KDNodes, kdtree.Node{
				Axis:  r.i32(),
				Split: r.f32(),
				Left:  r.i32(),
				Right: r.i32(),
				Start: r.i32(),
				End:   r.i32(),
			})
		}
	}
	s.KDItems = r.u32s(n)

	// HNSW
	g := &hnsw.Graph{}
	g.M = int(r.u32())
	g.Heuristic = r.u8() == 1
	g.EntryPoint = r.u32()
	g.MaxLevel = r.i32()
	g.Levels = make([]int32, 0, n)
	g.Conns = make([][][]uint32, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		g.Levels = append(g.Levels, r.i32())
		layerCount := int(r.u32())
		layers := make([][]uint32, 0, layerCount)
		for l := 0; l < layerCount && r.err == nil; l++ {
			degree := int(r.u32())
			layers = append(layers, r.u32s(degree))
		}
		g.Conns = append(g.Conns, layers)
	}
	s.Graph = g

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("persistence: %d trailing payload bytes", len(r.data)-r.off)
	}

	return s, nil
}

// payloadWriter accumulates little-endian payload sections.
type payloadWriter struct {
	buf bytes.Buffer
}

func (w *payloadWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *payloadWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *payloadWriter) i32(v int32) {
	w.u32(uint32(v))
}

func (w *payloadWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *payloadWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *payloadWriter) u32s(vs []uint32) {
	for _, v := range vs {
		w.u32(v)
	}
}

func (w *payloadWriter) f32s(vs []float32) {
	for _, v := range vs {
		w.f32(v)
	}
}

// payloadReader decodes little-endian payload sections, latching the first
// error so call sites stay linear.
type payloadReader struct {
	data []byte
	off  int
	err  error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("persistence: truncated payload at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *payloadReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *payloadReader) i32() int32 {
	return int32(r.u32())
}

func (r *payloadReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *payloadReader) str() string {
	n := int(r.u32())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *payloadReader) u32s(n int) []uint32 {
	if r.err != nil || n < 0 {
		return nil
	}
	out := make([]uint32, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.u32())
	}
	return out
}

func (r *payloadReader) f32s(n int) []float32 {
	if r.err != nil || n < 0 {
		return nil
	}
	out := make([]float32, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.f32())
	}
	return out
}
