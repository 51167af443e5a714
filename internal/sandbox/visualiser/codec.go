// Package visualiser streams terrain meshes to renderers over gRPC.
//
// Each frame is a sandtable.v1.TerrainFrame protobuf message (see
// proto/sandtable/v1/terrain.proto) with the vertex attributes in packed
// float fields. The stream carries it inside a google.protobuf.BytesValue,
// which is wire compatible with TerrainEnvelope, so renderers can decode
// frames with stubs generated from the .proto file.
package visualiser

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
)

// TerrainFrame field numbers.
const (
	fieldSeq        protowire.Number = 1
	fieldTimestamp  protowire.Number = 2
	fieldResolution protowire.Number = 3
	fieldMeshWidth  protowire.Number = 4
	fieldMeshLength protowire.Number = 5
	fieldFlatMode   protowire.Number = 6
	fieldPositions  protowire.Number = 7
	fieldUVs        protowire.Number = 8
	fieldHeights    protowire.Number = 9
	fieldWalls      protowire.Number = 10
)

// Walls field numbers.
const (
	wallFieldPositions protowire.Number = 1
	wallFieldNormals   protowire.Number = 2
	wallFieldUVs       protowire.Number = 3
	wallFieldHeights   protowire.Number = 4
	wallFieldIndices   protowire.Number = 5
)

const (
	vertexFloats = 7
	wallFloats   = 10

	maxVarint32 = 5
	maxVarint64 = 10

	// envelopeOverhead is the BytesValue tag and length around a frame.
	envelopeOverhead = 1 + maxVarint32
)

// ErrBadFrame is returned when a frame cannot be decoded.
var ErrBadFrame = errors.New("malformed terrain frame")

// Frame is a decoded terrain frame.
type Frame struct {
	Seq        uint64
	Timestamp  time.Time
	Resolution int
	MeshWidth  float32
	MeshLength float32
	FlatMode   bool
	Vertices   []l4heightfield.Vertex
	Walls      *l4heightfield.Walls
}

// MaxFrameSize bounds the encoded length of an R×R frame with walls.
func MaxFrameSize(resolution int) int {
	if resolution < 2 {
		resolution = 2
	}
	quads := 4 * (resolution - 1)
	wallVerts := quads * 4
	packed := 1 + maxVarint32

	n := 2*(1+maxVarint64) + // seq, timestamp
		(1 + maxVarint32) + // resolution
		2*(1+4) + 2 // mesh size, flat mode
	n += 3*packed + resolution*resolution*vertexFloats*4
	n += packed + 5*packed + wallVerts*wallFloats*4 +
		quads*6*protowire.SizeVarint(uint64(wallVerts))
	return n
}

// MaxMessageSize is the gRPC message limit that fits a frame at
// l4heightfield.MaxResolution.
func MaxMessageSize() int {
	return MaxFrameSize(l4heightfield.MaxResolution) + envelopeOverhead
}

// EncodedSize returns the encoded length of t.
func EncodedSize(t *pipeline.Terrain) int {
	n := 0
	if t.Seq != 0 {
		n += protowire.SizeTag(fieldSeq) + protowire.SizeVarint(t.Seq)
	}
	if ts := t.Timestamp.UnixNano(); ts != 0 {
		n += protowire.SizeTag(fieldTimestamp) + protowire.SizeVarint(uint64(ts))
	}
	if t.Resolution != 0 {
		n += protowire.SizeTag(fieldResolution) + protowire.SizeVarint(uint64(t.Resolution))
	}
	if t.MeshWidth != 0 {
		n += protowire.SizeTag(fieldMeshWidth) + protowire.SizeFixed32()
	}
	if t.MeshLength != 0 {
		n += protowire.SizeTag(fieldMeshLength) + protowire.SizeFixed32()
	}
	if t.FlatMode {
		n += protowire.SizeTag(fieldFlatMode) + 1
	}
	nv := len(t.Vertices)
	n += sizePacked(fieldPositions, nv*3)
	n += sizePacked(fieldUVs, nv*2)
	n += sizePacked(fieldHeights, nv*2)
	if t.Walls != nil {
		n += protowire.SizeTag(fieldWalls) + protowire.SizeBytes(wallsSize(t.Walls))
	}
	return n
}

func sizePacked(num protowire.Number, floats int) int {
	if floats == 0 {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeBytes(floats*4)
}

func wallsSize(w *l4heightfield.Walls) int {
	nv := len(w.Vertices)
	n := sizePacked(wallFieldPositions, nv*3) +
		sizePacked(wallFieldNormals, nv*3) +
		sizePacked(wallFieldUVs, nv*2) +
		sizePacked(wallFieldHeights, nv*2)
	if idx := indicesSize(w.Indices); idx > 0 {
		n += protowire.SizeTag(wallFieldIndices) + protowire.SizeBytes(idx)
	}
	return n
}

func indicesSize(indices []uint32) int {
	n := 0
	for _, idx := range indices {
		n += protowire.SizeVarint(uint64(idx))
	}
	return n
}

// AppendTerrain appends the TerrainFrame encoding of t to dst. Zero scalars
// are omitted, as proto3 does.
func AppendTerrain(dst []byte, t *pipeline.Terrain) []byte {
	if t.Seq != 0 {
		dst = protowire.AppendTag(dst, fieldSeq, protowire.VarintType)
		dst = protowire.AppendVarint(dst, t.Seq)
	}
	if ts := t.Timestamp.UnixNano(); ts != 0 {
		dst = protowire.AppendTag(dst, fieldTimestamp, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(ts))
	}
	if t.Resolution != 0 {
		dst = protowire.AppendTag(dst, fieldResolution, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(t.Resolution))
	}
	dst = appendFloat(dst, fieldMeshWidth, t.MeshWidth)
	dst = appendFloat(dst, fieldMeshLength, t.MeshLength)
	if t.FlatMode {
		dst = protowire.AppendTag(dst, fieldFlatMode, protowire.VarintType)
		dst = protowire.AppendVarint(dst, 1)
	}

	verts := t.Vertices
	if len(verts) > 0 {
		dst = appendPackedHeader(dst, fieldPositions, len(verts)*3)
		for i := range verts {
			dst = appendFloats(dst, verts[i].Position[:])
		}
		dst = appendPackedHeader(dst, fieldUVs, len(verts)*2)
		for i := range verts {
			dst = appendFloats(dst, verts[i].UV[:])
		}
		dst = appendPackedHeader(dst, fieldHeights, len(verts)*2)
		for i := range verts {
			dst = appendFloats(dst, verts[i].Height[:])
		}
	}

	if w := t.Walls; w != nil {
		dst = protowire.AppendTag(dst, fieldWalls, protowire.BytesType)
		dst = protowire.AppendVarint(dst, uint64(wallsSize(w)))
		dst = appendWalls(dst, w)
	}
	return dst
}

func appendWalls(dst []byte, w *l4heightfield.Walls) []byte {
	verts := w.Vertices
	if len(verts) > 0 {
		dst = appendPackedHeader(dst, wallFieldPositions, len(verts)*3)
		for i := range verts {
			dst = appendFloats(dst, verts[i].Position[:])
		}
		dst = appendPackedHeader(dst, wallFieldNormals, len(verts)*3)
		for i := range verts {
			dst = appendFloats(dst, verts[i].Normal[:])
		}
		dst = appendPackedHeader(dst, wallFieldUVs, len(verts)*2)
		for i := range verts {
			dst = appendFloats(dst, verts[i].UV[:])
		}
		dst = appendPackedHeader(dst, wallFieldHeights, len(verts)*2)
		for i := range verts {
			dst = appendFloats(dst, verts[i].Height[:])
		}
	}
	if size := indicesSize(w.Indices); size > 0 {
		dst = protowire.AppendTag(dst, wallFieldIndices, protowire.BytesType)
		dst = protowire.AppendVarint(dst, uint64(size))
		for _, idx := range w.Indices {
			dst = protowire.AppendVarint(dst, uint64(idx))
		}
	}
	return dst
}

func appendFloat(dst []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(dst, math.Float32bits(v))
}

// appendPackedHeader writes the tag and length of a packed float field.
func appendPackedHeader(dst []byte, num protowire.Number, floats int) []byte {
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendVarint(dst, uint64(floats*4))
}

func appendFloats(dst []byte, vs []float32) []byte {
	for _, v := range vs {
		dst = protowire.AppendFixed32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodeFrame parses an encoded TerrainFrame. Unknown fields are skipped.
func DecodeFrame(b []byte) (*Frame, error) {
	f := &Frame{}
	var pos, uv, hgt []float32
	var ts int64
	var walls []byte
	hasWalls := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch num {
		case fieldSeq:
			f.Seq, n, err = consumeVarint(b, typ)
		case fieldTimestamp:
			var v uint64
			v, n, err = consumeVarint(b, typ)
			ts = int64(v)
		case fieldResolution:
			var v uint64
			v, n, err = consumeVarint(b, typ)
			f.Resolution = int(v)
		case fieldMeshWidth:
			f.MeshWidth, n, err = consumeFloat(b, typ)
		case fieldMeshLength:
			f.MeshLength, n, err = consumeFloat(b, typ)
		case fieldFlatMode:
			var v uint64
			v, n, err = consumeVarint(b, typ)
			f.FlatMode = v != 0
		case fieldPositions:
			pos, n, err = consumeFloats(b, typ, pos)
		case fieldUVs:
			uv, n, err = consumeFloats(b, typ, uv)
		case fieldHeights:
			hgt, n, err = consumeFloats(b, typ, hgt)
		case fieldWalls:
			if typ != protowire.BytesType {
				err = errWireType(typ)
				break
			}
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			walls = append(walls, v...)
			hasWalls = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if err == nil && n < 0 {
			err = protowire.ParseError(n)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrBadFrame, num, err)
		}
		b = b[n:]
	}

	f.Timestamp = time.Unix(0, ts).UTC()
	if f.Resolution < 1 || f.Resolution > l4heightfield.MaxResolution {
		return nil, fmt.Errorf("%w: resolution %d", ErrBadFrame, f.Resolution)
	}
	count := len(pos) / 3
	if count != f.Resolution*f.Resolution || len(pos) != count*3 || len(uv) != count*2 || len(hgt) != count*2 {
		return nil, fmt.Errorf("%w: %d/%d/%d vertex floats for resolution %d",
			ErrBadFrame, len(pos), len(uv), len(hgt), f.Resolution)
	}
	f.Vertices = make([]l4heightfield.Vertex, count)
	for i := range f.Vertices {
		v := &f.Vertices[i]
		copy(v.Position[:], pos[i*3:])
		copy(v.UV[:], uv[i*2:])
		copy(v.Height[:], hgt[i*2:])
	}

	if hasWalls {
		w, err := decodeWalls(walls)
		if err != nil {
			return nil, err
		}
		f.Walls = w
	}
	return f, nil
}

func decodeWalls(b []byte) (*l4heightfield.Walls, error) {
	var pos, nrm, uv, hgt []float32
	var indices []uint32
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: walls: %v", ErrBadFrame, protowire.ParseError(n))
		}
		b = b[n:]

		var err error
		switch num {
		case wallFieldPositions:
			pos, n, err = consumeFloats(b, typ, pos)
		case wallFieldNormals:
			nrm, n, err = consumeFloats(b, typ, nrm)
		case wallFieldUVs:
			uv, n, err = consumeFloats(b, typ, uv)
		case wallFieldHeights:
			hgt, n, err = consumeFloats(b, typ, hgt)
		case wallFieldIndices:
			indices, n, err = consumeIndices(b, typ, indices)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if err == nil && n < 0 {
			err = protowire.ParseError(n)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: walls field %d: %v", ErrBadFrame, num, err)
		}
		b = b[n:]
	}

	count := len(pos) / 3
	if len(pos) != count*3 || len(nrm) != count*3 || len(uv) != count*2 || len(hgt) != count*2 {
		return nil, fmt.Errorf("%w: walls: %d/%d/%d/%d vertex floats",
			ErrBadFrame, len(pos), len(nrm), len(uv), len(hgt))
	}
	for _, idx := range indices {
		if int(idx) >= count {
			return nil, fmt.Errorf("%w: walls: index %d out of %d vertices", ErrBadFrame, idx, count)
		}
	}
	w := &l4heightfield.Walls{
		Vertices: make([]l4heightfield.WallVertex, count),
		Indices:  indices,
	}
	if w.Indices == nil {
		w.Indices = []uint32{}
	}
	for i := range w.Vertices {
		v := &w.Vertices[i]
		copy(v.Position[:], pos[i*3:])
		copy(v.Normal[:], nrm[i*3:])
		copy(v.UV[:], uv[i*2:])
		copy(v.Height[:], hgt[i*2:])
	}
	return w, nil
}

func errWireType(typ protowire.Type) error {
	return fmt.Errorf("unexpected wire type %d", typ)
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType(typ)
	}
	v, n := protowire.ConsumeVarint(b)
	return v, n, nil
}

func consumeFloat(b []byte, typ protowire.Type) (float32, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, errWireType(typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	return math.Float32frombits(v), n, nil
}

// consumeFloats appends a packed or single float field to dst.
func consumeFloats(b []byte, typ protowire.Type, dst []float32) ([]float32, int, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n >= 0 {
			dst = append(dst, math.Float32frombits(v))
		}
		return dst, n, nil
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, n, nil
		}
		if len(v)%4 != 0 {
			return dst, 0, fmt.Errorf("packed floats of %d bytes", len(v))
		}
		dst = growFloats(dst, len(v)/4)
		for len(v) > 0 {
			bits, m := protowire.ConsumeFixed32(v)
			dst = append(dst, math.Float32frombits(bits))
			v = v[m:]
		}
		return dst, n, nil
	default:
		return dst, 0, errWireType(typ)
	}
}

// consumeIndices appends a packed or single uint32 field to dst.
func consumeIndices(b []byte, typ protowire.Type, dst []uint32) ([]uint32, int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			dst = append(dst, uint32(v))
		}
		return dst, n, nil
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, n, nil
		}
		for len(v) > 0 {
			idx, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return dst, 0, protowire.ParseError(m)
			}
			dst = append(dst, uint32(idx))
			v = v[m:]
		}
		return dst, n, nil
	default:
		return dst, 0, errWireType(typ)
	}
}

func growFloats(s []float32, n int) []float32 {
	if cap(s)-len(s) >= n {
		return s
	}
	grown := make([]float32, len(s), len(s)+n)
	copy(grown, s)
	return grown
}

// frameBufPool reuses encode buffers sized for a 200x200 mesh.
var frameBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, MaxFrameSize(200))
		return &b
	},
}

// maxPooledFrame caps the buffers returned to the pool.
const maxPooledFrame = 64 * 1024 * 1024

// encodedFrame is one encoded frame shared by every client. The buffer
// returns to the pool when the last holder releases it.
type encodedFrame struct {
	seq  uint64
	buf  *[]byte
	refs atomic.Int32
}

func encodeFrame(t *pipeline.Terrain) *encodedFrame {
	bp := frameBufPool.Get().(*[]byte)
	*bp = AppendTerrain((*bp)[:0], t)
	f := &encodedFrame{seq: t.Seq, buf: bp}
	f.refs.Store(1)
	return f
}

func (f *encodedFrame) data() []byte { return *f.buf }

func (f *encodedFrame) retain() { f.refs.Add(1) }

func (f *encodedFrame) release() {
	if f.refs.Add(-1) != 0 {
		return
	}
	if cap(*f.buf) <= maxPooledFrame {
		frameBufPool.Put(f.buf)
	}
	f.buf = nil
}
