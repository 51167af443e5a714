package visualiser

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
)

func init() {
	monitoring.SetLogger(nil)
}

func testTerrain(t *testing.T, res int, walls bool) *pipeline.Terrain {
	t.Helper()
	frame := make([]uint16, 16*16)
	for i := range frame {
		frame[i] = uint16(600 + i%300)
	}
	p := l4heightfield.Params{MinDepth: 500, MaxDepth: 1500, HeightScale: 5, MeshWidth: 10, MeshLength: 8, Resolution: res}
	verts := l4heightfield.NewSynthesizer(nil).Generate(frame, 16, 16, calibration.DefaultQuad(), p)
	tr := &pipeline.Terrain{
		Seq:        42,
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC),
		Resolution: res,
		MeshWidth:  10,
		MeshLength: 8,
		Vertices:   verts,
	}
	if walls {
		w := l4heightfield.BuildWalls(verts, res)
		tr.Walls = &w
	}
	return tr
}

func TestTerrainCodecRoundTrip(t *testing.T) {
	tr := testTerrain(t, 6, true)
	tr.FlatMode = true
	b := AppendTerrain(nil, tr)
	require.Len(t, b, EncodedSize(tr))

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), f.Seq)
	assert.True(t, f.Timestamp.Equal(tr.Timestamp))
	assert.Equal(t, 6, f.Resolution)
	assert.Equal(t, float32(10), f.MeshWidth)
	assert.Equal(t, float32(8), f.MeshLength)
	assert.True(t, f.FlatMode)
	if diff := cmp.Diff(tr.Vertices, f.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tr.Walls, f.Walls); diff != "" {
		t.Errorf("walls mismatch (-want +got):\n%s", diff)
	}
}

func TestTerrainCodecWithoutWalls(t *testing.T) {
	tr := testTerrain(t, 3, false)
	f, err := DecodeFrame(AppendTerrain(nil, tr))
	require.NoError(t, err)
	assert.Nil(t, f.Walls)
	assert.False(t, f.FlatMode)
	assert.Len(t, f.Vertices, 9)
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	good := AppendTerrain(nil, testTerrain(t, 3, true))

	wrongType := protowire.AppendTag(append([]byte(nil), good...), fieldResolution, protowire.Fixed32Type)
	wrongType = protowire.AppendFixed32(wrongType, 3)

	extraUVs := protowire.AppendTag(append([]byte(nil), good...), fieldUVs, protowire.BytesType)
	extraUVs = protowire.AppendVarint(extraUVs, 8)
	extraUVs = appendFloats(extraUVs, []float32{0.5, 0.5})

	misSized := testTerrain(t, 3, false)
	misSized.Resolution = 4

	badIndex := testTerrain(t, 3, true)
	badIndex.Walls.Indices[0] = uint32(len(badIndex.Walls.Vertices))

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"invalid field number", []byte{0x00}},
		{"truncated vertices", good[:40]},
		{"truncated walls", good[:len(good)-3]},
		{"wrong wire type", wrongType},
		{"attribute count mismatch", extraUVs},
		{"resolution mismatch", AppendTerrain(nil, misSized)},
		{"wall index out of range", AppendTerrain(nil, badIndex)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.buf)
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestDecodeFrameSkipsUnknownFields(t *testing.T) {
	tr := testTerrain(t, 3, false)
	b := AppendTerrain(nil, tr)
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, tr.Seq, f.Seq)
	assert.Len(t, f.Vertices, 9)
}

func TestEnvelopeCarriesFrameAsField(t *testing.T) {
	frame := AppendTerrain(nil, testTerrain(t, 4, true))
	env, err := proto.Marshal(wrapperspb.Bytes(frame))
	require.NoError(t, err)

	// BytesValue.value is field 1, the same as TerrainEnvelope.frame.
	num, typ, n := protowire.ConsumeTag(env)
	require.Positive(t, n)
	assert.Equal(t, protowire.Number(1), num)
	assert.Equal(t, protowire.BytesType, typ)
	inner, m := protowire.ConsumeBytes(env[n:])
	require.Positive(t, m)
	assert.Equal(t, frame, inner)
}

func TestMaxFrameSizeBoundsEncoding(t *testing.T) {
	for _, res := range []int{2, 3, 16, 64} {
		tr := testTerrain(t, res, true)
		tr.Seq = math.MaxUint64
		tr.FlatMode = true
		b := AppendTerrain(nil, tr)
		require.Len(t, b, EncodedSize(tr))
		assert.LessOrEqualf(t, len(b), MaxFrameSize(res), "resolution %d", res)
	}
}

func TestMaxMessageSizeFitsLargestGrid(t *testing.T) {
	r := l4heightfield.MaxResolution
	assert.Greater(t, MaxMessageSize(), r*r*vertexFloats*4)
	assert.Greater(t, MaxMessageSize(), MaxFrameSize(r))
}

func TestEncodedFrameRefCount(t *testing.T) {
	f := encodeFrame(testTerrain(t, 3, false))
	f.retain()
	f.release()
	require.NotNil(t, f.buf, "buffer stays while a holder remains")
	f.release()
	assert.Nil(t, f.buf)
}
