package visualiser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/sandtable/internal/sandbox/l4heightfield"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
)

var errStop = errors.New("stop")

func startPublisher(t *testing.T, cfg Config) *Publisher {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1:0"
	pub := NewPublisher(cfg)
	require.NoError(t, pub.Start())
	t.Cleanup(pub.Stop)
	return pub
}

func dial(t *testing.T, pub *Publisher) *Client {
	t.Helper()
	c, err := Dial(pub.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStreamTerrainLoopback(t *testing.T) {
	pub := startPublisher(t, DefaultConfig())
	client := dial(t, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frames := make(chan *Frame, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Stream(ctx, "projector", func(f *Frame) error {
			frames <- f
			return nil
		})
	}()

	require.Eventually(t, func() bool { return pub.Stats().ClientCount == 1 }, 5*time.Second, 10*time.Millisecond)

	tr := testTerrain(t, 5, true)
	pub.PublishTerrain(tr)

	select {
	case f := <-frames:
		assert.Equal(t, tr.Seq, f.Seq)
		assert.Equal(t, 5, f.Resolution)
		if diff := cmp.Diff(tr.Vertices, f.Vertices); diff != "" {
			t.Errorf("vertices mismatch (-want +got):\n%s", diff)
		}
		require.NotNil(t, f.Walls)
		assert.Len(t, f.Walls.Indices, len(tr.Walls.Indices))
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}
	require.Eventually(t, func() bool { return pub.Stats().ClientCount == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), pub.Stats().FrameCount)
}

func TestStreamTerrainLargeGrid(t *testing.T) {
	const res = 1024
	verts := make([]l4heightfield.Vertex, res*res)
	for i := range verts {
		x, z := float32(i%res), float32(i/res)
		verts[i] = l4heightfield.Vertex{
			Position: [3]float32{x, float32(i%7) * 0.1, z},
			UV:       [2]float32{x / (res - 1), z / (res - 1)},
			Height:   [2]float32{float32(i%7) * 0.1, 0},
		}
	}
	walls := l4heightfield.BuildWalls(verts, res)
	tr := &pipeline.Terrain{
		Seq:        7,
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Resolution: res,
		MeshWidth:  10,
		MeshLength: 10,
		Vertices:   verts,
		Walls:      &walls,
	}
	require.Greater(t, EncodedSize(tr), 16*1024*1024)

	pub := startPublisher(t, DefaultConfig())
	client := dial(t, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	frames := make(chan *Frame, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.Stream(ctx, "projector", func(f *Frame) error {
			frames <- f
			return errStop
		})
	}()
	require.Eventually(t, func() bool { return pub.Stats().ClientCount == 1 }, 5*time.Second, 10*time.Millisecond)

	pub.PublishTerrain(tr)

	select {
	case f := <-frames:
		assert.Equal(t, res, f.Resolution)
		require.Len(t, f.Vertices, res*res)
		assert.Equal(t, verts[res*res-1], f.Vertices[res*res-1])
		require.NotNil(t, f.Walls)
		assert.Len(t, f.Walls.Vertices, len(walls.Vertices))
	case err := <-done:
		t.Fatalf("stream ended without a frame: %v", err)
	case <-time.After(15 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestStreamTerrainClientLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	pub := startPublisher(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := dial(t, pub)
	go first.Stream(ctx, "first", func(*Frame) error { return nil })
	require.Eventually(t, func() bool { return pub.Stats().ClientCount == 1 }, 5*time.Second, 10*time.Millisecond)

	err := dial(t, pub).Stream(ctx, "second", func(*Frame) error { return nil })
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublishTerrainWithoutClientsIsNoop(t *testing.T) {
	pub := startPublisher(t, DefaultConfig())
	pub.PublishTerrain(testTerrain(t, 3, false))
	pub.PublishTerrain(nil)
	assert.Equal(t, uint64(0), pub.Stats().FrameCount)
	assert.True(t, pub.Stats().Running)
}

func TestPublisherStopIsIdempotent(t *testing.T) {
	pub := NewPublisher(Config{ListenAddr: "127.0.0.1:0"})
	pub.Stop()
	require.NoError(t, pub.Start())
	assert.Error(t, pub.Start())
	assert.NotNil(t, pub.Addr())
	pub.Stop()
	pub.Stop()
	assert.False(t, pub.Stats().Running)
}
