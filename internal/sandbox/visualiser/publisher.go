package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
)

// Config holds configuration for the terrain gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client frame queue length. Slow clients drop
	// frames instead of stalling the pipeline.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		ClientBuffer: 4,
	}
}

// Publisher manages the gRPC server and fans terrain frames out to clients.
// It implements pipeline.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan *encodedFrame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	frameCount     atomic.Uint64
	clientCount    atomic.Int32
	droppedFrames  atomic.Uint64
	lastStatsTime  time.Time
	lastFrameCount uint64
	lastStatsMu    sync.Mutex

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ pipeline.Sink = (*Publisher)(nil)

type clientStream struct {
	id      string
	name    string
	frameCh chan *encodedFrame
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *encodedFrame, 8),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener, registers the terrain service and serves in the
// background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	maxMsgSize := MaxMessageSize()
	p.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	RegisterService(p.server, NewServer(p))

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[Visualiser] gRPC server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends all streams and stops the gRPC server.
func (p *Publisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)

	if p.server != nil {
		p.server.Stop()
	}
	if p.listener != nil {
		p.listener.Close()
	}

	p.wg.Wait()
	drain(p.frameChan)
	monitoring.Logf("[Visualiser] gRPC server stopped")
}

// PublishTerrain encodes t and queues it for every client. It never blocks;
// a full queue drops the frame.
func (p *Publisher) PublishTerrain(t *pipeline.Terrain) {
	if !p.running.Load() || t == nil {
		return
	}
	if p.clientCount.Load() == 0 {
		return
	}

	f := encodeFrame(t)
	select {
	case p.frameChan <- f:
		count := p.frameCount.Add(1)
		p.logPeriodicStats(count, len(t.Vertices), len(f.data()))
	default:
		f.release()
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[Visualiser] DROPPED frame %d (total dropped: %d), channel full", t.Seq, dropped)
	}
}

// logPeriodicStats logs performance stats every 5 seconds.
func (p *Publisher) logPeriodicStats(frameCount uint64, vertices, bytes int) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}

	elapsed := now.Sub(p.lastStatsTime)
	if elapsed >= 5*time.Second {
		framesInInterval := frameCount - p.lastFrameCount
		fps := float64(framesInInterval) / elapsed.Seconds()
		monitoring.Logf("[Visualiser] Stats: fps=%.1f frames=%d dropped=%d clients=%d last_frame: vertices=%d bytes=%d",
			fps, framesInInterval, p.droppedFrames.Load(), p.clientCount.Load(), vertices, bytes)
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
	}
}

// broadcastLoop distributes frames to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				frame.retain()
				select {
				case client.frameCh <- frame:
				default:
					frame.release()
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
			frame.release()
		}
	}
}

// addClient registers a new streaming client, or returns nil when the
// client limit is reached.
func (p *Publisher) addClient(id, name string) *clientStream {
	client := &clientStream{
		id:      id,
		name:    name,
		frameCh: make(chan *encodedFrame, p.config.ClientBuffer),
	}

	p.clientsMu.Lock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		p.clientsMu.Unlock()
		return nil
	}
	p.clients[id] = client
	p.clientsMu.Unlock()

	p.clientCount.Add(1)
	monitoring.Logf("[Visualiser] Client connected: %s %q (total: %d)", id, name, p.clientCount.Load())
	return client
}

// removeClient unregisters a streaming client and releases its queue.
func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	client, ok := p.clients[id]
	if ok {
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if !ok {
		return
	}

	drain(client.frameCh)
	p.clientCount.Add(-1)
	monitoring.Logf("[Visualiser] Client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
}

// drain releases every queued frame.
func drain(ch chan *encodedFrame) {
	for {
		select {
		case f := <-ch:
			f.release()
		default:
			return
		}
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frame_count"`
	DroppedFrames uint64 `json:"dropped_frames"`
	ClientCount   int32  `json:"client_count"`
	Running       bool   `json:"running"`
}
