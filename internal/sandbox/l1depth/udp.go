package l1depth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

// UDPSourceConfig configures a network depth bridge listener.
type UDPSourceConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Name        string
}

// UDPSource receives chunked depth frames from a sensor bridge over UDP.
type UDPSource struct {
	cfg    UDPSourceConfig
	buffer FrameBuffer
	asm    *FrameAssembler

	mu      sync.Mutex
	conn    *net.UDPConn
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	packets    atomic.Uint64
	badPackets atomic.Uint64
}

// NewUDPSource returns a stopped UDP source.
func NewUDPSource(cfg UDPSourceConfig) *UDPSource {
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	if cfg.RcvBuf == 0 {
		cfg.RcvBuf = 4 << 20
	}
	s := &UDPSource{cfg: cfg}
	s.asm = NewFrameAssembler(&s.buffer)
	return s
}

// Initialize binds the socket and starts the receive loop.
func (s *UDPSource) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if err := conn.SetReadBuffer(s.cfg.RcvBuf); err != nil {
		monitoring.Logf("[UDPSource] Warning: failed to set receive buffer to %d: %v", s.cfg.RcvBuf, err)
	}

	s.buffer.Reset()
	s.asm.Reset()
	s.conn = conn
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.receive(ctx, conn)

	monitoring.Logf("[UDPSource] listening on %s", conn.LocalAddr())
	return nil
}

// Shutdown closes the socket and waits for the receive loop to exit.
func (s *UDPSource) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Swap(false) {
		return
	}
	s.cancel()
	s.conn.Close()
	<-s.done
	s.conn = nil
	monitoring.Logf("[UDPSource] stopped")
}

// LocalAddr returns the bound address, or nil when stopped.
func (s *UDPSource) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPSource) receive(ctx context.Context, conn *net.UDPConn) {
	defer close(s.done)

	statsTicker := time.NewTicker(s.cfg.LogInterval)
	defer statsTicker.Stop()

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			s.logStats()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			monitoring.Logf("[UDPSource] read error: %v", err)
			continue
		}
		s.packets.Add(1)
		if err := s.asm.Add(buf[:n]); err != nil {
			if s.badPackets.Add(1) == 1 {
				monitoring.Logf("[UDPSource] dropping bad packet from %v: %v", from, err)
			}
		}
	}
}

func (s *UDPSource) logStats() {
	published, dropped := s.buffer.Stats()
	completed, abandoned, late := s.asm.Stats()
	monitoring.Logf("[UDPSource] packets=%d bad=%d frames=%d abandoned=%d late=%d published=%d dropped=%d",
		s.packets.Load(), s.badPackets.Load(), completed, abandoned, late, published, dropped)
}

func (s *UDPSource) IsRunning() bool { return s.running.Load() }

func (s *UDPSource) Width() int {
	w, _ := s.buffer.Size()
	return w
}

func (s *UDPSource) Height() int {
	_, h := s.buffer.Size()
	return h
}

// DepthData returns the newest assembled frame, or nil.
func (s *UDPSource) DepthData() []uint16 {
	if !s.running.Load() {
		return nil
	}
	return s.buffer.Take()
}

func (s *UDPSource) DeviceName() string {
	if s.cfg.Name != "" {
		return s.cfg.Name
	}
	return "UDP depth bridge " + s.cfg.Address
}
