package l1depth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

// PCAPSourceConfig configures replay of a captured depth bridge stream.
type PCAPSourceConfig struct {
	Path string
	// Port filters UDP packets by destination port. Zero accepts all.
	Port uint16
	// Loop restarts the capture at EOF.
	Loop bool
	// Realtime paces packets by their capture timestamps. When false packets
	// are replayed as fast as they can be read.
	Realtime bool
}

// PCAPSource replays depth packets from a pcap file through the same
// assembler the UDP source uses.
type PCAPSource struct {
	cfg    PCAPSourceConfig
	buffer FrameBuffer
	asm    *FrameAssembler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	packets  atomic.Uint64
	finished atomic.Bool
}

// NewPCAPSource returns a stopped replay source.
func NewPCAPSource(cfg PCAPSourceConfig) *PCAPSource {
	s := &PCAPSource{cfg: cfg}
	s.asm = NewFrameAssembler(&s.buffer)
	return s
}

// Initialize checks the capture can be opened and starts the replay.
func (s *PCAPSource) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return nil
	}
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", s.cfg.Path, err)
	}
	if _, err := pcapgo.NewReader(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header of %s: %w", s.cfg.Path, err)
	}
	f.Close()

	s.buffer.Reset()
	s.asm.Reset()
	s.finished.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.replay(ctx)
	monitoring.Logf("[PCAPSource] replaying %s", s.cfg.Path)
	return nil
}

// Shutdown stops the replay.
func (s *PCAPSource) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Swap(false) {
		return
	}
	s.cancel()
	<-s.done
}

var _ Finisher = (*PCAPSource)(nil)

// Finished reports whether a non-looping replay reached the end of the file.
// A finished replay stays running so its last frame can still be taken.
func (s *PCAPSource) Finished() bool { return s.finished.Load() }

func (s *PCAPSource) replay(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.replayOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			monitoring.Logf("[PCAPSource] replay failed: %v", err)
			return
		case !s.cfg.Loop:
			monitoring.Logf("[PCAPSource] replay complete: %d packets", s.packets.Load())
			s.finished.Store(true)
			return
		}
		s.asm.Reset()
	}
}

func (s *PCAPSource) replayOnce(ctx context.Context) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return err
	}
	src := gopacket.NewPacketSource(r, r.LinkType())

	var first time.Time
	start := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		packet, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if s.cfg.Port != 0 && uint16(udp.DstPort) != s.cfg.Port {
			continue
		}

		if s.cfg.Realtime {
			ts := packet.Metadata().Timestamp
			if first.IsZero() {
				first = ts
			}
			if wait := ts.Sub(first) - time.Since(start); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}

		s.packets.Add(1)
		if err := s.asm.Add(udp.Payload); err != nil {
			monitoring.Logf("[PCAPSource] packet %d: %v", s.packets.Load(), err)
		}
	}
}

func (s *PCAPSource) IsRunning() bool { return s.running.Load() }

func (s *PCAPSource) Width() int {
	w, _ := s.buffer.Size()
	return w
}

func (s *PCAPSource) Height() int {
	_, h := s.buffer.Size()
	return h
}

// DepthData returns the newest replayed frame, or nil.
func (s *PCAPSource) DepthData() []uint16 {
	if !s.running.Load() {
		return nil
	}
	return s.buffer.Take()
}

func (s *PCAPSource) DeviceName() string { return "PCAP replay " + s.cfg.Path }
