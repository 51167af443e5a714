// Command depth-sender streams simulated depth frames over UDP in the
// sandtable wire format, for bench testing the daemon without a sensor.
// With -record it also writes the packets to a pcap file that the daemon
// can replay with -source pcap.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/sandtable/internal/sandbox/l1depth"
)

var (
	addr      = flag.String("addr", "127.0.0.1:7400", "Destination UDP address")
	width     = flag.Int("width", 320, "Frame width")
	height    = flag.Int("height", 240, "Frame height")
	fps       = flag.Float64("fps", 30, "Frames per second")
	frames    = flag.Int("frames", 0, "Stop after this many frames (0 = run until interrupted)")
	chunk     = flag.Int("chunk", l1depth.MaxSamplesPerPacket, "Samples per packet")
	holeEvery = flag.Int("holes", 0, "Punch a hole into every n-th pixel (0 = none)")
	seed      = flag.Uint64("seed", 1, "Terrain noise seed")
	record    = flag.String("record", "", "Also write the packets to this pcap file")
)

// sender owns the simulated terrain and its outputs.
type sender struct {
	sim     *l1depth.SimulatedSource
	conn    net.Conn
	capture *l1depth.CaptureWriter
	width   int
	height  int
	chunk   int
	frameID uint32
	packets uint64
}

func newSender(conn net.Conn, capture *l1depth.CaptureWriter, w, h, chunk, holeEvery int, seed uint64) (*sender, error) {
	cfg := l1depth.DefaultSimConfig()
	cfg.Width, cfg.Height = w, h
	cfg.FrameInterval = 0
	cfg.HoleEvery = holeEvery
	cfg.Seed = seed
	sim := l1depth.NewSimulatedSource(cfg)
	if err := sim.Initialize(); err != nil {
		return nil, err
	}
	return &sender{sim: sim, conn: conn, capture: capture, width: w, height: h, chunk: chunk}, nil
}

// sendFrame advances the terrain by dt seconds and emits one frame.
func (s *sender) sendFrame(dt float64, now time.Time) error {
	s.sim.GenerateFrame(dt)
	frame := s.sim.DepthData()
	if frame == nil {
		return fmt.Errorf("simulator produced no frame")
	}
	s.frameID++
	for _, pkt := range l1depth.EncodeFrame(s.frameID, s.width, s.height, frame, s.chunk) {
		if s.conn != nil {
			if _, err := s.conn.Write(pkt); err != nil {
				return fmt.Errorf("send frame %d: %w", s.frameID, err)
			}
		}
		if s.capture != nil {
			if err := s.capture.WritePacket(now, pkt); err != nil {
				return fmt.Errorf("record frame %d: %w", s.frameID, err)
			}
		}
		s.packets++
	}
	return nil
}

func main() {
	flag.Parse()
	if *fps <= 0 {
		log.Fatal("fps must be positive")
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	var capture *l1depth.CaptureWriter
	if *record != "" {
		f, err := os.Create(*record)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *record, err)
		}
		defer f.Close()
		dstPort := uint16(conn.RemoteAddr().(*net.UDPAddr).Port)
		srcPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
		if capture, err = l1depth.NewCaptureWriter(f, srcPort, dstPort); err != nil {
			log.Fatalf("failed to start capture: %v", err)
		}
	}

	s, err := newSender(conn, capture, *width, *height, *chunk, *holeEvery, *seed)
	if err != nil {
		log.Fatalf("failed to start simulator: %v", err)
	}
	defer s.sim.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(float64(time.Second) / *fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	log.Printf("sending %dx%d frames to %s at %.1f fps", *width, *height, *addr, *fps)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopped after %d frames (%d packets)", s.frameID, s.packets)
			return
		case now := <-ticker.C:
			if err := s.sendFrame(now.Sub(last).Seconds(), now); err != nil {
				log.Printf("warning: %v", err)
			}
			last = now
			if *frames > 0 && int(s.frameID) >= *frames {
				log.Printf("sent %d frames (%d packets)", s.frameID, s.packets)
				return
			}
		case <-statsTicker.C:
			log.Printf("frame %d, %d packets sent", s.frameID, s.packets)
		}
	}
}
