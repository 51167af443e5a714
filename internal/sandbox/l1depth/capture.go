package l1depth

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CaptureWriter records depth packets as Ethernet/IPv4/UDP frames in pcap
// format, so a session can be replayed later with PCAPSource.
type CaptureWriter struct {
	w       *pcapgo.Writer
	eth     layers.Ethernet
	ip      layers.IPv4
	udp     layers.UDP
	buf     gopacket.SerializeBuffer
	options gopacket.SerializeOptions
}

// NewCaptureWriter writes the pcap file header to w. Packets are addressed
// from srcPort to dstPort on the loopback network.
func NewCaptureWriter(w io.Writer, srcPort, dstPort uint16) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	cw := &CaptureWriter{
		w: pw,
		eth: layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip: layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(127, 0, 0, 1),
			DstIP:    net.IPv4(127, 0, 0, 1),
		},
		udp: layers.UDP{
			SrcPort: layers.UDPPort(srcPort),
			DstPort: layers.UDPPort(dstPort),
		},
		buf:     gopacket.NewSerializeBuffer(),
		options: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}
	if err := cw.udp.SetNetworkLayerForChecksum(&cw.ip); err != nil {
		return nil, err
	}
	return cw, nil
}

// WritePacket appends one UDP payload captured at ts.
func (c *CaptureWriter) WritePacket(ts time.Time, payload []byte) error {
	if err := gopacket.SerializeLayers(c.buf, c.options, &c.eth, &c.ip, &c.udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	data := c.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := c.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}
