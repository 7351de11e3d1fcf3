package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
)

// CapturedFrame is a telemetry frame recovered from a packet capture.
type CapturedFrame struct {
	Timestamp time.Time
	Frame     protocol.TelemetryFrame
}

// ReadCapture decodes telemetry frames sent to udpPort from a pcap stream,
// such as `tcpdump -w` output taken on the operator host. Non-UDP packets,
// other ports and malformed payloads are skipped. A zero port means Port.
func ReadCapture(r io.Reader, udpPort int) ([]CapturedFrame, error) {
	if udpPort == 0 {
		udpPort = Port
	}

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var (
		frames  []CapturedFrame
		packets int
		skipped int
	)
	for {
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return frames, fmt.Errorf("read capture packet %d: %w", packets+1, err)
		}
		packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort {
			continue
		}

		frame, err := protocol.DecodeTelemetry(udp.Payload)
		if err != nil {
			skipped++
			continue
		}
		frames = append(frames, CapturedFrame{
			Timestamp: packet.Metadata().Timestamp,
			Frame:     frame,
		})
	}

	monitoring.Logf("capture: %d packets read, %d telemetry frames on port %d, %d malformed",
		packets, len(frames), udpPort, skipped)
	return frames, nil
}
