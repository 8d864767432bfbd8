package protocol

import (
	"RedWire/internal/model"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket extracts the fields tracked for a packet. Packets without an
// IPv4 or IPv6 layer are rejected with a *model.MalformedPacketError.
// The returned record has no sequence number; that is assigned on ingestion.
func ParsePacket(packet gopacket.Packet) (*model.PacketRecord, error) {
	if packet == nil {
		return nil, &model.MalformedPacketError{Reason: "empty packet"}
	}

	rec := &model.PacketRecord{
		Timestamp: time.Now(), // Default to now, will be overwritten by packet metadata if available
		Length:    len(packet.Data()),
	}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			rec.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			rec.Length = meta.Length
		}
	}

	// Get the IP layer
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		rec.Source = ip.SrcIP.String()
		rec.Destination = ip.DstIP.String()
		rec.Protocol = uint8(ip.Protocol)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		rec.Source = ip.SrcIP.String()
		rec.Destination = ip.DstIP.String()
		rec.Protocol = uint8(upperProtocol(packet, ip.NextHeader))
	} else {
		return nil, &model.MalformedPacketError{Reason: "no IP layer"}
	}

	rec.Summary = summarize(packet, rec.Source, rec.Destination)
	return rec, nil
}

// upperProtocol follows the IPv6 extension header chain and returns the
// protocol carried after the last one.
func upperProtocol(packet gopacket.Packet, next layers.IPProtocol) layers.IPProtocol {
	for _, l := range packet.Layers() {
		switch ext := l.(type) {
		case *layers.IPv6HopByHop:
			next = ext.NextHeader
		case *layers.IPv6Routing:
			next = ext.NextHeader
		case *layers.IPv6Fragment:
			next = ext.NextHeader
		case *layers.IPv6Destination:
			next = ext.NextHeader
		}
	}
	return next
}

// summarize renders a one-line description such as
// "Ethernet / IPv4 / TCP 10.0.0.1:443 > 10.0.0.2:51000 [SYN,ACK]".
func summarize(packet gopacket.Packet, src, dst string) string {
	var names []string
	for _, l := range packet.Layers() {
		switch l.LayerType() {
		case gopacket.LayerTypePayload, gopacket.LayerTypeDecodeFailure:
			continue
		}
		names = append(names, l.LayerType().String())
	}
	stack := strings.Join(names, " / ")

	var detail string
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		detail = fmt.Sprintf("%s:%d > %s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
		if flags := tcpFlags(tcp); flags != "" {
			detail += " [" + flags + "]"
		}
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		detail = fmt.Sprintf("%s:%d > %s:%d", src, udp.SrcPort, dst, udp.DstPort)
	} else if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
		icmp := l.(*layers.ICMPv4)
		detail = fmt.Sprintf("%s > %s %s", src, dst, icmp.TypeCode.String())
	} else if l := packet.Layer(layers.LayerTypeICMPv6); l != nil {
		icmp := l.(*layers.ICMPv6)
		detail = fmt.Sprintf("%s > %s %s", src, dst, icmp.TypeCode.String())
	} else {
		detail = fmt.Sprintf("%s > %s", src, dst)
	}

	if stack == "" {
		return detail
	}
	return stack + " " + detail
}

func tcpFlags(tcp *layers.TCP) string {
	var flags []string
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.URG {
		flags = append(flags, "URG")
	}
	return strings.Join(flags, ",")
}
