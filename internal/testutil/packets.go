// Package testutil provides shared test helpers for building packets and
// pcap fixtures.
package testutil

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Transport protocols understood by PacketSpec.
const (
	TCP  = "tcp"
	UDP  = "udp"
	ICMP = "icmp"
)

// PacketSpec describes a synthetic Ethernet frame.
type PacketSpec struct {
	Src, Dst         string
	Proto            string
	SrcPort, DstPort uint16
	Payload          int
	Time             time.Time
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Frame serializes spec into raw Ethernet bytes.
func Frame(t testing.TB, spec PacketSpec) []byte {
	t.Helper()

	src, dst := net.ParseIP(spec.Src), net.ParseIP(spec.Dst)
	if src == nil || dst == nil {
		t.Fatalf("invalid addresses %q -> %q", spec.Src, spec.Dst)
	}
	v4 := src.To4() != nil && dst.To4() != nil

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}
	var network gopacket.SerializableLayer
	var netLayer gopacket.NetworkLayer
	if v4 {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{SrcIP: src.To4(), DstIP: dst.To4(), Version: 4, TTL: 64, Protocol: ipProtocol(spec.Proto, true)}
		network, netLayer = ip, ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{SrcIP: src.To16(), DstIP: dst.To16(), Version: 6, HopLimit: 64, NextHeader: ipProtocol(spec.Proto, false)}
		network, netLayer = ip, ip
	}

	stack := []gopacket.SerializableLayer{eth, network}
	switch spec.Proto {
	case TCP:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(spec.SrcPort), DstPort: layers.TCPPort(spec.DstPort), SYN: true, Window: 14600}
		if err := tcp.SetNetworkLayerForChecksum(netLayer); err != nil {
			t.Fatalf("tcp checksum layer: %v", err)
		}
		stack = append(stack, tcp)
	case UDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(spec.SrcPort), DstPort: layers.UDPPort(spec.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(netLayer); err != nil {
			t.Fatalf("udp checksum layer: %v", err)
		}
		stack = append(stack, udp)
	case ICMP:
		if !v4 {
			t.Fatalf("icmp fixtures are IPv4 only")
		}
		stack = append(stack, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1})
	default:
		t.Fatalf("unknown protocol %q", spec.Proto)
	}
	if spec.Payload > 0 {
		stack = append(stack, gopacket.Payload(make([]byte, spec.Payload)))
	}

	return serialize(t, stack...)
}

// Packet builds a decoded packet carrying spec.Time as its capture timestamp.
func Packet(t testing.TB, spec PacketSpec) gopacket.Packet {
	t.Helper()
	return decode(Frame(t, spec), spec.Time)
}

// ARPPacket builds a decoded frame with no IP layer.
func ARPPacket(t testing.TB) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return decode(serialize(t, eth, arp), time.Time{})
}

// WritePCAP writes frames into a classic pcap file under dir and returns its path.
func WritePCAP(t testing.TB, dir string, specs []PacketSpec) string {
	t.Helper()

	path := dir + "/fixture.pcap"
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pcap: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write pcap header: %v", err)
	}
	for _, spec := range specs {
		data := Frame(t, spec)
		ci := gopacket.CaptureInfo{Timestamp: spec.Time, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return path
}

// Conversation returns a deterministic mixed sequence of n packets spread
// over a handful of hosts, starting at base.
func Conversation(n int, base time.Time) []PacketSpec {
	hosts := []string{"10.0.0.1", "10.0.0.2", "192.168.1.5", "8.8.8.8", "172.16.0.9"}
	protos := []string{TCP, UDP, ICMP}
	specs := make([]PacketSpec, 0, n)
	for i := 0; i < n; i++ {
		src := hosts[i%len(hosts)]
		dst := hosts[(i*3+1)%len(hosts)]
		if src == dst {
			dst = hosts[(i+2)%len(hosts)]
		}
		specs = append(specs, PacketSpec{
			Src:     src,
			Dst:     dst,
			Proto:   protos[i%len(protos)],
			SrcPort: uint16(40000 + i),
			DstPort: 443,
			Payload: 10 + i%7,
			Time:    base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return specs
}

func ipProtocol(proto string, v4 bool) layers.IPProtocol {
	switch proto {
	case TCP:
		return layers.IPProtocolTCP
	case UDP:
		return layers.IPProtocolUDP
	default:
		if v4 {
			return layers.IPProtocolICMPv4
		}
		return layers.IPProtocolICMPv6
	}
}

func serialize(t testing.TB, stack ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("serialize layers: %v", err)
	}
	return buf.Bytes()
}

func decode(data []byte, ts time.Time) gopacket.Packet {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	md := packet.Metadata()
	md.Timestamp = ts
	md.CaptureLength = len(data)
	md.Length = len(data)
	return packet
}
