package protocol

import (
	"RedWire/internal/model"
	"RedWire/internal/testutil"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func TestParsePacket(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		spec    testutil.PacketSpec
		proto   uint8
		summary string
	}{
		{
			name:    "tcp",
			spec:    testutil.PacketSpec{Src: "10.0.0.1", Dst: "10.0.0.2", Proto: testutil.TCP, SrcPort: 40000, DstPort: 443, Payload: 6, Time: ts},
			proto:   6,
			summary: "Ethernet / IPv4 / TCP 10.0.0.1:40000 > 10.0.0.2:443 [SYN]",
		},
		{
			name:    "udp",
			spec:    testutil.PacketSpec{Src: "10.0.0.1", Dst: "10.0.0.3", Proto: testutil.UDP, SrcPort: 40001, DstPort: 5000, Payload: 12, Time: ts},
			proto:   17,
			summary: "Ethernet / IPv4 / UDP 10.0.0.1:40001 > 10.0.0.3:5000",
		},
		{
			name:    "icmp",
			spec:    testutil.PacketSpec{Src: "192.168.1.5", Dst: "8.8.8.8", Proto: testutil.ICMP, Time: ts},
			proto:   1,
			summary: "Ethernet / IPv4 / ICMPv4 192.168.1.5 > 8.8.8.8 EchoRequest",
		},
		{
			name:    "ipv6 udp",
			spec:    testutil.PacketSpec{Src: "2001:db8::1", Dst: "2001:db8::2", Proto: testutil.UDP, SrcPort: 40002, DstPort: 5001, Payload: 4, Time: ts},
			proto:   17,
			summary: "Ethernet / IPv6 / UDP 2001:db8::1:40002 > 2001:db8::2:5001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := testutil.Packet(t, tt.spec)

			rec, err := ParsePacket(packet)
			if err != nil {
				t.Fatalf("ParsePacket failed: %v", err)
			}
			if rec == nil {
				t.Fatal("ParsePacket returned a nil record")
			}

			if rec.Source != tt.spec.Src || rec.Destination != tt.spec.Dst {
				t.Errorf("Addresses: got %s > %s, want %s > %s", rec.Source, rec.Destination, tt.spec.Src, tt.spec.Dst)
			}
			if rec.Protocol != tt.proto {
				t.Errorf("Protocol: got %d, want %d", rec.Protocol, tt.proto)
			}
			if rec.Length != len(packet.Data()) {
				t.Errorf("Length: got %d, want %d", rec.Length, len(packet.Data()))
			}
			if !ts.Equal(rec.Timestamp) {
				t.Errorf("Timestamp: got %v, want %v", rec.Timestamp, ts)
			}
			if rec.Summary != tt.summary {
				t.Errorf("Summary: got %q, want %q", rec.Summary, tt.summary)
			}
			if rec.Seq != 0 {
				t.Errorf("Sequence numbers are assigned on ingestion, got %d", rec.Seq)
			}
		})
	}
}

func TestParsePacket_IPv6ExtensionHeaders(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolIPv6HopByHop,
		HopLimit:   64,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	// Hop-by-hop header (next header UDP, one PadN option) then an empty UDP datagram.
	payload := gopacket.Payload{
		17, 0, 1, 4, 0, 0, 0, 0,
		0x9c, 0x40, 0x00, 0x35, 0x00, 0x08, 0x00, 0x00,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, ip, payload); err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	rec, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if rec.Protocol != 17 {
		t.Errorf("Protocol should be taken after the extension header: got %d, want 17", rec.Protocol)
	}
	want := "Ethernet / IPv6 / IPv6HopByHop / UDP 2001:db8::1:40000 > 2001:db8::2:53"
	if rec.Summary != want {
		t.Errorf("Summary: got %q, want %q", rec.Summary, want)
	}
}

func TestParsePacket_RejectsNonIP(t *testing.T) {
	rec, err := ParsePacket(testutil.ARPPacket(t))
	if err == nil {
		t.Fatal("Expected an error for an ARP frame")
	}
	if rec != nil {
		t.Errorf("Expected no record, got %+v", rec)
	}

	var malformed *model.MalformedPacketError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected a MalformedPacketError, got %T", err)
	}
	if malformed.Reason != "no IP layer" {
		t.Errorf("Reason: got %q", malformed.Reason)
	}
}

func TestParsePacket_Nil(t *testing.T) {
	_, err := ParsePacket(nil)
	var malformed *model.MalformedPacketError
	if !errors.As(err, &malformed) {
		t.Errorf("Expected a MalformedPacketError, got %v", err)
	}
}

func TestParsePacket_MissingTimestampUsesWallClock(t *testing.T) {
	packet := testutil.Packet(t, testutil.PacketSpec{Src: "10.0.0.1", Dst: "10.0.0.2", Proto: testutil.UDP, SrcPort: 1, DstPort: 2})

	before := time.Now()
	rec, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if rec.Timestamp.Before(before) {
		t.Errorf("Timestamp %v is before %v", rec.Timestamp, before)
	}
}
