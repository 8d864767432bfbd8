package pcap

import (
	"RedWire/internal/model"
	"RedWire/internal/testutil"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func TestOpenFile_ReadsEveryPacket(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	specs := testutil.Conversation(12, base)
	path := testutil.WritePCAP(t, t.TempDir(), specs)

	r, err := OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open pcap file: %v", err)
	}
	defer r.Close()

	if r.LinkType() != layers.LinkTypeEthernet {
		t.Errorf("LinkType: got %v, want Ethernet", r.LinkType())
	}
	if !strings.Contains(r.Describe(), "fixture.pcap") {
		t.Errorf("Describe should name the file, got %q", r.Describe())
	}

	packets, err := ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(packets) != len(specs) {
		t.Fatalf("Expected %d packets, got %d", len(specs), len(packets))
	}
	for i, p := range packets {
		if !specs[i].Time.Equal(p.Metadata().Timestamp) {
			t.Errorf("Timestamp of packet %d: got %v, want %v", i, p.Metadata().Timestamp, specs[i].Time)
		}
		if p.NetworkLayer() == nil {
			t.Errorf("Packet %d has no network layer", i)
		}
	}

	if _, err := r.NextPacket(); err != io.EOF {
		t.Errorf("Expected io.EOF after the last packet, got %v", err)
	}
}

func TestOpenFile_Truncated(t *testing.T) {
	// 1. Cut the last record short
	specs := testutil.Conversation(5, time.Unix(1700000000, 0))
	path := testutil.WritePCAP(t, t.TempDir(), specs)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat fixture: %v", err)
	}
	if err := os.Truncate(path, info.Size()-10); err != nil {
		t.Fatalf("Failed to truncate fixture: %v", err)
	}

	r, err := OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open pcap file: %v", err)
	}
	defer r.Close()

	// 2. The complete packets still come back, followed by an error rather than io.EOF
	packets, err := ReadAll(r)
	if len(packets) != len(specs)-1 {
		t.Errorf("Expected %d complete packets, got %d", len(specs)-1, len(packets))
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
	var srcErr *model.CaptureSourceError
	if !errors.As(err, &srcErr) {
		t.Errorf("Expected a CaptureSourceError, got %T", err)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.pcap"))
	var srcErr *model.CaptureSourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected a CaptureSourceError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestNewReader_Corrupt(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("definitely not a capture file")), "upload")
	var srcErr *model.CaptureSourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected a CaptureSourceError, got %v", err)
	}
	if srcErr.Source != "upload" {
		t.Errorf("Source: got %q, want %q", srcErr.Source, "upload")
	}

	if _, err := NewReader(bytes.NewReader(nil), "empty"); err == nil {
		t.Error("Expected an error for an empty input")
	}
}

func TestNewReader_PcapNG(t *testing.T) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("Failed to create pcapng writer: %v", err)
	}

	specs := testutil.Conversation(3, time.Unix(1700000000, 0))
	for _, s := range specs {
		data := testutil.Frame(t, s)
		ci := gopacket.CaptureInfo{Timestamp: s.Time, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("Failed to write packet: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Failed to flush pcapng writer: %v", err)
	}

	r, err := NewReader(&buf, "capture.pcapng")
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	packets, err := ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(packets) != 3 {
		t.Errorf("Expected 3 packets, got %d", len(packets))
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSliceSource(t *testing.T) {
	packets := []gopacket.Packet{
		testutil.Packet(t, testutil.PacketSpec{Src: "10.0.0.1", Dst: "10.0.0.2", Proto: testutil.UDP, SrcPort: 1, DstPort: 2}),
		testutil.ARPPacket(t),
	}
	s := NewSliceSource("fixture", packets)
	if s.Describe() != "memory fixture" {
		t.Errorf("Describe: got %q", s.Describe())
	}

	p, err := s.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket failed: %v", err)
	}
	if p != packets[0] {
		t.Error("Expected the first packet back unchanged")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.NextPacket(); err != io.EOF {
		t.Errorf("Expected io.EOF after Close, got %v", err)
	}
}
