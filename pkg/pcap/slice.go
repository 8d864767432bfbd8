package pcap

import (
	"io"
	"sync"

	"github.com/google/gopacket"
)

// SliceSource replays packets held in memory.
type SliceSource struct {
	name    string
	mu      sync.Mutex
	packets []gopacket.Packet
	pos     int
	closed  bool
}

// NewSliceSource returns a source yielding packets in order.
func NewSliceSource(name string, packets []gopacket.Packet) *SliceSource {
	return &SliceSource{name: name, packets: packets}
}

func (s *SliceSource) NextPacket() (gopacket.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.packets) {
		return nil, io.EOF
	}
	p := s.packets[s.pos]
	s.pos++
	return p, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *SliceSource) Describe() string {
	return "memory " + s.name
}
