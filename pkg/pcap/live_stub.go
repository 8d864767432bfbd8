//go:build !pcap
// +build !pcap

package pcap

import (
	"RedWire/internal/model"

	"github.com/google/gopacket"
)

// Live is unavailable without the pcap build tag.
type Live struct{}

// OpenLive is a stub implementation when libpcap support is disabled.
func OpenLive(opts LiveOptions) (*Live, error) {
	return nil, &model.CaptureSourceError{Source: opts.Interface, Err: ErrLiveUnsupported}
}

func (l *Live) NextPacket() (gopacket.Packet, error) { return nil, ErrLiveUnsupported }
func (l *Live) Describe() string                     { return "live capture (disabled)" }
func (l *Live) Close() error                         { return nil }

// Interfaces is a stub implementation when libpcap support is disabled.
func Interfaces() ([]string, error) {
	return nil, ErrLiveUnsupported
}
