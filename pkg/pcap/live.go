//go:build pcap
// +build pcap

package pcap

import (
	"RedWire/internal/model"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Live captures from a network interface through libpcap.
type Live struct {
	iface  string
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// OpenLive opens opts.Interface for capture. The read timeout bounds how long
// NextPacket blocks, so a stop request is noticed even on a quiet link.
func OpenLive(opts LiveOptions) (*Live, error) {
	opts = opts.withDefaults()
	if opts.Interface == "" {
		return nil, &model.CaptureSourceError{Source: "live", Err: fmt.Errorf("no interface configured")}
	}

	handle, err := pcap.OpenLive(opts.Interface, opts.SnapshotLen, opts.Promiscuous, opts.ReadTimeout)
	if err != nil {
		return nil, &model.CaptureSourceError{Source: opts.Interface, Err: err}
	}

	ps := gopacket.NewPacketSource(handle, handle.LinkType())
	return &Live{iface: opts.Interface, handle: handle, source: ps}, nil
}

// NextPacket returns the next captured packet, or (nil, nil) when the read
// timeout expired.
func (l *Live) NextPacket() (gopacket.Packet, error) {
	packet, err := l.source.NextPacket()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return packet, nil
}

func (l *Live) Describe() string {
	return "interface " + l.iface
}

func (l *Live) Close() error {
	l.handle.Close()
	return nil
}

// Interfaces lists the devices libpcap can capture from.
func Interfaces() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	return names, nil
}
