package pcap

import (
	"errors"
	"time"
)

// ErrLiveUnsupported is returned by OpenLive in builds without libpcap.
var ErrLiveUnsupported = errors.New("live capture not enabled: rebuild with -tags=pcap")

// LiveOptions configures a live capture handle.
type LiveOptions struct {
	Interface   string
	SnapshotLen int32
	Promiscuous bool
	ReadTimeout time.Duration
}

func (o LiveOptions) withDefaults() LiveOptions {
	if o.SnapshotLen <= 0 {
		o.SnapshotLen = 1600
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 500 * time.Millisecond
	}
	return o
}
