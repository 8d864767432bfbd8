// Package pcap provides packet sources for capture sessions: stored capture
// files read with the pure-Go pcapgo readers, live interfaces through libpcap
// (built with -tags pcap), and in-memory packet slices.
package pcap

import (
	"RedWire/internal/model"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng files start with a section header block.
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader replays the packets of a capture file in file order.
type Reader struct {
	name   string
	closer io.Closer
	source *gopacket.PacketSource
	link   layers.LinkType
}

// OpenFile opens a classic pcap or pcapng file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.CaptureSourceError{Source: path, Err: err}
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a capture from r, e.g. an uploaded file. name is used in
// logs and errors.
func NewReader(r io.Reader, name string) (*Reader, error) {
	return newReader(r, name)
}

func newReader(r io.Reader, name string) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, &model.CaptureSourceError{Source: name, Err: fmt.Errorf("reading capture header: %w", err)}
	}

	var src packetDataSource
	if bytes.Equal(magic, ngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, &model.CaptureSourceError{Source: name, Err: err}
	}

	ps := gopacket.NewPacketSource(src, src.LinkType())
	ps.DecodeOptions = gopacket.DecodeOptions{NoCopy: true}
	return &Reader{name: name, source: ps, link: src.LinkType()}, nil
}

// NextPacket returns the next packet, or io.EOF at the end of the file.
// A file cut short inside a record yields io.ErrUnexpectedEOF.
func (r *Reader) NextPacket() (gopacket.Packet, error) {
	packet, err := r.source.NextPacket()
	if err != nil {
		return nil, err
	}
	return packet, nil
}

// LinkType returns the link layer type recorded in the file header.
func (r *Reader) LinkType() layers.LinkType {
	return r.link
}

// Describe names the file being read.
func (r *Reader) Describe() string {
	return "file " + r.name
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadAll drains r and returns every packet.
func ReadAll(r *Reader) ([]gopacket.Packet, error) {
	var out []gopacket.Packet
	for {
		packet, err := r.NextPacket()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, &model.CaptureSourceError{Source: r.name, Err: err}
		}
		out = append(out, packet)
	}
}
