package manager

import (
	"RedWire/internal/config"
	"RedWire/internal/engine/capture"
	"RedWire/internal/engine/pipeline"
	"RedWire/internal/export"
	"RedWire/internal/factory"
	"RedWire/internal/model"
	"RedWire/pkg/pcap"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// Manager owns the ingestion pipeline, the capture session feeding it and
// the snapshot writers exporting it.
type Manager struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	session  *capture.Session
	writers  []model.Writer

	// captureMu serializes starting and loading captures so a load never
	// clears state under a capture started concurrently.
	captureMu sync.Mutex

	done          chan struct{}
	snapshotterWg sync.WaitGroup
	stopOnce      sync.Once
}

// NewManager creates a new Manager.
func NewManager(cfg *config.Config) (*Manager, error) {
	writers, err := factory.CreateWriters(cfg)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, writers), nil
}

func newManager(cfg *config.Config, writers []model.Writer) *Manager {
	local := cfg.Pipeline.LocalAddresses
	if len(local) == 0 {
		addr, err := detectLocalAddress()
		if err != nil {
			log.Printf("Could not detect the local address, no host will be marked local: %v", err)
		} else {
			log.Printf("Detected local address %s.", addr)
			local = []string{addr}
		}
	}
	p := pipeline.New(local...)
	return &Manager{
		cfg:      cfg,
		pipeline: p,
		session:  capture.NewSession(p, cfg.Capture.StopTimeoutDuration()),
		writers:  writers,
		done:     make(chan struct{}),
	}
}

var dialUDP = net.Dial

// detectLocalAddress returns the address of the interface holding the
// default route. Connecting a UDP socket sends nothing.
func detectLocalAddress() (string, error) {
	conn, err := dialUDP("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address " + conn.LocalAddr().String())
	}
	return addr.IP.String(), nil
}

// Pipeline returns the ingestion pipeline.
func (m *Manager) Pipeline() *pipeline.Pipeline {
	return m.pipeline
}

// Session returns the capture session.
func (m *Manager) Session() *capture.Session {
	return m.session
}

// Start launches one snapshotter per writer.
func (m *Manager) Start() {
	for _, writer := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(writer)
		log.Printf("Started snapshotter for a writer with interval %s.", writer.GetInterval())
	}
	log.Printf("Manager started with %d writers.", len(m.writers))
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
func (m *Manager) runSnapshotter(writer model.Writer) {
	defer m.snapshotterWg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, snapshotter will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(writer)
		case <-m.done:
			m.takeSnapshotForWriter(writer)
			return
		}
	}
}

// takeSnapshotForWriter copies the current state and hands it to writer.
func (m *Manager) takeSnapshotForWriter(writer model.Writer) {
	snapshot := m.pipeline.Snapshot()
	timestamp := snapshot.Taken.Format(export.TimestampLayout)
	if err := writer.Write(snapshot, timestamp); err != nil {
		log.Printf("Error writing snapshot at %s: %v", timestamp, err)
		return
	}
	log.Printf("Completed snapshot at %s with %d conversations.", timestamp, len(snapshot.Conversations))
}

// StartLive begins capturing from iface, or the configured interface when
// iface is empty.
func (m *Manager) StartLive(iface string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if iface == "" {
		iface = m.cfg.Capture.Interface
	}
	src, err := pcap.OpenLive(pcap.LiveOptions{
		Interface:   iface,
		SnapshotLen: m.cfg.Capture.SnapshotLen,
		Promiscuous: m.cfg.Capture.Promiscuous,
		ReadTimeout: m.cfg.Capture.ReadTimeoutDuration(),
	})
	if err != nil {
		return err
	}
	return m.start(src)
}

// StartReplay replays a capture file on the background worker.
func (m *Manager) StartReplay(path string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	src, err := pcap.OpenFile(path)
	if err != nil {
		return err
	}
	return m.start(src)
}

func (m *Manager) start(src capture.Source) error {
	if err := m.session.Start(src); err != nil {
		src.Close()
		return err
	}
	return nil
}

// LoadFile clears the current state and replays path synchronously. A file
// that ends inside a packet record fails with a *model.CaptureSourceError
// after the complete packets before it have been ingested.
func (m *Manager) LoadFile(path string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if m.session.State() != capture.Idle {
		return model.ErrAlreadyRunning
	}
	src, err := pcap.OpenFile(path)
	if err != nil {
		return err
	}
	return m.load(src)
}

// LoadReader is LoadFile for a capture held in r, such as an upload.
func (m *Manager) LoadReader(r io.Reader, name string) error {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if m.session.State() != capture.Idle {
		return model.ErrAlreadyRunning
	}
	src, err := pcap.NewReader(r, name)
	if err != nil {
		return err
	}
	return m.load(src)
}

func (m *Manager) load(src capture.Source) error {
	m.pipeline.Clear()
	if err := m.session.Replay(src); err != nil {
		if errors.Is(err, model.ErrAlreadyRunning) {
			src.Close()
		}
		return err
	}
	return nil
}

// StopCapture stops the running capture.
func (m *Manager) StopCapture() error {
	return m.session.Stop()
}

// Stop gracefully shuts down the manager.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		log.Println("Manager stopping...")
		// 1. Stop the capture worker, if any.
		if err := m.session.Stop(); err != nil && !errors.Is(err, model.ErrNotRunning) {
			log.Printf("Error stopping capture: %v", err)
		}

		// 2. Signal snapshotters to take a final snapshot and exit.
		close(m.done)
		log.Println("Waiting for snapshotters to finish...")
		m.snapshotterWg.Wait()

		log.Println("Manager stopped.")
	})
}
