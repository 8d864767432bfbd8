// Package capture runs packet sources through the ingestion pipeline, either
// on a background worker (live capture) or in the caller's goroutine (replay).
package capture

import (
	"RedWire/internal/model"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/uuid"
)

// DefaultStopTimeout bounds how long Stop waits for the worker to exit.
const DefaultStopTimeout = time.Second

const progressEvery = 10000

// State is the lifecycle state of a Session.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Running, Stopping, Stopped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown capture state %q", text)
}

// Source yields raw packets. NextPacket returns io.EOF when the source is
// exhausted and (nil, nil) when a read timed out without a packet, which
// gives the worker a chance to observe a stop request.
type Source interface {
	NextPacket() (gopacket.Packet, error)
	Close() error
	Describe() string
}

// Ingester consumes one raw packet.
type Ingester interface {
	Ingest(packet gopacket.Packet) (model.PacketRecord, error)
}

// Status describes the current or most recent run.
type Status struct {
	State     State     `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Started   time.Time `json:"started,omitzero"`
	Finished  time.Time `json:"finished,omitzero"`
	Received  uint64    `json:"received"`
	Accepted  uint64    `json:"accepted"`
	Rejected  uint64    `json:"rejected"`
	LastError error     `json:"-"`
}

type run struct {
	id      string
	src     Source
	started time.Time
	stop    atomic.Bool
	done    chan struct{}

	received atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

func (r *run) status(state State) Status {
	return Status{
		State:    state,
		RunID:    r.id,
		Source:   r.src.Describe(),
		Started:  r.started,
		Received: r.received.Load(),
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
	}
}

// Session drives at most one run at a time.
type Session struct {
	ingester    Ingester
	stopTimeout time.Duration

	mu      sync.Mutex
	state   State
	current *run
	last    Status

	hookMu  sync.RWMutex
	onState func(State)
}

// NewSession creates an idle session feeding ingester. A non-positive
// stopTimeout selects DefaultStopTimeout.
func NewSession(ingester Ingester, stopTimeout time.Duration) *Session {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Session{ingester: ingester, stopTimeout: stopTimeout}
}

// OnStateChange registers a hook called after every state transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.hookMu.Lock()
	s.onState = fn
	s.hookMu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports the current run, or the last finished one when idle.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current.status(s.state)
	}
	st := s.last
	st.State = s.state
	return st
}

// Start begins ingesting from src on a background worker. The session takes
// ownership of src and closes it when the run ends.
func (s *Session) Start(src Source) error {
	r, err := s.begin(src)
	if err != nil {
		return err
	}
	log.Printf("Capture %s started on %s.", r.id, src.Describe())
	go func() {
		s.finish(r, s.loop(r))
	}()
	return nil
}

// Replay ingests src in the calling goroutine until it is exhausted or Stop
// is called. Replay and Start use the same ingestion loop.
func (s *Session) Replay(src Source) error {
	r, err := s.begin(src)
	if err != nil {
		return err
	}
	log.Printf("Replay %s started from %s.", r.id, src.Describe())
	err = s.loop(r)
	s.finish(r, err)
	return err
}

// Stop asks the running worker to exit after the packet it is handling and
// waits up to the stop timeout. If the worker has not exited by then the
// session is marked Stopped and ErrStopTimeout is returned; the worker
// returns the session to Idle once it finally exits.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Running || s.current == nil {
		s.mu.Unlock()
		return model.ErrNotRunning
	}
	r := s.current
	r.stop.Store(true)
	s.state = Stopping
	s.mu.Unlock()
	s.notify(Stopping)

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-timer.C:
	}

	s.mu.Lock()
	marked := s.current == r && s.state == Stopping
	if marked {
		s.state = Stopped
	}
	s.mu.Unlock()
	if !marked {
		return nil
	}
	s.notify(Stopped)
	log.Printf("Capture %s did not stop within %s.", r.id, s.stopTimeout)
	return model.ErrStopTimeout
}

// Done returns a channel closed when the current run ends. It is already
// closed when no run is active.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.current.done
}

func (s *Session) begin(src Source) (*run, error) {
	if src == nil {
		return nil, &model.CaptureSourceError{Source: "<nil>", Err: errors.New("no packet source")}
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil, model.ErrAlreadyRunning
	}
	r := &run{
		id:      uuid.NewString(),
		src:     src,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.current = r
	s.state = Running
	s.mu.Unlock()

	s.notify(Running)
	return r, nil
}

// loop feeds packets until the source ends, fails or a stop is requested.
// The stop flag is checked between packets, never during one.
func (s *Session) loop(r *run) error {
	for !r.stop.Load() {
		packet, err := r.src.NextPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &model.CaptureSourceError{Source: r.src.Describe(), Err: err}
		}
		if packet == nil {
			continue
		}

		n := r.received.Add(1)
		if _, err := s.ingester.Ingest(packet); err != nil {
			r.rejected.Add(1)
		} else {
			r.accepted.Add(1)
		}
		if n%progressEvery == 0 {
			log.Printf("Capture %s: %d packets received, %d rejected.", r.id, n, r.rejected.Load())
		}
	}
	return nil
}

func (s *Session) finish(r *run, err error) {
	if cerr := r.src.Close(); cerr != nil {
		log.Printf("Error closing %s: %v", r.src.Describe(), cerr)
	}

	s.mu.Lock()
	st := r.status(Idle)
	st.Finished = time.Now()
	st.LastError = err
	s.last = st
	if s.current == r {
		s.current = nil
		s.state = Idle
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("Capture %s ended with error: %v", r.id, err)
	} else {
		log.Printf("Capture %s finished: %d packets received, %d accepted, %d rejected.", r.id, st.Received, st.Accepted, st.Rejected)
	}
	s.notify(Idle)
	close(r.done)
}

func (s *Session) notify(state State) {
	s.hookMu.RLock()
	fn := s.onState
	s.hookMu.RUnlock()
	if fn != nil {
		fn(state)
	}
}
