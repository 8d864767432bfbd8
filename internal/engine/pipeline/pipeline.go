// Package pipeline is the single mutation entry point for captured packets.
// It parses each packet, records it in the conversation store and the
// communication graph under one lock, and notifies observers in ingestion
// order.
package pipeline

import (
	"RedWire/internal/engine/conversation"
	"RedWire/internal/engine/graph"
	"RedWire/internal/engine/protocol"
	"RedWire/internal/model"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
)

// Stats are the ingestion counters and the current size of the state.
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Rejected      uint64 `json:"rejected"`
	Packets       int    `json:"packets"`
	Conversations int    `json:"conversations"`
	Hosts         int    `json:"hosts"`
	Edges         int    `json:"edges"`
}

// Pipeline owns the packet log, the conversation store, the communication
// graph and the selection focus.
type Pipeline struct {
	mu    sync.RWMutex
	store *conversation.Store
	graph *graph.Graph
	log   []model.PacketRecord
	focus *model.FlowKey
	local map[string]bool

	obsMu     sync.RWMutex
	observers map[int]model.Observer
	nextObs   int

	qmu      sync.Mutex
	queue    []event
	draining bool

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New creates an empty pipeline. Addresses in local are flagged as local
// hosts in graph views.
func New(local ...string) *Pipeline {
	p := &Pipeline{
		store:     conversation.NewStore(),
		graph:     graph.New(),
		local:     make(map[string]bool, len(local)),
		observers: make(map[int]model.Observer),
	}
	for _, addr := range local {
		if addr != "" {
			p.local[addr] = true
		}
	}
	return p
}

// Subscribe registers an observer and returns a function that removes it.
func (p *Pipeline) Subscribe(o model.Observer) (unsubscribe func()) {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = o
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

// Ingest parses one raw packet and, if it carries an IP layer, appends it to
// the packet log, its conversation and the graph. Malformed packets are
// returned as *model.MalformedPacketError and leave the state untouched.
func (p *Pipeline) Ingest(packet gopacket.Packet) (model.PacketRecord, error) {
	parsed, err := protocol.ParsePacket(packet)
	if err != nil {
		p.rejected.Add(1)
		return model.PacketRecord{}, err
	}

	p.mu.Lock()
	rec := *parsed
	rec.Seq = uint64(len(p.log)) + 1
	key := rec.FlowKey()

	p.log = append(p.log, rec)
	p.store.Record(key, rec)
	newEdge := p.graph.AddEdge(rec.Source, rec.Destination)
	p.accepted.Add(1)

	if p.hasObservers() {
		if p.focus == nil || *p.focus == key {
			p.enqueue(event{kind: eventPacket, rec: rec})
		}
		p.enqueue(event{kind: eventConversations, convs: p.store.Summaries()})
		if newEdge && p.focus == nil {
			p.enqueue(event{kind: eventGraph, view: p.wholeViewLocked()})
		}
	}
	p.mu.Unlock()

	p.drain()
	return rec, nil
}

// Select focuses the displayed view on one conversation. Packets for other
// conversations are still recorded but are no longer pushed to observers.
func (p *Pipeline) Select(key model.FlowKey) error {
	key = model.NewFlowKey(key.A, key.B)

	p.mu.Lock()
	st, ok := p.store.Get(key)
	if !ok {
		p.mu.Unlock()
		return model.ErrUnknownConversation
	}
	p.focus = &key
	if p.hasObservers() {
		p.enqueue(event{kind: eventReset, recs: st.Packets})
		p.enqueue(event{kind: eventGraph, view: p.conversationViewLocked(key)})
	}
	p.mu.Unlock()

	p.drain()
	return nil
}

// ClearSelection restores the unfiltered view.
func (p *Pipeline) ClearSelection() {
	p.mu.Lock()
	p.focus = nil
	if p.hasObservers() {
		p.enqueue(event{kind: eventReset, recs: p.packetsLocked()})
		p.enqueue(event{kind: eventGraph, view: p.wholeViewLocked()})
	}
	p.mu.Unlock()

	p.drain()
}

// Selection returns the focused conversation, if any.
func (p *Pipeline) Selection() (model.FlowKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.focus == nil {
		return model.FlowKey{}, false
	}
	return *p.focus, true
}

// Clear drops every packet, conversation and edge, removes the focus and
// resets the counters. The next accepted packet gets sequence number 1.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.store.Clear()
	p.graph.Clear()
	p.log = nil
	p.focus = nil
	p.accepted.Store(0)
	p.rejected.Store(0)
	if p.hasObservers() {
		p.enqueue(event{kind: eventReset})
		p.enqueue(event{kind: eventConversations, convs: p.store.Summaries()})
		p.enqueue(event{kind: eventGraph, view: p.wholeViewLocked()})
	}
	p.mu.Unlock()

	p.drain()
}

// Packets returns the whole packet log in ingestion order.
func (p *Pipeline) Packets() []model.PacketRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.packetsLocked()
}

// DisplayedPackets returns the packets of the focused conversation, or the
// whole log when nothing is selected.
func (p *Pipeline) DisplayedPackets() []model.PacketRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.focus != nil {
		st, _ := p.store.Get(*p.focus)
		return st.Packets
	}
	return p.packetsLocked()
}

// Conversations returns every conversation sorted by descending count.
func (p *Pipeline) Conversations() []model.Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.AllSortedByCount()
}

// Summaries returns the conversation list without packets.
func (p *Pipeline) Summaries() []model.ConversationSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.Summaries()
}

// Conversation returns the state of one conversation.
func (p *Pipeline) Conversation(key model.FlowKey) (model.ConversationState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store.Get(model.NewFlowKey(key.A, key.B))
}

// GraphView returns the graph for the current scope: the focused
// conversation or the whole graph.
func (p *Pipeline) GraphView() model.GraphView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.focus != nil {
		return p.conversationViewLocked(*p.focus)
	}
	return p.wholeViewLocked()
}

// LaidOutGraphView is GraphView with node positions filled in. The view is
// taken when the call begins; the layout itself runs without the pipeline
// lock so ingestion is not held up by it.
func (p *Pipeline) LaidOutGraphView(opts graph.LayoutOptions) model.GraphView {
	p.mu.RLock()
	if p.focus != nil {
		defer p.mu.RUnlock()
		return p.conversationViewLocked(*p.focus)
	}
	view := p.wholeViewLocked()
	p.mu.RUnlock()

	view.Nodes = graph.Place(view.Nodes, graph.Layout(p.graph, opts))
	return view
}

// Degree returns the number of distinct peers of addr.
func (p *Pipeline) Degree(addr string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph.Degree(addr)
}

// Snapshot copies the aggregate state for export.
func (p *Pipeline) Snapshot() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return model.Snapshot{
		Taken:         time.Now(),
		Conversations: p.store.Summaries(),
		Nodes:         p.graph.NodeData(p.isLocal),
		Edges:         p.graph.Edges(),
	}
}

// Stats returns the counters since the last Clear. Rejected counts packets
// without an IP layer; they are reported only here and never reach the log,
// the conversations or the graph.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Accepted:      p.accepted.Load(),
		Rejected:      p.rejected.Load(),
		Packets:       len(p.log),
		Conversations: p.store.Len(),
		Hosts:         p.graph.NodeCount(),
		Edges:         p.graph.EdgeCount(),
	}
}

func (p *Pipeline) packetsLocked() []model.PacketRecord {
	out := make([]model.PacketRecord, len(p.log))
	copy(out, p.log)
	return out
}

func (p *Pipeline) isLocal(addr string) bool {
	return p.local[addr]
}

func (p *Pipeline) wholeViewLocked() model.GraphView {
	return model.GraphView{
		Scope: model.ScopeAll,
		Title: model.GraphTitle(nil),
		Nodes: p.graph.NodeData(p.isLocal),
		Edges: p.graph.Edges(),
	}
}

func (p *Pipeline) conversationViewLocked(key model.FlowKey) model.GraphView {
	sub := p.graph.InducedSubgraph([]string{key.A, key.B})
	return model.GraphView{
		Scope: model.ScopeConversation,
		Title: model.GraphTitle(&key),
		Nodes: graph.Place(sub.NodeData(p.isLocal), graph.PairLayout(key)),
		Edges: sub.Edges(),
	}
}
