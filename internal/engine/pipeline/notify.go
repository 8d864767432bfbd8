package pipeline

import (
	"RedWire/internal/model"
	"sort"
)

type eventKind int

const (
	eventPacket eventKind = iota
	eventConversations
	eventGraph
	eventReset
)

type event struct {
	kind  eventKind
	rec   model.PacketRecord
	convs []model.ConversationSummary
	view  model.GraphView
	recs  []model.PacketRecord
}

func (p *Pipeline) hasObservers() bool {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	return len(p.observers) > 0
}

// enqueue must be called with p.mu held so the queue follows mutation order.
func (p *Pipeline) enqueue(ev event) {
	p.qmu.Lock()
	p.queue = append(p.queue, ev)
	p.qmu.Unlock()
}

// drain delivers queued events. Only one goroutine delivers at a time; a
// caller that finds delivery in progress leaves its events to that
// goroutine. Observers may therefore call back into the pipeline.
func (p *Pipeline) drain() {
	p.qmu.Lock()
	if p.draining {
		p.qmu.Unlock()
		return
	}
	p.draining = true
	for len(p.queue) > 0 {
		batch := p.queue
		p.queue = nil
		p.qmu.Unlock()

		observers := p.snapshotObservers()
		for _, ev := range batch {
			for _, o := range observers {
				deliver(o, ev)
			}
		}

		p.qmu.Lock()
	}
	p.draining = false
	p.qmu.Unlock()
}

func (p *Pipeline) snapshotObservers() []model.Observer {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()

	ids := make([]int, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]model.Observer, len(ids))
	for i, id := range ids {
		out[i] = p.observers[id]
	}
	return out
}

func deliver(o model.Observer, ev event) {
	switch ev.kind {
	case eventPacket:
		o.PacketAppended(ev.rec)
	case eventConversations:
		o.ConversationsChanged(ev.convs)
	case eventGraph:
		o.GraphChanged(ev.view)
	case eventReset:
		o.ViewReset(ev.recs)
	}
}
