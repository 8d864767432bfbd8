// Package conversation keeps the per-conversation packet logs and the
// counters derived from them.
package conversation

import (
	"RedWire/internal/model"
	"sort"
	"sync"
)

type entry struct {
	state model.ConversationState
	order int // creation order, used to break count ties
}

// Store maps flow keys to their conversation state. Entries are created on
// the first packet for a key and only removed by Clear. All methods are safe
// for concurrent use and never hand out internal slices.
type Store struct {
	mu      sync.RWMutex
	entries map[model.FlowKey]*entry
	created int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[model.FlowKey]*entry)}
}

// Record appends rec to the conversation identified by key, creating it if
// needed. Count and packet list are updated together under the same lock.
func (s *Store) Record(key model.FlowKey, rec model.PacketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{
			state: model.ConversationState{FirstSeen: rec.Timestamp},
			order: s.created,
		}
		s.created++
		s.entries[key] = e
	}

	st := &e.state
	st.Packets = append(st.Packets, rec)
	st.Count = len(st.Packets)
	st.Bytes += uint64(rec.Length)
	if rec.Timestamp.Before(st.FirstSeen) {
		st.FirstSeen = rec.Timestamp
	}
	if rec.Timestamp.After(st.LastSeen) {
		st.LastSeen = rec.Timestamp
	}
}

// Get returns a copy of the state for key.
func (s *Store) Get(key model.FlowKey) (model.ConversationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return model.ConversationState{}, false
	}
	return copyState(e.state), true
}

// AllSortedByCount returns every conversation ordered by descending packet
// count. Conversations with equal counts keep the order in which they were
// first seen.
func (s *Store) AllSortedByCount() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]model.Conversation, len(sorted))
	for i, k := range sorted {
		out[i] = model.Conversation{Key: k, State: copyState(s.entries[k].state)}
	}
	return out
}

// Summaries is AllSortedByCount without the packet lists.
func (s *Store) Summaries() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]model.ConversationSummary, len(sorted))
	for i, k := range sorted {
		st := s.entries[k].state
		out[i] = model.ConversationSummary{
			Key:       k,
			Count:     st.Count,
			Bytes:     st.Bytes,
			FirstSeen: st.FirstSeen,
			LastSeen:  st.LastSeen,
		}
	}
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every conversation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[model.FlowKey]*entry)
	s.created = 0
}

// keysLocked returns the flow keys in first-seen order.
func (s *Store) keysLocked() []model.FlowKey {
	keys := make([]model.FlowKey, len(s.entries))
	for k, e := range s.entries {
		keys[e.order] = k
	}
	return keys
}

func (s *Store) sortedLocked() []model.FlowKey {
	keys := s.keysLocked()
	sort.SliceStable(keys, func(i, j int) bool {
		return s.entries[keys[i]].state.Count > s.entries[keys[j]].state.Count
	})
	return keys
}

func copyState(st model.ConversationState) model.ConversationState {
	out := st
	out.Packets = make([]model.PacketRecord, len(st.Packets))
	copy(out.Packets, st.Packets)
	return out
}
