package model

import (
	"strconv"
	"time"
)

// protocolNames maps IP protocol numbers to the names shown in the packet view.
var protocolNames = map[uint8]string{
	1:  "ICMP",
	6:  "TCP",
	17: "UDP",
}

// ProtocolName returns the display name for an IP protocol number,
// falling back to the decimal value for protocols without a name.
func ProtocolName(proto uint8) string {
	if name, ok := protocolNames[proto]; ok {
		return name
	}
	return strconv.Itoa(int(proto))
}

// PacketRecord is the normalized form of one accepted packet.
// Records are values and are never modified after ingestion.
type PacketRecord struct {
	Seq         uint64    `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Protocol    uint8     `json:"protocol"`
	Length      int       `json:"length"`
	Summary     string    `json:"summary"`
}

// ProtocolName returns the display name of the record's transport protocol.
func (r PacketRecord) ProtocolName() string {
	return ProtocolName(r.Protocol)
}

// FlowKey returns the conversation key the record belongs to.
func (r PacketRecord) FlowKey() FlowKey {
	return NewFlowKey(r.Source, r.Destination)
}

// FlowKey identifies a conversation independently of packet direction.
// A is always lexicographically less than or equal to B.
type FlowKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewFlowKey builds the canonical key for a pair of addresses.
func NewFlowKey(x, y string) FlowKey {
	if y < x {
		x, y = y, x
	}
	return FlowKey{A: x, B: y}
}

func (k FlowKey) String() string {
	return k.A + " <-> " + k.B
}

// Contains reports whether addr is one of the key's endpoints.
func (k FlowKey) Contains(addr string) bool {
	return k.A == addr || k.B == addr
}

// IsLoop reports whether both endpoints are the same address.
func (k FlowKey) IsLoop() bool {
	return k.A == k.B
}

// ConversationState is the aggregate of all packets seen for one FlowKey.
// Count always equals len(Packets).
type ConversationState struct {
	Count     int            `json:"count"`
	Bytes     uint64         `json:"bytes"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
	Packets   []PacketRecord `json:"packets"`
}

// Conversation pairs a key with its state.
type Conversation struct {
	Key   FlowKey           `json:"key"`
	State ConversationState `json:"state"`
}

// ConversationSummary is the packet-free projection of a conversation used
// for list notifications and exports.
type ConversationSummary struct {
	Key       FlowKey   `json:"key"`
	Count     int       `json:"count"`
	Bytes     uint64    `json:"bytes"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Summary drops the packet list from a conversation.
func (c Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		Key:       c.Key,
		Count:     c.State.Count,
		Bytes:     c.State.Bytes,
		FirstSeen: c.State.FirstSeen,
		LastSeen:  c.State.LastSeen,
	}
}

// Graph view scopes.
const (
	ScopeAll          = "all"
	ScopeConversation = "conversation"
)

const overallGraphTitle = "Overall Network Communication Map"

// GraphNode is one host in a graph view. X and Y are only set by a layout pass.
type GraphNode struct {
	Address string  `json:"address"`
	Degree  int     `json:"degree"`
	Local   bool    `json:"local"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// GraphView is the node/edge data needed to draw either the whole
// communication graph or a single conversation.
type GraphView struct {
	Scope string      `json:"scope"`
	Title string      `json:"title"`
	Nodes []GraphNode `json:"nodes"`
	Edges []FlowKey   `json:"edges"`
}

// GraphTitle returns the heading for a view: the overall map when focus is
// nil, otherwise the diagram of the focused conversation.
func GraphTitle(focus *FlowKey) string {
	if focus == nil {
		return overallGraphTitle
	}
	return "Diagram: " + focus.String()
}

// Snapshot is a point-in-time copy of the aggregate state handed to writers.
type Snapshot struct {
	Taken         time.Time             `json:"taken"`
	Conversations []ConversationSummary `json:"conversations"`
	Nodes         []GraphNode           `json:"nodes"`
	Edges         []FlowKey             `json:"edges"`
}
