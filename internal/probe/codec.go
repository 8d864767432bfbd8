package probe

import (
	"RedWire/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is a decoded notification.
type Event struct {
	Kind   string
	Fields map[string]any
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

// DecodeEvent parses a message published on <prefix>.<kind>.
func DecodeEvent(kind string, data []byte) (Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
	}
	return Event{Kind: kind, Fields: st.AsMap()}, nil
}

func encodeRecord(rec model.PacketRecord) map[string]any {
	return map[string]any{
		"seq":           rec.Seq,
		"timestamp":     rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":        rec.Source,
		"destination":   rec.Destination,
		"protocol":      uint32(rec.Protocol),
		"protocol_name": rec.ProtocolName(),
		"length":        rec.Length,
		"summary":       rec.Summary,
	}
}

func encodePacket(rec model.PacketRecord) map[string]any {
	return encodeRecord(rec)
}

func encodeView(recs []model.PacketRecord) map[string]any {
	list := make([]any, len(recs))
	for i, r := range recs {
		list[i] = encodeRecord(r)
	}
	return map[string]any{"packets": list}
}

func encodeConversations(convs []model.ConversationSummary) map[string]any {
	list := make([]any, len(convs))
	for i, c := range convs {
		list[i] = map[string]any{
			"a":          c.Key.A,
			"b":          c.Key.B,
			"count":      c.Count,
			"bytes":      c.Bytes,
			"first_seen": c.FirstSeen.UTC().Format(time.RFC3339Nano),
			"last_seen":  c.LastSeen.UTC().Format(time.RFC3339Nano),
		}
	}
	return map[string]any{"conversations": list}
}

func encodeGraph(view model.GraphView) map[string]any {
	nodes := make([]any, len(view.Nodes))
	for i, n := range view.Nodes {
		nodes[i] = map[string]any{
			"address": n.Address,
			"degree":  n.Degree,
			"local":   n.Local,
		}
	}
	edges := make([]any, len(view.Edges))
	for i, e := range view.Edges {
		edges[i] = map[string]any{"a": e.A, "b": e.B}
	}
	return map[string]any{
		"scope": view.Scope,
		"title": view.Title,
		"nodes": nodes,
		"edges": edges,
	}
}
