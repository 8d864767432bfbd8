package probe

import (
	"RedWire/internal/model"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
)

// Event kinds, used as the last token of the subject.
const (
	KindPacket        = "packet"
	KindConversations = "conversations"
	KindGraph         = "graph"
	KindView          = "view"
)

// Conn is the subset of *nats.Conn used by the publisher.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards pipeline notifications to NATS. It implements
// model.Observer; each notification becomes one message on
// <prefix>.<kind> carrying a protobuf Struct.
type Publisher struct {
	nc     Conn
	raw    *nats.Conn
	prefix string
	failed atomic.Uint64
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("redwire"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Publisher{nc: nc, raw: nc, prefix: prefix}, nil
}

// NewPublisherWithConn publishes through an existing connection.
func NewPublisherWithConn(nc Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the subject events of kind are published on.
func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// Failed returns how many events could not be published.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

func (p *Publisher) PacketAppended(rec model.PacketRecord) {
	p.publish(KindPacket, encodePacket(rec))
}

func (p *Publisher) ConversationsChanged(convs []model.ConversationSummary) {
	p.publish(KindConversations, encodeConversations(convs))
}

func (p *Publisher) GraphChanged(view model.GraphView) {
	p.publish(KindGraph, encodeGraph(view))
}

func (p *Publisher) ViewReset(recs []model.PacketRecord) {
	p.publish(KindView, encodeView(recs))
}

// publish serializes fields to Protobuf and publishes them. Errors are
// counted and logged; they never reach the pipeline.
func (p *Publisher) publish(kind string, fields map[string]any) {
	st, err := toStruct(fields)
	if err != nil {
		p.fail(kind, err)
		return
	}
	data, err := proto.Marshal(st)
	if err != nil {
		p.fail(kind, err)
		return
	}
	if err := p.nc.Publish(p.Subject(kind), data); err != nil {
		p.fail(kind, err)
	}
}

func (p *Publisher) fail(kind string, err error) {
	if n := p.failed.Add(1); n == 1 || n%1000 == 0 {
		log.Printf("Failed to publish %s event (%d failures so far): %v", kind, n, err)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.raw != nil {
		p.raw.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
