package probe

import (
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

// EventHandler is a function that processes a received Event.
type EventHandler func(ev Event)

// Subscriber is responsible for subscribing to the event subjects and processing messages.
type Subscriber struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(url, prefix string) (*Subscriber, error) {
	nc, err := nats.Connect(url, nats.Name("redwire-watch"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Subscriber{nc: nc, prefix: prefix}, nil
}

// Start subscribes to every event kind and hands decoded events to handler.
func (s *Subscriber) Start(handler EventHandler) error {
	subject := s.prefix + ".>"
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := DecodeEvent(KindFromSubject(msg.Subject), msg.Data)
		if err != nil {
			log.Printf("Error decoding event: %v", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", subject)
	return nil
}

// KindFromSubject returns the last token of subject.
func KindFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
