package main

import (
	"RedWire/internal/config"
	"RedWire/internal/probe"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	url := flag.String("nats", "", "NATS URL; overrides the configuration.")
	packets := flag.Bool("packets", false, "Print every packet event, not only list and graph updates.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	natsURL := cfg.NATS.URL
	if *url != "" {
		natsURL = *url
	}

	log.Printf("Watching %s.> on %s...", cfg.NATS.SubjectPrefix, natsURL)
	sub, err := probe.NewSubscriber(natsURL, cfg.NATS.SubjectPrefix)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(ev probe.Event) {
		switch ev.Kind {
		case probe.KindPacket:
			if *packets {
				log.Printf("#%v %v", ev.Fields["seq"], ev.Fields["summary"])
			}
		case probe.KindConversations:
			list, _ := ev.Fields["conversations"].([]any)
			log.Printf("Conversations: %d", len(list))
		case probe.KindGraph:
			nodes, _ := ev.Fields["nodes"].([]any)
			edges, _ := ev.Fields["edges"].([]any)
			log.Printf("Graph %v: %d hosts, %d links", ev.Fields["title"], len(nodes), len(edges))
		case probe.KindView:
			list, _ := ev.Fields["packets"].([]any)
			log.Printf("View reset: %d packets", len(list))
		default:
			log.Printf("Unknown event %s: %v", ev.Kind, ev.Fields)
		}
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Failed to start subscriber: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down subscriber...")
}
