package main

import (
	"RedWire/internal/engine/protocol"
	"RedWire/pkg/pcap"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

func main() {
	limit := flag.Int("n", 5, "Number of packets to dump")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go [-n N] <path_to_pcap_file>")
		os.Exit(1)
	}

	reader, err := pcap.OpenFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	fmt.Printf("Link type: %s\n", reader.LinkType())

	for i := 0; i < *limit; i++ {
		packet, err := reader.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("==== Packet %d ====\n", i+1)
		for _, layer := range packet.Layers() {
			fmt.Println("Layer:", layer.LayerType())
		}
		rec, err := protocol.ParsePacket(packet)
		if err != nil {
			fmt.Println("Rejected:", err)
			continue
		}
		fmt.Printf("%s -> %s %s len=%d\n%s\n", rec.Source, rec.Destination, rec.ProtocolName(), rec.Length, rec.Summary)
	}
}
