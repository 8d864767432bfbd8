package main

import (
	"RedWire/internal/config"
	"RedWire/internal/engine/manager"
	"RedWire/internal/export"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
)

func main() {
	// 1. Parse command-line arguments
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	csvPath := flag.String("csv", "", "Write the packet log to this CSV file.")
	top := flag.Int("top", 20, "Number of conversations to print.")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./cmd/pcap-analyzer [-csv out.csv] [-top N] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 3. Initialize modules
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	mgr.Start()
	log.Println("Manager started.")

	// 4. Replay the file through the pipeline
	log.Printf("Reading packets from '%s'...", pcapFilePath)
	if err := mgr.LoadFile(pcapFilePath); err != nil {
		log.Fatalf("Failed to load pcap file: %v", err)
	}
	st := mgr.Session().Status()
	log.Printf("Finished reading %d packets (%d accepted, %d rejected).", st.Received, st.Accepted, st.Rejected)

	// 5. Report
	p := mgr.Pipeline()
	stats := p.Stats()
	fmt.Printf("%d packets, %d conversations, %d hosts\n\n", stats.Packets, stats.Conversations, stats.Hosts)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tPACKETS\tBYTES\tFIRST SEEN\tLAST SEEN")
	for i, c := range p.Summaries() {
		if i == *top {
			break
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", c.Key, c.Count, c.Bytes,
			c.FirstSeen.Format("15:04:05.000"), c.LastSeen.Format("15:04:05.000"))
	}
	tw.Flush()

	if *csvPath != "" {
		if err := export.WriteCSVFile(*csvPath, p.Packets()); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		log.Printf("Packet log written to %s.", *csvPath)
	}

	// 6. Graceful shutdown
	log.Println("Shutting down manager...")
	mgr.Stop()
	log.Println("Shutdown complete.")
}
