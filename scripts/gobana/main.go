package main

import (
	"RedWire/internal/export"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	convs, summary, err := export.ReadGobSnapshot(dir)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}

	fmt.Printf("Snapshot %s: %d conversations, %d packets, %d bytes, %d hosts\n",
		dir, summary.Conversations, summary.TotalPackets, summary.TotalBytes, summary.Hosts)
	fmt.Println("Decoded Conversations:")
	for _, c := range convs {
		fmt.Printf("%-40s packets=%-8d bytes=%-10d first=%s last=%s\n",
			c.Key, c.Count, c.Bytes, c.FirstSeen.Format("15:04:05"), c.LastSeen.Format("15:04:05"))
	}
}
