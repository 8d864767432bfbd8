package export

import (
	"RedWire/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	conversationsFile = "conversations.dat"
	summaryFile       = "summary.json"
)

// SummaryData holds the metadata for a snapshot, internal to the writer.
type SummaryData struct {
	Conversations int    `json:"conversations"`
	TotalPackets  uint64 `json:"total_packets"`
	TotalBytes    uint64 `json:"total_bytes"`
	Hosts         int    `json:"hosts"`
	Edges         int    `json:"edges"`
	Timestamp     string `json:"timestamp"`
}

// GobWriter handles writing conversation snapshots to disk in gob format.
// It implements the model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new writer rooted at rootPath.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write stores the snapshot under <root>/<timestamp>/. Empty snapshots are skipped.
func (w *GobWriter) Write(snapshot model.Snapshot, timestamp string) error {
	if len(snapshot.Conversations) == 0 {
		return nil
	}

	// 1. Create timestamped directory
	snapshotDir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// 2. Write the conversation list
	filePath := filepath.Join(snapshotDir, conversationsFile)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(snapshot.Conversations); err != nil {
		return fmt.Errorf("failed to encode conversations to gob for file '%s': %w", filePath, err)
	}

	// 3. Write summary file
	summary := SummaryData{
		Conversations: len(snapshot.Conversations),
		Hosts:         len(snapshot.Nodes),
		Edges:         len(snapshot.Edges),
		Timestamp:     snapshot.Taken.UTC().Format(time.RFC3339),
	}
	for _, c := range snapshot.Conversations {
		summary.TotalPackets += uint64(c.Count)
		summary.TotalBytes += c.Bytes
	}

	summaryFilePath := filepath.Join(snapshotDir, summaryFile)
	sf, err := os.Create(summaryFilePath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer sf.Close()

	jsonEncoder := json.NewEncoder(sf)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	return nil
}

// ReadGobSnapshot loads the conversations written to dir by a GobWriter.
func ReadGobSnapshot(dir string) ([]model.ConversationSummary, SummaryData, error) {
	var convs []model.ConversationSummary
	var summary SummaryData

	f, err := os.Open(filepath.Join(dir, conversationsFile))
	if err != nil {
		return nil, summary, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&convs); err != nil {
		return nil, summary, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		return nil, summary, fmt.Errorf("failed to read summary: %w", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, summary, fmt.Errorf("failed to decode summary: %w", err)
	}
	return convs, summary, nil
}
