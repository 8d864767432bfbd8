package model

import "time"

// Writer defines a generic interface for exporting conversation snapshots.
type Writer interface {
	// Write takes a snapshot and exports it. The timestamp is the formatted
	// time the snapshot was taken and is used to name its output.
	Write(snapshot Snapshot, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
