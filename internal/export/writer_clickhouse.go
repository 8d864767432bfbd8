package export

import (
	"RedWire/internal/config"
	"RedWire/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS conversation_metrics (
    Timestamp   DateTime,
    AddrA       String,
    AddrB       String,
    DegreeA     UInt32,
    DegreeB     UInt32,
    FirstSeen   DateTime64(3),
    LastSeen    DateTime64(3),
    ByteCount   UInt64,
    PacketCount UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, AddrA, AddrB);
`

// TimestampLayout is the snapshot timestamp format shared by all writers.
const TimestampLayout = "2006-01-02_15-04-05"

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write inserts one row per conversation into conversation_metrics.
func (w *ClickHouseWriter) Write(snapshot model.Snapshot, timestamp string) error {
	rows := conversationRows(snapshot, timestamp)
	if len(rows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO conversation_metrics")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.AddrA, r.AddrB, r.DegreeA, r.DegreeB, r.FirstSeen, r.LastSeen, r.ByteCount, r.PacketCount); err != nil {
			return fmt.Errorf("failed to append conversation to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d conversations to ClickHouse.", len(rows))
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

type conversationRow struct {
	Timestamp   time.Time
	AddrA       string
	AddrB       string
	DegreeA     uint32
	DegreeB     uint32
	FirstSeen   time.Time
	LastSeen    time.Time
	ByteCount   uint64
	PacketCount uint64
}

// conversationRows flattens a snapshot into table rows. A timestamp that
// does not parse falls back to the time the snapshot was taken.
func conversationRows(snapshot model.Snapshot, timestamp string) []conversationRow {
	snapshotTime, err := time.ParseInLocation(TimestampLayout, timestamp, time.Local)
	if err != nil {
		snapshotTime = snapshot.Taken
	}

	degrees := make(map[string]uint32, len(snapshot.Nodes))
	for _, n := range snapshot.Nodes {
		degrees[n.Address] = uint32(n.Degree)
	}

	rows := make([]conversationRow, 0, len(snapshot.Conversations))
	for _, c := range snapshot.Conversations {
		rows = append(rows, conversationRow{
			Timestamp:   snapshotTime,
			AddrA:       c.Key.A,
			AddrB:       c.Key.B,
			DegreeA:     degrees[c.Key.A],
			DegreeB:     degrees[c.Key.B],
			FirstSeen:   c.FirstSeen,
			LastSeen:    c.LastSeen,
			ByteCount:   c.Bytes,
			PacketCount: uint64(c.Count),
		})
	}
	return rows
}
