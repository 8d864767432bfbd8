package factory

import (
	"RedWire/internal/config"
	"RedWire/internal/model"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	interval time.Duration
}

func (w *stubWriter) Write(model.Snapshot, string) error { return nil }
func (w *stubWriter) GetInterval() time.Duration        { return w.interval }

func init() {
	RegisterWriter("stub", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return &stubWriter{interval: interval}, nil
	})
	RegisterWriter("broken", func(config.WriterDef, time.Duration) (model.Writer, error) {
		return nil, errors.New("unreachable")
	})
}

func TestCreateWriters(t *testing.T) {
	cfg := &config.Config{Export: config.ExportConfig{Writers: []config.WriterDef{
		{Type: "stub", Enabled: true, SnapshotInterval: "5s"},
		{Type: "stub", Enabled: false, SnapshotInterval: "1s"},
		{Type: "broken", Enabled: true, SnapshotInterval: "1s"},
	}}}

	writers, err := CreateWriters(cfg)
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, 5*time.Second, writers[0].GetInterval())
}

func TestCreateWriters_Errors(t *testing.T) {
	_, err := CreateWriters(&config.Config{Export: config.ExportConfig{Writers: []config.WriterDef{
		{Type: "parquet", Enabled: true, SnapshotInterval: "1s"},
	}}})
	assert.ErrorContains(t, err, "unknown writer type")

	_, err = CreateWriters(&config.Config{Export: config.ExportConfig{Writers: []config.WriterDef{
		{Type: "stub", Enabled: true, SnapshotInterval: "often"},
	}}})
	assert.ErrorContains(t, err, "snapshot_interval")
}

func TestRegisterWriter_Duplicate(t *testing.T) {
	assert.Contains(t, Registered(), "stub")
	assert.Panics(t, func() {
		RegisterWriter("stub", nil)
	})
}
