package export

import (
	"RedWire/internal/config"
	"RedWire/internal/factory"
	"RedWire/internal/model"
	"time"
)

// --- Factory Registration ---

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewGobWriter(def.Gob.RootPath, interval), nil
	})
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		w, err := NewClickHouseWriter(def.ClickHouse, interval)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
