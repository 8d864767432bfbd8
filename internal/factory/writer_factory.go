package factory

import (
	"RedWire/internal/config"
	"RedWire/internal/model"
	"fmt"
	"log"
	"sort"
	"time"
)

// WriterFactory builds a snapshot writer from its config definition.
type WriterFactory func(def config.WriterDef, interval time.Duration) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the registered writer types, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateWriters builds every enabled writer in cfg. Writers that fail to
// initialize are skipped with a warning so one unreachable sink does not
// prevent capture; an unknown type is a configuration error.
func CreateWriters(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Export.Writers {
		if !def.Enabled {
			continue
		}

		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		interval, err := time.ParseDuration(def.SnapshotInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot_interval for writer type '%s': %w", def.Type, err)
		}

		writer, err := factory(def, interval)
		if err != nil {
			log.Printf("Warning: failed to create writer type '%s': %v, skipping.", def.Type, err)
			continue
		}
		log.Printf("Created writer type '%s' with interval %s.", def.Type, interval)
		writers = append(writers, writer)
	}

	return writers, nil
}
