package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Seed inserts the default document for every known task missing from the
// store. Existing rows are left alone: seeding never overwrites an admin
// edit.
func Seed(ctx context.Context, m *Manager) error {
	var defaults map[string]map[string]any
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		return fmt.Errorf("parse default configs: %w", err)
	}

	for taskName, doc := range defaults {
		_, err := m.store.Get(ctx, taskName)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("seed %s: %w", taskName, err)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("seed %s: %w", taskName, err)
		}
		if _, err := m.Put(ctx, taskName, raw, "bootstrap"); err != nil {
			return fmt.Errorf("seed %s: %w", taskName, err)
		}
		log.Info().Str("task", taskName).Msg("seeded default task config")
	}
	return nil
}
