package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fgalloway/chanserv/pkg/model"
	"github.com/fgalloway/chanserv/pkg/store"
)

// SeedChannel describes one channel to ensure at startup.
type SeedChannel struct {
	Name          string            `yaml:"name"`
	Alias         string            `yaml:"alias,omitempty"`
	Description   string            `yaml:"description,omitempty"`
	Owner         int64             `yaml:"owner"`
	TrackMessages bool              `yaml:"track_messages,omitempty"`
	Attributes    map[string]string `yaml:"attributes,omitempty"`
}

// SeedConfig is the top-level YAML document of seed channels.
type SeedConfig struct {
	Channels []SeedChannel `yaml:"channels"`
}

// LoadSeedFile reads a channel seed file.
func LoadSeedFile(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read seed file: %w", err)
	}
	seed := &SeedConfig{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("config: parse seed file: %w", err)
	}
	return seed, nil
}

// Apply creates every seed channel that does not already exist by name.
// It is meant to run at startup against a fresh index, so name lookups
// reflect the durable state. A channel that fails to seed is logged and
// skipped.
func (sc *SeedConfig) Apply(st store.ChannelStore, idx store.ChannelIndex) error {
	created := 0
	for _, seed := range sc.Channels {
		existing, err := idx.LookupByName(seed.Name)
		if err != nil {
			return fmt.Errorf("config: seed lookup %q: %w", seed.Name, err)
		}
		if existing != nil {
			continue
		}

		id, err := st.CreateChannel(model.ChannelDetails{
			Name:          seed.Name,
			Alias:         seed.Alias,
			Description:   seed.Description,
			Owner:         seed.Owner,
			TrackMessages: seed.TrackMessages,
		})
		if err != nil {
			slog.Error("failed to seed channel", "name", seed.Name, "err", err)
			continue
		}
		for key, value := range seed.Attributes {
			if err := st.AddAttribute(id, key, value); err != nil {
				slog.Warn("failed to seed channel attribute", "name", seed.Name, "key", key, "err", err)
			}
		}
		created++
		slog.Debug("seeded channel", "name", seed.Name, "id", id)
	}
	if created > 0 {
		slog.Info("seeded channels from config", "created", created, "total", len(sc.Channels))
	}
	return nil
}
