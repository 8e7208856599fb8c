package devserver

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/memory"
)

// Seed is the YAML fixture shape loaded into a fresh store.
type Seed struct {
	Identity *struct {
		ID    string `yaml:"id"`
		Email string `yaml:"email"`
	} `yaml:"identity"`
	Events        []map[string]any `yaml:"events"`
	Announcements []map[string]any `yaml:"announcements"`
	Profiles      []map[string]any `yaml:"profiles"`
	Attendance    []map[string]any `yaml:"attendance"`
}

// LoadSeed reads a fixture file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply inserts the fixture rows into the store. Attendance rows go in
// last so their capacity checks run against the seeded events.
func (s *Seed) Apply(ctx context.Context, store *memory.Store) error {
	if s.Identity != nil {
		store.SetIdentity(&gateway.Identity{ID: s.Identity.ID, Email: s.Identity.Email})
	}

	inserts := []struct {
		collection string
		rows       []map[string]any
	}{
		{gateway.CollectionEvents, s.Events},
		{gateway.CollectionAnnouncements, s.Announcements},
		{gateway.CollectionProfiles, s.Profiles},
		{gateway.CollectionAttendance, s.Attendance},
	}
	for _, batch := range inserts {
		for _, row := range batch.rows {
			if _, err := store.Insert(ctx, batch.collection, gateway.Record(row)); err != nil {
				return fmt.Errorf("seed %s row: %w", batch.collection, err)
			}
		}
	}
	return nil
}
