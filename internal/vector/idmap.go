package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/tutor/internal/models"
)

// IDMap maps index positions to chunk ids. On disk it is a JSON object keyed by the
// decimal position: {"0": "abc_0", "1": "abc_1"}.
type IDMap struct {
	ids []string
}

// NewIDMap returns a map whose position i is ids[i].
func NewIDMap(ids []string) (*IDMap, error) {
	seen := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("empty chunk id at position %d", i)
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("chunk id %q appears at positions %d and %d", id, prev, i)
		}
		seen[id] = i
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return &IDMap{ids: cp}, nil
}

// LoadIDMap reads and validates an id map file. Positions must be exactly 0..n-1 and
// chunk ids must be unique.
func LoadIDMap(path string) (*IDMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse id map: %w", err)
	}
	ids := make([]string, len(raw))
	for key, id := range raw {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 || pos >= len(raw) || strconv.Itoa(pos) != key {
			return nil, fmt.Errorf("id map has invalid position %q for %d entries", key, len(raw))
		}
		ids[pos] = id
	}
	return NewIDMap(ids)
}

// Save writes the map as JSON to path, creating the directory if needed.
func (m *IDMap) Save(path string) error {
	raw := make(map[string]string, len(m.ids))
	for i, id := range m.ids {
		raw[strconv.Itoa(i)] = id
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal id map: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create id map dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write id map: %w", err)
	}
	return nil
}

// Lookup returns the chunk id at position.
func (m *IDMap) Lookup(position int) (string, bool) {
	if position < 0 || position >= len(m.ids) {
		return "", false
	}
	return m.ids[position], true
}

// Len returns the number of entries.
func (m *IDMap) Len() int {
	return len(m.ids)
}

// Entries returns the map as IndexEntry values in position order.
func (m *IDMap) Entries() []models.IndexEntry {
	out := make([]models.IndexEntry, len(m.ids))
	for i, id := range m.ids {
		out[i] = models.IndexEntry{Position: i, ChunkID: id}
	}
	return out
}
