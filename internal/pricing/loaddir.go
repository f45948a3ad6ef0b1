// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package pricing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir reads every "*.json" file directly under dir as one provider's
// pricing table, keyed by the file's base name (minus extension) as the
// provider name — e.g. "openai.json" becomes the "openai" table. Use
// with Registry.Reload to (re)populate a Registry from disk, e.g. from
// the admin reload endpoint.
func LoadDir(dir string) (map[string]*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pricing config dir %s: %w", dir, err)
	}

	tables := make(map[string]*Table)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		providerName := strings.TrimSuffix(entry.Name(), ".json")
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read pricing config %s: %w", entry.Name(), err)
		}
		table, err := ParseTable(raw)
		if err != nil {
			return nil, fmt.Errorf("parse pricing config %s: %w", entry.Name(), err)
		}
		tables[providerName] = table
	}
	return tables, nil
}
