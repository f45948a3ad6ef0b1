// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package pricing

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// fileFormat mirrors the on-disk JSON pricing-table format:
//
//	{ "version": "...", "models": {"id": {"promptPerMTokUsd": .., ...}},
//	  "modelFamilyPatterns": [{"pattern": "...", "baseModel": "...", "description": "..."}] }
//
// Plain encoding/json is used here rather than a third-party decoder:
// gjson/sjson (used elsewhere in this module for cheap partial reads/
// writes of opaque provider bodies) buy nothing for a small, fully
// known, validated-on-load config shape — this is exactly the case the
// standard library's typed decoding was built for.
type fileFormat struct {
	Version             string                    `json:"version"`
	Models              map[string]modelPriceJSON `json:"models"`
	ModelFamilyPatterns []familyPatternJSON       `json:"modelFamilyPatterns"`
}

type modelPriceJSON struct {
	PromptPerMTokUSD     string `json:"promptPerMTokUsd"`
	CompletionPerMTokUSD string `json:"completionPerMTokUsd"`
	Description          string `json:"description,omitempty"`
}

type familyPatternJSON struct {
	Pattern     string `json:"pattern"`
	BaseModel   string `json:"baseModel"`
	Description string `json:"description,omitempty"`
}

// ParseTable decodes one provider's pricing config file.
func ParseTable(raw []byte) (*Table, error) {
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode pricing config: %w", err)
	}
	t := &Table{
		Version: f.Version,
		Models:  make(map[string]UnitPrice, len(f.Models)),
	}
	for id, m := range f.Models {
		prompt, err := decimal.NewFromString(m.PromptPerMTokUSD)
		if err != nil {
			return nil, fmt.Errorf("model %q: invalid promptPerMTokUsd %q: %w", id, m.PromptPerMTokUSD, err)
		}
		completion, err := decimal.NewFromString(m.CompletionPerMTokUSD)
		if err != nil {
			return nil, fmt.Errorf("model %q: invalid completionPerMTokUsd %q: %w", id, m.CompletionPerMTokUSD, err)
		}
		t.Models[id] = UnitPrice{
			PromptPricePerMegaToken:     prompt,
			CompletionPricePerMegaToken: completion,
			Description:                 m.Description,
		}
	}
	for _, fp := range f.ModelFamilyPatterns {
		re, err := regexp.Compile(fp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("family pattern %q: %w", fp.Pattern, err)
		}
		t.FamilyPatterns = append(t.FamilyPatterns, FamilyPattern{
			Regex:       re,
			BaseModel:   fp.BaseModel,
			Description: fp.Description,
		})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MergeCollisions reports model ids present in more than one of the
// given per-provider-file tables being merged into a single provider's
// table, so the caller can log each as a collision. It does not mutate
// either table; the caller decides precedence (last-wins).
func MergeCollisions(tables ...*Table) []string {
	seen := make(map[string]int, 16)
	for _, t := range tables {
		for id := range t.Models {
			seen[id]++
		}
	}
	var collisions []string
	for id, n := range seen {
		if n > 1 {
			collisions = append(collisions, id)
		}
	}
	return collisions
}
