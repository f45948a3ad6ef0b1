// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package pricing resolves a (provider, model) pair to a unit price and
// computes USD cost from token counts. It never uses binary floats for
// money: every price is held as a [decimal.Decimal], and computed costs
// are rounded half-even to 12 decimal places.
package pricing

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// UnitPrice is the per-megatoken USD price for a single model.
type UnitPrice struct {
	PromptPricePerMegaToken     decimal.Decimal
	CompletionPricePerMegaToken decimal.Decimal
	Description                 string
}

// FamilyPattern maps model ids matching Regex to the pricing of
// BaseModel, used when a concrete model id has no exact entry in
// Models.
type FamilyPattern struct {
	Regex       *regexp.Regexp
	BaseModel   string
	Description string
}

// Table is one provider's pricing configuration.
type Table struct {
	Version         string
	Models          map[string]UnitPrice
	FamilyPatterns  []FamilyPattern
}

// Validate checks that every FamilyPattern's BaseModel exists in
// Models, and that every price is non-negative.
func (t *Table) Validate() error {
	for id, p := range t.Models {
		if p.PromptPricePerMegaToken.IsNegative() {
			return fmt.Errorf("model %q: prompt price is negative", id)
		}
		if p.CompletionPricePerMegaToken.IsNegative() {
			return fmt.Errorf("model %q: completion price is negative", id)
		}
	}
	for _, fp := range t.FamilyPatterns {
		if _, ok := t.Models[fp.BaseModel]; !ok {
			return fmt.Errorf("family pattern %q: base model %q is not in models table", fp.Regex.String(), fp.BaseModel)
		}
	}
	return nil
}

// Resolve performs an exact-then-pattern lookup: an exact match in
// Models wins; otherwise the first matching FamilyPattern (in order)
// supplies the base model's price. Returns false when neither resolves.
func (t *Table) Resolve(modelID string) (UnitPrice, bool) {
	if p, ok := t.Models[modelID]; ok {
		return p, true
	}
	for _, fp := range t.FamilyPatterns {
		if fp.Regex.MatchString(modelID) {
			if p, ok := t.Models[fp.BaseModel]; ok {
				return p, true
			}
			return UnitPrice{}, false
		}
	}
	return UnitPrice{}, false
}
