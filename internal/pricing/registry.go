// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package pricing

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// CostSource distinguishes a cost computed by this registry from one the
// upstream provider reported natively.
type CostSource string

const (
	SourceProvider       CostSource = "provider"
	SourceGatewayPricing CostSource = "gateway-pricing"
)

// Cost is the computed (or provider-reported) USD cost of one request.
type Cost struct {
	CostUSD        decimal.Decimal
	Source         CostSource
	Model          string
	Usage          *usage.Usage
	PricingVersion string
}

var megaToken = decimal.NewFromInt(1_000_000)

// snapshot is the immutable configuration captured by in-flight requests;
// Load/Reload swap this pointer atomically (read-copy-update) so
// readers never block writers or each other.
type snapshot struct {
	tables     map[string]*Table
	multiplier decimal.Decimal
}

// Registry resolves unit prices and computes cost across all providers.
// It is created once per process and handed to callers explicitly; it
// is not a global singleton.
type Registry struct {
	cur atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry with the given cost multiplier.
// multiplier must satisfy 0 < m <= 2.
func NewRegistry(multiplier decimal.Decimal) (*Registry, error) {
	if multiplier.LessThanOrEqual(decimal.Zero) || multiplier.GreaterThan(decimal.NewFromInt(2)) {
		return nil, fmt.Errorf("pricing multiplier %s out of bounds (0, 2]", multiplier.String())
	}
	r := &Registry{}
	r.cur.Store(&snapshot{tables: map[string]*Table{}, multiplier: multiplier})
	return r, nil
}

// Load installs a validated pricing table for providerName, replacing
// any table previously loaded for that provider.
func (r *Registry) Load(providerName string, table *Table) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("invalid pricing config for %s: %w", providerName, err)
	}
	for {
		old := r.cur.Load()
		next := &snapshot{tables: make(map[string]*Table, len(old.tables)+1), multiplier: old.multiplier}
		for k, v := range old.tables {
			next.tables[k] = v
		}
		next.tables[providerName] = table
		if r.cur.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// Reload atomically replaces the whole in-memory configuration with
// tables. In-flight requests keep using the snapshot they captured at
// entry.
func (r *Registry) Reload(tables map[string]*Table, multiplier decimal.Decimal) error {
	next := &snapshot{tables: make(map[string]*Table, len(tables)), multiplier: multiplier}
	for name, t := range tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid pricing config for %s: %w", name, err)
		}
		next.tables[name] = t
	}
	r.cur.Store(next)
	return nil
}

// ReloadFromDir re-reads every pricing table file under dir and installs
// them atomically, keeping the registry's current multiplier. This is
// what the admin reload endpoint calls.
func (r *Registry) ReloadFromDir(dir string) error {
	tables, err := LoadDir(dir)
	if err != nil {
		return err
	}
	return r.Reload(tables, r.cur.Load().multiplier)
}

// GetUnitPrice performs the exact-then-pattern lookup for providerName.
func (r *Registry) GetUnitPrice(providerName, modelID string) (UnitPrice, bool) {
	snap := r.cur.Load()
	table, ok := snap.tables[providerName]
	if !ok {
		return UnitPrice{}, false
	}
	return table.Resolve(modelID)
}

// IsModelSupported is the gate the orchestrator calls before forwarding
// a request: true when the provider reports native USD cost, or the
// registry can price the model itself.
func (r *Registry) IsModelSupported(providerName, modelID string, providerHasNativeCost bool) bool {
	if providerHasNativeCost {
		return true
	}
	_, ok := r.GetUnitPrice(providerName, modelID)
	return ok
}

// Calculate computes a Cost for u tokens against providerName/modelID's
// unit price, applying the registry's global multiplier last. Returns
// nil when no unit price is resolvable or u is nil.
func (r *Registry) Calculate(providerName, modelID string, u *usage.Usage) *Cost {
	if u == nil {
		return nil
	}
	snap := r.cur.Load()
	table, ok := snap.tables[providerName]
	if !ok {
		return nil
	}
	price, ok := table.Resolve(modelID)
	if !ok {
		return nil
	}

	promptCost := decimal.NewFromInt(int64(u.PromptTokens)).Div(megaToken).Mul(price.PromptPricePerMegaToken)
	completionCost := decimal.NewFromInt(int64(u.CompletionTokens)).Div(megaToken).Mul(price.CompletionPricePerMegaToken)
	// Round half-even ("banker's rounding") both before
	// and after the multiplier so repeated reloads stay deterministic.
	total := promptCost.Add(completionCost).RoundBank(12).Mul(snap.multiplier).RoundBank(12)

	return &Cost{
		CostUSD:        total,
		Source:         SourceGatewayPricing,
		Model:          modelID,
		Usage:          u,
		PricingVersion: table.Version,
	}
}
