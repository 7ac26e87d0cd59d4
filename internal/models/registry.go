package models

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
)

//go:embed catalogue.yaml
var catalogueFS embed.FS

const (
	TierFree    = "free"
	TierPremium = "premium"
)

type Model struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description"`
	Provider       string `yaml:"-" json:"provider"`
	RequiresAuth   bool   `yaml:"requiresAuth" json:"requiresAuth"`
	Tier           string `yaml:"tier" json:"tier"`
	Available      bool   `yaml:"available" json:"available"`
	IsReasoning    bool   `yaml:"isReasoning" json:"isReasoning"`
	SupportsVision bool   `yaml:"supportsVision" json:"supportsVision"`
}

type Provider struct {
	Key    string  `yaml:"key" json:"key"`
	Name   string  `yaml:"name" json:"name"`
	Models []Model `yaml:"models" json:"models"`
}

type catalogue struct {
	Default   string     `yaml:"default"`
	Providers []Provider `yaml:"providers"`
}

// Registry is the read-only model catalogue. It is safe for concurrent use.
type Registry struct {
	defaultID string
	providers []Provider
	byID      map[string]Model
	order     []string
}

// Parse builds a Registry from catalogue YAML and validates it.
func Parse(raw []byte) (*Registry, error) {
	var cat catalogue
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse model catalogue: %w", err)
	}
	r := &Registry{
		defaultID: cat.Default,
		byID:      map[string]Model{},
	}
	for pi := range cat.Providers {
		p := &cat.Providers[pi]
		if p.Key == "" {
			return nil, fmt.Errorf("model catalogue: provider %d has no key", pi)
		}
		for mi := range p.Models {
			m := &p.Models[mi]
			m.Provider = p.Key
			if m.ID == "" {
				return nil, fmt.Errorf("model catalogue: provider %s has a model without id", p.Key)
			}
			if _, dup := r.byID[m.ID]; dup {
				return nil, fmt.Errorf("model catalogue: duplicate model id %q", m.ID)
			}
			if m.Tier != TierFree && m.Tier != TierPremium {
				return nil, fmt.Errorf("model catalogue: model %q has invalid tier %q", m.ID, m.Tier)
			}
			r.byID[m.ID] = *m
			r.order = append(r.order, m.ID)
		}
	}
	r.providers = cat.Providers

	def, ok := r.byID[r.defaultID]
	if !ok {
		return nil, fmt.Errorf("model catalogue: default model %q not in catalogue", r.defaultID)
	}
	if !def.Available || def.RequiresAuth {
		return nil, fmt.Errorf("model catalogue: default model %q must be usable without sign-in", r.defaultID)
	}
	return r, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded catalogue.
// The embedded file is validated by tests, so a failure here is a build defect.
func Default() *Registry {
	defaultOnce.Do(func() {
		raw, err := catalogueFS.ReadFile("catalogue.yaml")
		if err != nil {
			panic(err)
		}
		reg, err := Parse(raw)
		if err != nil {
			panic(err)
		}
		defaultReg = reg
	})
	return defaultReg
}

func (r *Registry) Lookup(id string) (Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// All returns every model in catalogue order.
func (r *Registry) All() []Model {
	out := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	for i, p := range r.providers {
		cp := p
		cp.Models = append([]Model(nil), p.Models...)
		out[i] = cp
	}
	return out
}

func (r *Registry) DefaultModel() Model {
	return r.byID[r.defaultID]
}

// IsModelUsable reports whether the caller may send to modelID.
// Unknown or unavailable models are never usable; auth-only models need a signed-in user.
func (r *Registry) IsModelUsable(modelID string, who ctxutil.Identity) bool {
	m, ok := r.byID[modelID]
	if !ok || !m.Available {
		return false
	}
	if m.RequiresAuth && !who.Authenticated() {
		return false
	}
	return true
}

func (r *Registry) IsReasoning(modelID string) bool {
	return r.byID[modelID].IsReasoning
}

func (r *Registry) SupportsVision(modelID string) bool {
	return r.byID[modelID].SupportsVision
}
