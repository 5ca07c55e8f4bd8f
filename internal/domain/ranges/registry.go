// Package ranges holds the numeric normalization ranges used to score
// numeric claims, keyed by domain and optional subtype.
package ranges

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/perimeter/internal/domain/model"
)

// DefaultKey is the reserved subtype key holding a domain's fallback range.
const DefaultKey = "default"

// Universal is used when a domain is entirely unknown.
var Universal = Range{Min: 0, Max: 100}

var validate = validator.New()

// Range is a closed numeric interval [Min, Max].
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max" validate:"gtefield=Min"`
}

// Size returns Max - Min.
func (r Range) Size() float64 { return r.Max - r.Min }

// Table is the raw nested mapping: domain -> subtype -> range. The DefaultKey
// subtype carries the domain fallback.
type Table map[model.Domain]map[string]Range

// Registry resolves normalization ranges. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	domains map[model.Domain]domainRanges
}

type domainRanges struct {
	fallback *Range
	subtypes map[string]Range
}

// builtin is the shipped range table.
func builtin() Table {
	return Table{
		model.DomainEconomy: {
			"cpi":      {Min: -5, Max: 100},
			"exchange": {Min: 0.1, Max: 100},
			"gdp":      {Min: -20, Max: 20},
			DefaultKey: {Min: -50, Max: 100},
		},
		model.DomainPolitics: {
			"election": {Min: 0, Max: 100},
			"approval": {Min: 0, Max: 100},
			DefaultKey: {Min: 0, Max: 100},
		},
		model.DomainTechnology: {
			"stock":    {Min: 0, Max: 1000},
			"market":   {Min: 0, Max: 100},
			DefaultKey: {Min: 0, Max: 100},
		},
		model.DomainEarthquakes: {
			"magnitude": {Min: 0, Max: 10},
			"depth":     {Min: 0, Max: 700},
			DefaultKey:  {Min: 0, Max: 10},
		},
	}
}

// Default returns a registry loaded with the built-in table.
func Default() *Registry {
	r, err := New(builtin())
	if err != nil {
		// The built-in table is static; failing here is a programming error.
		panic(fmt.Sprintf("ranges: invalid built-in table: %v", err))
	}
	return r
}

// New builds a registry from t, validating every range.
func New(t Table) (*Registry, error) {
	r := &Registry{domains: make(map[model.Domain]domainRanges, len(t))}
	if err := r.apply(t); err != nil {
		return nil, err
	}
	return r, nil
}

// Merge returns a new registry with t layered over r. Entries in t replace
// entries with the same domain and subtype; everything else is kept.
func (r *Registry) Merge(t Table) (*Registry, error) {
	out := &Registry{domains: make(map[model.Domain]domainRanges, len(r.domains))}
	for d, dr := range r.domains {
		cp := domainRanges{subtypes: make(map[string]Range, len(dr.subtypes))}
		if dr.fallback != nil {
			fb := *dr.fallback
			cp.fallback = &fb
		}
		for k, v := range dr.subtypes {
			cp.subtypes[k] = v
		}
		out.domains[d] = cp
	}
	if err := out.apply(t); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) apply(t Table) error {
	for d, subtypes := range t {
		domain := model.Domain(normalize(string(d)))
		if domain == "" {
			return fmt.Errorf("%w: empty domain name", ErrInvalidRange)
		}
		dr, ok := r.domains[domain]
		if !ok {
			dr = domainRanges{subtypes: make(map[string]Range)}
		}
		for key, rng := range subtypes {
			if err := validate.Struct(rng); err != nil {
				return fmt.Errorf("%w: %s/%s: max must be >= min", ErrInvalidRange, domain, key)
			}
			key = normalize(key)
			if key == DefaultKey {
				fb := rng
				dr.fallback = &fb
				continue
			}
			dr.subtypes[key] = rng
		}
		r.domains[domain] = dr
	}
	return nil
}

// Lookup resolves the range for (domain, subtype): the subtype entry, else
// the domain default, else Universal. It never fails.
func (r *Registry) Lookup(domain model.Domain, subtype string) Range {
	dr, ok := r.domains[model.Domain(normalize(string(domain)))]
	if !ok {
		return Universal
	}
	if subtype != "" {
		if rng, ok := dr.subtypes[normalize(subtype)]; ok {
			return rng
		}
	}
	if dr.fallback != nil {
		return *dr.fallback
	}
	return Universal
}

// Has reports whether the domain is registered.
func (r *Registry) Has(domain model.Domain) bool {
	_, ok := r.domains[model.Domain(normalize(string(domain)))]
	return ok
}

// Domains lists registered domains in lexical order.
func (r *Registry) Domains() []model.Domain {
	out := make([]model.Domain, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
