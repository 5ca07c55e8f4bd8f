package model

import "strings"

// Value is the tagged union of prediction encodings. Numeric, Categorical and
// Probabilistic are its only implementations.
type Value interface {
	Kind() ClaimType
	isValue()
}

// Numeric is a real-valued prediction or outcome.
type Numeric struct {
	Value float64
}

// Categorical is a label prediction or outcome.
type Categorical struct {
	Category string
}

// Probabilistic is a probability prediction, or the observed outcome (0 or 1
// for a binary event).
type Probabilistic struct {
	Probability float64
}

func (Numeric) Kind() ClaimType       { return TypeNumeric }
func (Categorical) Kind() ClaimType   { return TypeCategorical }
func (Probabilistic) Kind() ClaimType { return TypeProbabilistic }

func (Numeric) isValue()       {}
func (Categorical) isValue()   {}
func (Probabilistic) isValue() {}

// Present reports whether v carries a usable value. A blank category counts
// as absent.
func Present(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Categorical:
		return strings.TrimSpace(t.Category) != ""
	default:
		return true
	}
}

// Flat is the nullable three-column encoding of a Value used by storage and
// transport, where at most one field is set.
type Flat struct {
	Number      *float64
	Category    *string
	Probability *float64
}

// Flatten encodes v into its nullable columns. A nil Value yields an empty Flat.
func Flatten(v Value) Flat {
	switch t := v.(type) {
	case Numeric:
		n := t.Value
		return Flat{Number: &n}
	case Categorical:
		c := t.Category
		return Flat{Category: &c}
	case Probabilistic:
		p := t.Probability
		return Flat{Probability: &p}
	}
	return Flat{}
}

// Unflatten decodes the columns back into a Value. It returns nil when no
// field is set and ErrAmbiguousValue when more than one is.
func (f Flat) Unflatten() (Value, error) {
	set := 0
	var v Value
	if f.Number != nil {
		set++
		v = Numeric{Value: *f.Number}
	}
	if f.Category != nil {
		set++
		v = Categorical{Category: *f.Category}
	}
	if f.Probability != nil {
		set++
		v = Probabilistic{Probability: *f.Probability}
	}
	if set > 1 {
		return nil, ErrAmbiguousValue
	}
	return v, nil
}
