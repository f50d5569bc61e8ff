// Package strategy implements the displacement strategies that pick which
// entry leaves a full tier.
package strategy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// Kind identifies a displacement strategy.
type Kind int

const (
	// LRU displaces the least recently inserted or accessed entry.
	LRU Kind = iota
	// MRU displaces the most recently inserted or accessed entry.
	MRU
	// Random displaces a uniformly chosen entry.
	Random
)

// ErrNoCandidates is returned when a victim is requested from an empty tier.
var ErrNoCandidates = errors.New("no victim candidates")

// ErrInvalidSelection is returned when the randomness source picks a position
// outside the candidates.
var ErrInvalidSelection = errors.New("victim position out of range")

// String returns the configuration name of the strategy.
func (k Kind) String() string {
	switch k {
	case LRU:
		return "lru"
	case MRU:
		return "mru"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a strategy name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lru", "least_recently_used":
		return LRU, nil
	case "mru", "most_recently_used":
		return MRU, nil
	case "random", "rand":
		return Random, nil
	default:
		return LRU, fmt.Errorf("unknown displacement strategy: %q", s)
	}
}

// MarshalYAML encodes the kind as its name.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML decodes the kind from its name.
func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Ordered is the view of a tier's recency order a strategy selects from.
// Position 0 is the least recent id.
type Ordered interface {
	Len() int
	Oldest() (int64, bool)
	Newest() (int64, bool)
	At(i int) (int64, bool)
}

// Policy is a strategy kind plus the randomness source used by Random. A
// single Policy is shared by every tier of a cache; it holds no entry state.
type Policy struct {
	kind Kind
	intN func(n int) int
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand injects the randomness source for Random. intN must return a
// value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(p *Policy) {
		if intN != nil {
			p.intN = intN
		}
	}
}

// NewPolicy creates a policy for kind.
func NewPolicy(kind Kind, opts ...Option) *Policy {
	p := &Policy{kind: kind, intN: rand.IntN}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns the strategy kind.
func (p *Policy) Kind() Kind {
	return p.kind
}

// String returns the strategy name.
func (p *Policy) String() string {
	return p.kind.String()
}

// SelectVictim returns the id the strategy would displace from keys.
func (p *Policy) SelectVictim(keys Ordered) (int64, error) {
	if keys.Len() == 0 {
		return 0, ErrNoCandidates
	}

	var (
		id int64
		ok bool
	)
	switch p.kind {
	case LRU:
		id, ok = keys.Oldest()
	case MRU:
		id, ok = keys.Newest()
	case Random:
		i := p.intN(keys.Len())
		id, ok = keys.At(i)
		if !ok {
			return 0, fmt.Errorf("%w: %d of %d", ErrInvalidSelection, i, keys.Len())
		}
	default:
		return 0, fmt.Errorf("unsupported strategy %s", p.kind)
	}
	if !ok {
		return 0, ErrNoCandidates
	}
	return id, nil
}
