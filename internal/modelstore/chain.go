package modelstore

import (
	"context"
	"fmt"

	"curewatch/internal/device"
	"curewatch/internal/faults"
)

// Match records which fallback step resolved a lookup.
type Match int

const (
	MatchExact Match = iota
	MatchPooled
	MatchDefaultExact
	MatchDefaultPooled
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPooled:
		return "pooled"
	case MatchDefaultExact:
		return "default-exact"
	case MatchDefaultPooled:
		return "default-pooled"
	}
	return fmt.Sprintf("match(%d)", int(m))
}

func (m Match) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// GroupKey is the store key of a recipe model for kind.
func GroupKey(recipe string, kind device.Kind) string {
	return recipe + kind.GroupSuffix()
}

// PooledKey is the store key of the pooled model for kind.
func PooledKey(kind device.Kind) string {
	return PooledGroup + kind.GroupSuffix()
}

// Chain resolves models from a primary store, falling back to a shared
// default store. Default may be nil.
type Chain struct {
	Primary *Store
	Default *Store
}

// Lookup tries the recipe model then the pooled model in the primary store,
// then the same two in the default store. It returns faults.ErrNoModel when
// nothing matches.
func (c Chain) Lookup(ctx context.Context, kind device.Kind, autoclave, recipe string) (Entry, Match, error) {
	type step struct {
		store *Store
		key   string
		match Match
	}
	steps := []step{
		{c.Primary, GroupKey(recipe, kind), MatchExact},
		{c.Primary, PooledKey(kind), MatchPooled},
	}
	if c.Default != nil && (c.Primary == nil || c.Default.Dir() != c.Primary.Dir()) {
		steps = append(steps,
			step{c.Default, GroupKey(recipe, kind), MatchDefaultExact},
			step{c.Default, PooledKey(kind), MatchDefaultPooled},
		)
	}
	for _, st := range steps {
		if st.store == nil {
			continue
		}
		e, ok, err := st.store.Get(ctx, kind.String(), autoclave, st.key)
		if err != nil {
			return Entry{}, 0, err
		}
		if ok {
			return e, st.match, nil
		}
	}
	return Entry{}, 0, faults.Wrap(faults.ErrNoModel, "modelstore", "lookup",
		fmt.Sprintf("no %s model for %s %s", kind, autoclave, recipe), nil)
}
