package training

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"curewatch/internal/runid"
	"curewatch/internal/series"
)

// Run is one run's aligned feature frame.
type Run struct {
	ID     runid.ID
	Recipe string
	Frame  *series.Frame
}

// Policy selects which runs go to training.
type Policy int

const (
	PolicyRandom Policy = iota
	PolicyEarly
	PolicyLater
)

// ParsePolicy accepts random, early and later.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return PolicyRandom, nil
	case "early":
		return PolicyEarly, nil
	case "later":
		return PolicyLater, nil
	}
	return PolicyRandom, fmt.Errorf("unknown split policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyEarly:
		return "early"
	case PolicyLater:
		return "later"
	default:
		return "random"
	}
}

// SortRuns orders runs by date, recipe, sequence and autoclave.
func SortRuns(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if a.ID.Date != b.ID.Date {
			return a.ID.Date < b.ID.Date
		}
		if a.Recipe != b.Recipe {
			return a.Recipe < b.Recipe
		}
		if a.ID.Sequence != b.ID.Sequence {
			return a.ID.Sequence < b.ID.Sequence
		}
		return a.ID.Autoclave < b.ID.Autoclave
	})
}

// Split sorts runs and divides them into size training runs and the rest.
// A non-positive size means half the runs, rounded up. When nothing is left
// for testing the training runs are reused.
func Split(runs []Run, size int, policy Policy, rng *rand.Rand) (train, test []Run) {
	sorted := append([]Run(nil), runs...)
	SortRuns(sorted)
	n := len(sorted)
	if size <= 0 {
		size = (n + 1) / 2
	}
	size = min(size, n)

	chosen := make([]bool, n)
	switch policy {
	case PolicyEarly:
		for i := 0; i < size; i++ {
			chosen[i] = true
		}
	case PolicyLater:
		for i := n - size; i < n; i++ {
			chosen[i] = true
		}
	default:
		for _, i := range rng.Perm(n)[:size] {
			chosen[i] = true
		}
	}
	for i, r := range sorted {
		if chosen[i] {
			train = append(train, r)
		} else {
			test = append(test, r)
		}
	}
	if len(test) == 0 {
		test = train
	}
	return train, test
}
