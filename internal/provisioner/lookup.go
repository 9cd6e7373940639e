package provisioner

import (
	"fmt"

	"github.com/go-logr/logr"
)

// AmbiguityPolicy decides what a lookup does when more than one resource
// matches a filter that should identify exactly one
type AmbiguityPolicy string

const (
	// FailOnAmbiguity returns an AmbiguousMatchError
	FailOnAmbiguity AmbiguityPolicy = "fail"
	// FirstMatch takes the first candidate in listing order and logs the others
	FirstMatch AmbiguityPolicy = "first"
)

// ParseAmbiguityPolicy parses a policy name; empty means FailOnAmbiguity
func ParseAmbiguityPolicy(s string) (AmbiguityPolicy, error) {
	switch AmbiguityPolicy(s) {
	case "", FailOnAmbiguity:
		return FailOnAmbiguity, nil
	case FirstMatch:
		return FirstMatch, nil
	default:
		return "", fmt.Errorf("%w: unknown ambiguity policy %q (want %q or %q)", ErrInvalidArgument, s, FailOnAmbiguity, FirstMatch)
	}
}

// Outcome classifies a lookup
type Outcome int

const (
	NotFound Outcome = iota
	Found
	Ambiguous
)

// Lookup is the result of a filtered search that expects one resource
type Lookup[T any] struct {
	Kind       string
	Key        string
	Candidates []T
}

// Outcome reports whether the search found zero, one or several resources
func (l Lookup[T]) Outcome() Outcome {
	switch len(l.Candidates) {
	case 0:
		return NotFound
	case 1:
		return Found
	default:
		return Ambiguous
	}
}

// Resolve returns the single match, applying policy when there are several.
// id names a candidate in errors and logs.
func (l Lookup[T]) Resolve(log logr.Logger, policy AmbiguityPolicy, id func(T) string) (T, error) {
	var zero T

	switch l.Outcome() {
	case NotFound:
		return zero, &NotFoundError{Kind: l.Kind, Key: l.Key}
	case Found:
		return l.Candidates[0], nil
	}

	ids := make([]string, 0, len(l.Candidates))
	for _, c := range l.Candidates {
		ids = append(ids, id(c))
	}
	if policy == FirstMatch {
		log.Info("Multiple matches, using the first", "kind", l.Kind, "key", l.Key, "selected", ids[0], "candidates", ids)
		return l.Candidates[0], nil
	}
	return zero, &AmbiguousMatchError{Kind: l.Kind, Key: l.Key, Candidates: ids}
}
