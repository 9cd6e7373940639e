// Package claim serializes provisioning runs that target the same
// (domain, environment) pair.
package claim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrClaimed is returned when another holder owns the claim
var ErrClaimed = errors.New("claimed by another holder")

// Key identifies what a run is about to change
type Key struct {
	Domain      string
	Environment string
}

const maxNameLength = 63

// Name returns a deterministic DNS-1123 label for the key
func (k Key) Name() string {
	raw := strings.ToLower(strings.TrimSuffix(k.Domain, ".") + "-" + k.Environment)
	raw = strings.ReplaceAll(raw, "*", "wildcard")

	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "claim"
	}

	if len(name) > maxNameLength {
		sum := sha256.Sum256([]byte(raw))
		suffix := hex.EncodeToString(sum[:])[:8]
		name = strings.TrimRight(name[:maxNameLength-len(suffix)-1], "-") + "-" + suffix
	}
	return name
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Domain, k.Environment)
}

// ClaimedError names the holder that owns a claim
type ClaimedError struct {
	Key    Key
	Holder string
}

func (e *ClaimedError) Error() string {
	return fmt.Sprintf("%s is claimed by %s", e.Key, e.Holder)
}

func (e *ClaimedError) Is(target error) bool { return target == ErrClaimed }

// Release gives a claim back
type Release func(ctx context.Context) error

// Locker hands out advisory claims
type Locker interface {
	Acquire(ctx context.Context, key Key) (Release, error)
}

// NopLocker grants every claim
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key Key) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// MemoryLocker holds claims in process memory
type MemoryLocker struct {
	mu     sync.Mutex
	held   map[string]string
	Holder string
}

func (l *MemoryLocker) Acquire(ctx context.Context, key Key) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		l.held = make(map[string]string)
	}
	name := key.Name()
	if holder, ok := l.held[name]; ok {
		return nil, &ClaimedError{Key: key, Holder: holder}
	}
	l.held[name] = l.Holder

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		return nil
	}, nil
}
