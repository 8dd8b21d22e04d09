// Package guardlock serializes balance mutations per guardian.
package guardlock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var ErrLockTimeout = errors.New("guardian_lock_timeout")

// Locker acquires the single-writer lock for one guardian. The returned
// release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, orgID, guardianID snowflake.ID) (release func(), err error)
}

func lockKey(orgID, guardianID snowflake.ID) string {
	return fmt.Sprintf("jukubill:guardian-lock:%d:%d", orgID, guardianID)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*entry)}
}

func (l *LocalLocker) Lock(ctx context.Context, orgID, guardianID snowflake.ID) (func(), error) {
	key := lockKey(orgID, guardianID)

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Chain acquires every locker in order and releases in reverse.
type Chain []Locker

func (c Chain) Lock(ctx context.Context, orgID, guardianID snowflake.ID) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, locker := range c {
		if locker == nil {
			continue
		}
		release, err := locker.Lock(ctx, orgID, guardianID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
