package pool

import (
	"sync"
	"time"

	"github.com/isdmx/runbox/provider"
)

// PooledSession binds a provider environment to pool metadata. Sessions are
// created only by the pool; ID, Language, Libraries and Handle never change
// after creation (a different library set always means a new session).
// LastUsedAt is guarded by the pool mutex.
type PooledSession struct {
	ID         string
	Language   string
	Libraries  []string
	Handle     provider.Handle
	CreatedAt  time.Time
	LastUsedAt time.Time

	// runMu serializes code runs against the handle. The provider is not
	// assumed to tolerate concurrent use of one environment.
	runMu sync.Mutex
}

// librariesEqual reports whether two library lists describe the same set,
// ignoring order and duplicates
func librariesEqual(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, lib := range a {
		setA[lib] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, lib := range b {
		setB[lib] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for lib := range setA {
		if _, ok := setB[lib]; !ok {
			return false
		}
	}
	return true
}
