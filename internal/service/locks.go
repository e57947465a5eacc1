package service

import (
	"sort"
	"sync"
)

// tenantLocks serializes subtree mutations per tenant. Structural operations
// hold the lock of every company they touch for their full duration, so
// descendant path recomputation always reads a consistent parent path.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *tenantLocks) get(companyID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[companyID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[companyID] = l
	}
	return l
}

// acquire locks the given tenants in sorted order (stable ordering avoids
// deadlock when a move touches two tenants) and returns the release func.
func (t *tenantLocks) acquire(companyIDs ...string) func() {
	seen := make(map[string]struct{}, len(companyIDs))
	uniq := make([]string, 0, len(companyIDs))
	for _, id := range companyIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		l := t.get(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
