// Package lock implements the table- and record-level lock registries
// (§4.7, §3 "Lock registries"): per-Database condition-variable-guarded
// maps, not process-wide globals, since every *Database owns its own
// Manager.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/skymond-software/mariadb-client/internal/metrics"
)

// Owner identifies the current lock holder. The façade passes a fresh *int
// token per lock scope (any comparable identity works) — lock has no
// dependency on the pool package, keeping the "explicit handle instead of
// thread-local storage" Design Note resolved without an import cycle.
type Owner any

// TableLockHandle is returned by LockTables and consumed by UnlockTables.
type TableLockHandle struct {
	keys []string
}

// RecordLockHandle is returned by LockRecords and consumed by
// UnlockRecords.
type RecordLockHandle struct {
	key string
}

// Manager owns the table-lock and record-lock registries for one Database.
// Both are guarded by the same mutex/condvar pair (§3): lock acquisition
// across the two registries never needs independent wake-ups, and sharing
// one condvar keeps the fairness rule ("broadcast-on-release, waiters
// re-check their own keys") simple to reason about.
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tables  map[string]Owner // "db.table" -> owner
	records map[string]Owner // "db\x00table\x00field\x00value" -> owner

	metrics *metrics.Collector
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	m := &Manager{
		tables:  make(map[string]Owner),
		records: make(map[string]Owner),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// WithMetrics attaches a Collector that LockTables/LockRecords report
// contention to (§4.10). Returns m for chaining from NewManager.
func (m *Manager) WithMetrics(c *metrics.Collector) *Manager {
	m.metrics = c
	return m
}

func tableKey(db, table string) string { return db + "." + table }

// recordKey composes "db\x00table\x00field\x00value" per §3.
func recordKey(db, table, field string, value any) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%v", db, table, field, value)
}

// LockTables blocks until every table named (as "db.table" pairs) is free
// or owned by owner already, then claims them all atomically under the
// registry mutex (§4.7). ctx cancellation is the only way to bound the
// wait — there is no built-in timeout, mirroring the distilled spec's
// undefined-cancellation story resolved via context.Context (§5).
func (m *Manager) LockTables(ctx context.Context, owner Owner, tables []string) (*TableLockHandle, error) {
	keys := make([]string, len(tables))
	copy(keys, tables)
	sort.Strings(keys) // stable acquisition order avoids lock-ordering deadlocks across callers

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blocked := false
		for _, k := range keys {
			if existing, ok := m.tables[k]; ok && existing != owner {
				blocked = true
				break
			}
		}
		if !blocked {
			for _, k := range keys {
				m.tables[k] = owner
			}
			return &TableLockHandle{keys: keys}, nil
		}

		m.metrics.LockContended("table")
		if !m.waitOrCancel(ctx) {
			return nil, ctx.Err()
		}
	}
}

// UnlockTables releases every key the handle claims, iff owner still holds
// it, and wakes all waiters.
func (m *Manager) UnlockTables(owner Owner, h *TableLockHandle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range h.keys {
		if m.tables[k] == owner {
			delete(m.tables, k)
		}
	}
	m.cond.Broadcast()
}

// LockRecords blocks until the (db, table, field, value) key is free or
// already owned by owner, then claims it (§4.7).
func (m *Manager) LockRecords(ctx context.Context, owner Owner, db, table, field string, value any) (*RecordLockHandle, error) {
	key := recordKey(db, table, field, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if existing, ok := m.records[key]; !ok || existing == owner {
			m.records[key] = owner
			return &RecordLockHandle{key: key}, nil
		}
		m.metrics.LockContended("record")
		if !m.waitOrCancel(ctx) {
			return nil, ctx.Err()
		}
	}
}

// UnlockRecords releases the key iff owner still holds it.
func (m *Manager) UnlockRecords(owner Owner, h *RecordLockHandle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[h.key] == owner {
		delete(m.records, h.key)
	}
	m.cond.Broadcast()
}

// HoldsAny reports whether owner currently holds any table or record lock.
func (m *Manager) HoldsAny(owner Owner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.tables {
		if o == owner {
			return true
		}
	}
	for _, o := range m.records {
		if o == owner {
			return true
		}
	}
	return false
}

// Snapshot returns the current registry contents for the admin surface
// (§4.10), rendered as plain strings rather than the internal Owner type.
func (m *Manager) Snapshot() (tables, records []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.tables {
		tables = append(tables, k)
	}
	for k := range m.records {
		records = append(records, k)
	}
	sort.Strings(tables)
	sort.Strings(records)
	return tables, records
}

// waitOrCancel waits on the condition variable, but also arranges to wake
// on ctx cancellation by racing a watcher goroutine; it reports whether the
// wake was a normal broadcast (true) or cancellation (false). mu must be
// held on entry and is held again on return, matching sync.Cond.Wait's
// contract.
func (m *Manager) waitOrCancel(ctx context.Context) bool {
	if ctx.Done() == nil {
		m.cond.Wait()
		return true
	}

	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-stop:
		}
		close(done)
	}()

	m.cond.Wait()
	close(stop)
	<-done

	return ctx.Err() == nil
}
