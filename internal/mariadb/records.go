package mariadb

import (
	"context"
	"sort"

	"github.com/skymond-software/mariadb-client/internal/lock"
	"github.com/skymond-software/mariadb-client/internal/result"
)

// RecordLock is the handle LockRecords returns. Record locks are pure
// in-process coordination (§4.7) — MariaDB has no server-side notion of a
// "lock this field=value" advisory lock, so unlike table locks this never
// touches the wire and never pins a session.
type RecordLock struct {
	owner   any
	handles []*lock.RecordLockHandle
}

// LockRecords claims one advisory lock per (field, value) criterion against
// the given table, all under one fresh owner token, acquired in a stable
// sorted order to avoid cross-goroutine lock-ordering deadlocks.
func (d *MariaDBDatabase) LockRecords(ctx context.Context, db, table string, criteria ...result.FieldValue) (*RecordLock, error) {
	sorted := append([]result.FieldValue(nil), criteria...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	owner := new(int)
	rl := &RecordLock{owner: owner}
	for _, c := range sorted {
		h, err := d.locks.LockRecords(ctx, owner, db, table, c.Name, c.Value)
		if err != nil {
			d.unlockAll(rl)
			return nil, err
		}
		rl.handles = append(rl.handles, h)
	}
	return rl, nil
}

// UnlockRecords releases every key lk holds.
func (d *MariaDBDatabase) UnlockRecords(lk *RecordLock) {
	d.unlockAll(lk)
}

func (d *MariaDBDatabase) unlockAll(lk *RecordLock) {
	if lk == nil {
		return
	}
	for _, h := range lk.handles {
		d.locks.UnlockRecords(lk.owner, h)
	}
	lk.handles = nil
}
