package storage

import (
	"context"
	"time"
)

// Order is the traversal direction of a log query.
type Order string

const (
	// OrderLatest returns entries descending by id (most recent first).
	OrderLatest Order = "latest"
	// OrderEarliest returns entries ascending by id (oldest first).
	OrderEarliest Order = "earliest"
)

const (
	// DefaultLimit is applied when a query supplies no limit.
	DefaultLimit = 100
	// MaxLimit caps any single query page.
	MaxLimit = 10_000
)

// Filter selects log entries. All supplied conditions are ANDed. AfterID is
// a cursor: a previously observed entry id; with OrderLatest the query
// continues strictly older (id < AfterID), with OrderEarliest strictly
// newer (id > AfterID).
type Filter struct {
	StudentID string
	Trial     string
	FuncName  string
	StartTime time.Time
	EndTime   time.Time
	Order     Order
	Limit     int
	AfterID   int64
}

// normalize clamps the limit into [1, MaxLimit] and defaults the order.
func (f *Filter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Order != OrderEarliest {
		f.Order = OrderLatest
	}
}

// matches reports whether the entry satisfies the filter's field and time
// conditions. Cursor and limit handling stay with the store.
func (f *Filter) matches(e *Entry) bool {
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.Trial != "" && (e.Trial == nil || *e.Trial != f.Trial) {
		return false
	}
	if f.FuncName != "" && e.FuncName != f.FuncName {
		return false
	}
	if !f.StartTime.IsZero() && e.TS.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.TS.After(f.EndTime) {
		return false
	}
	return true
}

// FetchAll repeatedly queries the store with limit pageSize, advancing the
// cursor past each page's last entry, until a short page signals
// end-of-data. It never re-emits an id, but entries appended behind the
// cursor during iteration may be missed; it is not a point-in-time
// snapshot.
func FetchAll(ctx context.Context, store Store, f Filter, pageSize int) ([]*Entry, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []*Entry
	f.Limit = pageSize
	f.AfterID = 0

	for {
		page, err := store.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		f.AfterID = page[len(page)-1].ID
	}
}
