package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

const defaultHydrationLimit = 500

// LoadFunc reads at most limit rows of one table for an org.
type LoadFunc func(ctx context.Context, orgID string, limit int) ([]Row, error)

// TableLoader dispatches hydration reads to per-table loaders and applies
// each table's row ceiling.
type TableLoader struct {
	mu     sync.RWMutex
	loads  map[string]LoadFunc
	limits map[string]int
}

func NewTableLoader(limits map[string]int) *TableLoader {
	return &TableLoader{
		loads:  make(map[string]LoadFunc),
		limits: limits,
	}
}

func (l *TableLoader) Register(table string, fn LoadFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[table] = fn
}

// Tables lists registered table names in sorted order.
func (l *TableLoader) Tables() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.loads))
	for name := range l.loads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *TableLoader) Limit(table string) int {
	if n, ok := l.limits[table]; ok && n > 0 {
		return n
	}
	return defaultHydrationLimit
}

func (l *TableLoader) Load(ctx context.Context, table, orgID string) ([]Row, error) {
	l.mu.RLock()
	fn, ok := l.loads[table]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return fn(ctx, orgID, l.Limit(table))
}

// ModelLoader loads rows of model T scoped by its org_id column, oldest first.
func ModelLoader[T any](db *gorm.DB) LoadFunc {
	return func(ctx context.Context, orgID string, limit int) ([]Row, error) {
		var items []T
		err := db.WithContext(ctx).
			Where("org_id = ?", orgID).
			Order("created_at ASC").
			Limit(limit).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("loading rows: %w", err)
		}
		return RowsFrom(items)
	}
}
