package state

import (
	"context"
	"strings"
)

const memoryDSN = "memory://"

// Open returns the store for dsn: memory:// keeps state in process, anything else goes to SQLStore.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, memoryDSN) {
		return NewMemoryStore(), nil
	}
	return NewSQLStore(ctx, dsn)
}
