package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	// a single connection keeps the shared in-memory database alive and
	// serializes access the way sqlite expects
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, CreateSchema(context.Background(), db))

	t.Cleanup(func() { _ = db.Close() })
	return db
}
