package sqlstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/daotest"
)

const postgresDSNEnv = "GATEKEEP_TEST_POSTGRES_DSN"

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), &Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "gatekeep.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newPostgresStore opens a store in a throwaway schema; rows cannot be
// deleted, so every test gets its own schema.
func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	admin, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	suffix := make([]byte, 6)
	_, _ = rand.Read(suffix)
	schema := "gatekeep_test_" + hex.EncodeToString(suffix)
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(ctx, "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close()
	})
	store, err := Open(ctx, &Config{Driver: "postgres", DSN: withSearchPath(dsn, schema), MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		return dsn + separator + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

func TestSQLite_Contract(t *testing.T) {
	daotest.Run(t, func(t *testing.T) dao.Store { return newSQLiteStore(t) })
}

func TestPostgres_Contract(t *testing.T) {
	if os.Getenv(postgresDSNEnv) == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	daotest.Run(t, func(t *testing.T) dao.Store { return newPostgresStore(t) })
}

func TestSQLite_SchemaGuards(t *testing.T) {
	testSchemaGuards(t, newSQLiteStore(t))
}

func TestPostgres_SchemaGuards(t *testing.T) {
	testSchemaGuards(t, newPostgresStore(t))
}

func testSchemaGuards(t *testing.T, store *Store) {
	ctx := context.Background()
	at := daotest.Base
	require.NoError(t, store.CreateAction(ctx, daotest.NewAction("a1", 0), daotest.NewEvent(model.EventHeld, "a1", "", at)))
	_, err := store.Transition(ctx, &dao.Transition{
		ActionID: "a1", From: model.StatusPending, To: model.StatusRejected, Actor: "bob", At: at,
		Event: daotest.NewEvent(model.EventRejected, "a1", "", at),
	})
	require.NoError(t, err)
	maxUses := 1
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{Rule: daotest.NewRule("r1", &maxUses), Event: daotest.NewEvent(model.EventRuleCreated, "", "r1", at)}))

	testCases := []struct {
		description string
		statement   string
	}{
		{description: "event update", statement: "UPDATE approval_events SET reason = 'edited'"},
		{description: "event delete", statement: "DELETE FROM approval_events"},
		{description: "action delete", statement: "DELETE FROM pending_actions"},
		{description: "final status update", statement: "UPDATE pending_actions SET status = 'approved' WHERE id = 'a1'"},
		{description: "rule delete", statement: "DELETE FROM approval_rules"},
		{description: "rule use overflow", statement: "UPDATE approval_rules SET use_count = 2 WHERE id = 'r1'"},
		{description: "rule widening", statement: "UPDATE approval_rules SET arg_constraints = '{}' WHERE id = 'r1'"},
		{description: "unbounded critical rule", statement: "INSERT INTO approval_rules (id, operation_name, arg_constraints, risk_tier, created_at) VALUES ('r2', 'delete_contact', '{}', 'critical', 1)"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := store.DB().ExecContext(ctx, testCase.statement)
			assert.Error(t, err)
		})
	}

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	action, err := store.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, action.Status)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeep.db")
	ctx := context.Background()
	first, err := Open(ctx, &Config{Driver: "sqlite3", DSN: path})
	require.NoError(t, err)
	action := daotest.NewAction("a1", 0)
	action.SealedArguments = []byte{1, 2, 3}
	require.NoError(t, first.CreateAction(ctx, action, daotest.NewEvent(model.EventHeld, "a1", "", time.Time{})))
	require.NoError(t, first.Close())

	second, err := Open(ctx, &Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	defer second.Close()
	loaded, err := second.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, loaded.SealedArguments)
	assert.True(t, loaded.RequestedAt.Equal(action.RequestedAt))

	_, err = Open(ctx, &Config{Driver: "oracle", DSN: path})
	assert.Error(t, err)
}

func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", Postgres.rebind("a = ? AND b IN (?, ?)"))
	assert.Equal(t, "a = ?", SQLite.rebind("a = ?"))
	assert.Equal(t, "db.sqlite?_txlock=immediate", SQLite.dsn("db.sqlite"))
	assert.Equal(t, "db.sqlite?cache=shared&_txlock=immediate", SQLite.dsn("db.sqlite?cache=shared"))
}
