package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/dupcheck/pkg/checks"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/database"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

// fakeConnector returns scripted sessions and counts open sessions.
type fakeConnector struct {
	connectErr error
	rows       map[string][][]any
	queryErr   map[string]error
	panicOn    string
	opened     int
	closed     int
	queries    []string
}

func (f *fakeConnector) Connect(_ context.Context, _ string, _ credential.Pair) (database.Session, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}

	f.opened++

	return &fakeSession{c: f}, nil
}

type fakeSession struct {
	c *fakeConnector
}

func (s *fakeSession) Query(_ context.Context, query string) ([][]any, error) {
	s.c.queries = append(s.c.queries, query)

	if query == s.c.panicOn {
		panic("driver blew up")
	}

	if err, ok := s.c.queryErr[query]; ok {
		return nil, err
	}

	return s.c.rows[query], nil
}

func (s *fakeSession) Close() error {
	s.c.closed++

	return nil
}

func def(id, query string) checks.Definition {
	return checks.Definition{ID: id, FileName: id + ".sql", Query: query}
}

func TestExecute_Classification(t *testing.T) {
	conn := &fakeConnector{
		rows: map[string][][]any{
			"SELECT dup": {{int64(1), int64(2)}, {int64(1), int64(3)}},
		},
		queryErr: map[string]error{
			"SELECT bad": errors.New("ORA-00942: table or view does not exist"),
		},
	}

	e := NewExecutor(testLogger(), conn)
	ctx := context.Background()

	t.Run("zero rows pass", func(t *testing.T) {
		r := e.Execute(ctx, def("clean", "SELECT clean;\n"), Target{})
		assert.Equal(t, StatusPassed, r.Status)
		assert.Equal(t, "no duplicates found", r.Summary)
		assert.Empty(t, r.Detail)
	})

	t.Run("rows fail", func(t *testing.T) {
		r := e.Execute(ctx, def("orders_dup", "SELECT dup ; \n"), Target{})
		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, "2 duplicate sets found", r.Summary)
		assert.Equal(t, "(1, 2)\n(1, 3)", r.Detail)
		assert.Equal(t, "orders_dup", r.Check.ID)
	})

	t.Run("driver error is broken", func(t *testing.T) {
		r := e.Execute(ctx, def("bad", "SELECT bad"), Target{})
		assert.Equal(t, StatusBroken, r.Status)
		assert.Equal(t, "execution error", r.Summary)
		assert.Contains(t, r.Detail, "ORA-00942")
	})

	t.Run("empty query is broken", func(t *testing.T) {
		r := e.Execute(ctx, def("empty", " ;\n"), Target{})
		assert.Equal(t, StatusBroken, r.Status)
		assert.Equal(t, "query is empty", r.Detail)
	})

	assert.Equal(t, conn.opened, conn.closed)
}

func TestExecute_ConnectError(t *testing.T) {
	conn := &fakeConnector{connectErr: errors.New("ORA-12154: TNS:could not resolve the connect identifier specified")}

	results := NewExecutor(testLogger(), conn).ExecuteAll(context.Background(), []checks.Definition{
		def("invalid_dsn", "SELECT 1"),
		def("second", "SELECT 2"),
	}, Target{DSN: "nowhere/DWH"})

	require.Len(t, results, 2)

	for _, r := range results {
		assert.Equal(t, StatusBroken, r.Status)
		assert.Contains(t, r.Detail, "ORA-12154")
	}

	assert.Equal(t, "second", results[1].Check.ID)
}

func TestExecuteAll_Isolation(t *testing.T) {
	conn := &fakeConnector{
		rows: map[string][][]any{
			"SELECT dup": {{"a"}},
		},
		queryErr: map[string]error{
			"SELECT bad": errors.New("syntax error"),
		},
		panicOn: "SELECT panic",
	}

	results := NewExecutor(testLogger(), conn).ExecuteAll(context.Background(), []checks.Definition{
		def("bad", "SELECT bad"),
		def("panics", "SELECT panic"),
		def("dup", "SELECT dup"),
		def("clean", "SELECT clean"),
	}, Target{})

	require.Len(t, results, 4)
	assert.Equal(t, StatusBroken, results[0].Status)
	assert.Equal(t, StatusBroken, results[1].Status)
	assert.Contains(t, results[1].Detail, "driver blew up")
	assert.Equal(t, StatusFailed, results[2].Status)
	assert.Equal(t, "('a')", results[2].Detail)
	assert.Equal(t, StatusPassed, results[3].Status)

	assert.Equal(t, []string{"SELECT bad", "SELECT panic", "SELECT dup", "SELECT clean"}, conn.queries)
	assert.Equal(t, 4, conn.opened)
	assert.Equal(t, 4, conn.closed)

	assert.Equal(t, Tally{Passed: 1, Failed: 1, Broken: 2}, Count(results))
	assert.Equal(t, 4, Count(results).Total())
}

func TestExecuteAll_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dwh.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE orders (id INTEGER, line INTEGER)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO orders VALUES (1, 2), (1, 2), (1, 3), (1, 3), (2, 1)`).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	conn, err := database.NewConnector(testLogger(), "sqlite")
	require.NoError(t, err)

	results := NewExecutor(testLogger(), conn).ExecuteAll(context.Background(), []checks.Definition{
		def("orders_dup", "SELECT id, line FROM orders GROUP BY id, line HAVING COUNT(*) > 1 ORDER BY line;\n"),
		def("broken", "SELECT * FROM no_such_table;"),
		def("unique_ids", "SELECT id FROM orders WHERE id > 100;"),
		def("multiline_values", "SELECT 'a' || char(10) || 'b', 1 UNION ALL SELECT 'c', 2;"),
	}, Target{DSN: path})

	require.Len(t, results, 4)

	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, "2 duplicate sets found", results[0].Summary)
	assert.Equal(t, "(1, 2)\n(1, 3)", results[0].Detail)
	assert.Len(t, strings.Split(results[0].Detail, "\n"), 2)

	assert.Equal(t, StatusBroken, results[1].Status)
	assert.Contains(t, results[1].Detail, "no_such_table")

	assert.Equal(t, StatusPassed, results[2].Status)
	assert.Empty(t, results[2].Detail)

	assert.Equal(t, StatusFailed, results[3].Status)
	assert.Equal(t, "2 duplicate sets found", results[3].Summary)
	assert.Equal(t, `('a\nb', 1)`+"\n"+`('c', 2)`, results[3].Detail)
	assert.Len(t, strings.Split(results[3].Detail, "\n"), 2)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "SELECT 1", want: "SELECT 1"},
		{in: "SELECT 1;", want: "SELECT 1"},
		{in: "SELECT 1 ;\n\n", want: "SELECT 1"},
		{in: "SELECT 1;;\r\n", want: "SELECT 1"},
		{in: "  SELECT ';'\n;", want: "  SELECT ';'"},
		{in: ";\n", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeQuery(tt.in), tt.in)
	}
}
