package checks

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()

	files := map[string]string{
		"tests/dup_orders.sql":     "SELECT 1;\n",
		"tests/dup_customers.SQL":  "SELECT 2",
		"tests/other_payments.sql": "SELECT 3",
		"tests/README.md":          "docs",
		"tests/nested/dup_x.sql":   "SELECT 4",
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	t.Run("with prefix", func(t *testing.T) {
		defs, err := Discover(fs, testLogger(), "tests", "dup_")
		require.NoError(t, err)
		require.Len(t, defs, 2)

		assert.Equal(t, "dup_customers", defs[0].ID)
		assert.Equal(t, "dup_customers.SQL", defs[0].FileName)
		assert.Equal(t, "dup_orders", defs[1].ID)
		assert.Equal(t, "SELECT 1;\n", defs[1].Query)
		assert.Equal(t, "tests/dup_orders.sql", defs[1].Path)
	})

	t.Run("without prefix", func(t *testing.T) {
		defs, err := Discover(fs, testLogger(), "tests", "")
		require.NoError(t, err)
		assert.Len(t, defs, 3)
	})

	t.Run("nothing matches", func(t *testing.T) {
		_, err := Discover(fs, testLogger(), "tests", "zzz_")
		require.ErrorIs(t, err, ErrNoChecks)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Discover(fs, testLogger(), "missing", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})
}

func TestDuplicateCheck(t *testing.T) {
	check := DuplicateCheck{
		Schema: "dwh",
		Table:  "Orders.Archive",
		Keys:   ParseKeys(" order_id, ,line_no "),
	}

	require.NoError(t, check.Validate())
	assert.Equal(t, []string{"order_id", "line_no"}, check.Keys)
	assert.Equal(t, "dup_orders_archive.sql", check.FileName("dup_"))
	assert.Equal(t, "Add duplicate check SQL for dwh.Orders.Archive", check.CommitMessage())

	want := "-- Duplicate check for dwh.Orders.Archive\n" +
		"-- Keys: order_id, line_no\n\n" +
		"SELECT order_id, line_no, COUNT(*) AS cnt\n" +
		"FROM dwh.Orders.Archive\n" +
		"GROUP BY order_id, line_no\n" +
		"HAVING COUNT(*) > 1\n" +
		"ORDER BY cnt DESC"
	assert.Equal(t, want, check.Render())
}

func TestDuplicateCheck_Validate(t *testing.T) {
	assert.Error(t, DuplicateCheck{Table: "t", Keys: []string{"k"}}.Validate())
	assert.Error(t, DuplicateCheck{Schema: "s", Keys: []string{"k"}}.Validate())
	assert.Error(t, DuplicateCheck{Schema: "s", Table: "t"}.Validate())
}
