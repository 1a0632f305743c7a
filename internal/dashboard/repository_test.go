package dashboard

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Paid repairs are deleted by payout retention, so period cost must come from
// the history table and that table must not cascade from repairs.
func TestTechnicianCostSurvivesPaidRepairPurge(t *testing.T) {
	require.Contains(t, technicianCostQuery, "FROM repair_cost_history")
	require.NotRegexp(t, regexp.MustCompile(`FROM\s+repairs\b`), technicianCostQuery)

	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var found bool
	for _, f := range files {
		raw, err := os.ReadFile(f)
		require.NoError(t, err)
		sql := string(raw)
		start := strings.Index(sql, "CREATE TABLE IF NOT EXISTS repair_cost_history")
		if start < 0 {
			continue
		}
		found = true
		block := sql[start:]
		block = block[:strings.Index(block, ");")]
		require.NotContains(t, block, "REFERENCES", "%s: cost history must outlive purged repairs", f)
	}
	require.True(t, found, "repair_cost_history table missing from migrations")
}
