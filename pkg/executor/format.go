package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatRows renders one row per line in result order.
func FormatRows(rows [][]any) string {
	lines := make([]string, 0, len(rows))

	for _, row := range rows {
		lines = append(lines, FormatRow(row))
	}

	return strings.Join(lines, "\n")
}

// FormatRow renders a row as a parenthesised, comma separated tuple,
// e.g. (1, 'abc', NULL). A single column renders as (x) without a trailing
// comma. Strings are single-quoted with backslash escapes for quotes,
// backslashes and line breaks, so a rendered row never spans more than one
// line.
func FormatRow(row []any) string {
	parts := make([]string, 0, len(row))

	for _, v := range row {
		parts = append(parts, formatValue(v))
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

var quoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + quoteEscaper.Replace(val) + "'"
	case []byte:
		return formatValue(string(val))
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return "'" + val.Format(time.RFC3339Nano) + "'"
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
