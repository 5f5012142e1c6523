package query

import (
	"math"
	"strings"
	"time"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

// NameField is the derived label added to every row of a chart result.
const NameField = "name"

var monthAbbr = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// TransformRows copies each row and sets NameField from the labelKey value.
// The input rows are not modified.
func TransformRows(rows []models.Row, labelKey string) []models.Row {
	out := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		v, _ := row.Get(labelKey)
		enhanced := row.Clone()
		enhanced.Set(NameField, models.Text(chartName(labelKey, v)))
		out = append(out, enhanced)
	}
	return out
}

// chartName applies, in order: month number in a "month" column, leading
// YYYY-MM-DD text, then the raw value.
func chartName(column string, v models.CellValue) string {
	if m, ok := monthNumber(v); ok && strings.Contains(strings.ToLower(column), "month") {
		return monthAbbr[m-1]
	}
	if s, ok := v.Str(); ok && datePrefix.MatchString(s) {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return shortDate(t)
		}
	}
	if t, ok := v.Time(); ok {
		return shortDate(t)
	}
	return v.String()
}

func monthNumber(v models.CellValue) (int, bool) {
	f, ok := v.Float()
	if !ok || f != math.Trunc(f) || f < 1 || f > 12 {
		return 0, false
	}
	return int(f), true
}

func shortDate(t time.Time) string {
	return t.Format("Jan 2")
}
