package query

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// dataKeyTokens are matched against column names in rank order.
var dataKeyTokens = []string{"value", "amount", "total", "count", "revenue", "sales"}

// InferType classifies a sample value.
func InferType(v models.CellValue) models.ColumnType {
	switch v.Kind() {
	case models.CellNumber:
		return models.ColumnNumber
	case models.CellDate:
		return models.ColumnDate
	case models.CellText:
		if s, _ := v.Str(); datePrefix.MatchString(s) {
			return models.ColumnDate
		}
	}
	return models.ColumnString
}

func isNumeric(v models.CellValue) bool {
	return v.Kind() == models.CellNumber
}

// InferMetadata derives columns and axis keys from the first row.
//
// LabelKey is the first column with a non-numeric sample, else the first
// column. DataKey is the first numeric column whose name contains a ranked
// token, else the last numeric column.
func InferMetadata(rows []models.Row) models.ChartMetadata {
	meta := models.ChartMetadata{Columns: []models.Column{}}
	if len(rows) == 0 {
		return meta
	}

	first := rows[0]
	keys := first.Keys()
	var numeric []string

	for _, key := range keys {
		v, _ := first.Get(key)
		meta.Columns = append(meta.Columns, models.Column{
			Key:   key,
			Label: columnLabel(key),
			Type:  InferType(v),
		})
		if isNumeric(v) {
			numeric = append(numeric, key)
		} else if meta.LabelKey == "" {
			meta.LabelKey = key
		}
	}

	if meta.LabelKey == "" && len(keys) > 0 {
		meta.LabelKey = keys[0]
	}
	meta.DataKey = pickDataKey(numeric)
	return meta
}

func pickDataKey(numeric []string) string {
	if len(numeric) == 0 {
		return ""
	}
	for _, token := range dataKeyTokens {
		for _, key := range numeric {
			if strings.Contains(strings.ToLower(key), token) {
				return key
			}
		}
	}
	return numeric[len(numeric)-1]
}

func columnLabel(key string) string {
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(key)
	return cases.Title(language.English, cases.NoLower).String(spaced)
}

// resolveKeys applies configured axis keys over inferred ones when the
// configured column exists in the result.
func resolveKeys(meta models.ChartMetadata, cfg *models.ChartConfig) (labelKey, dataKey string) {
	labelKey, dataKey = meta.LabelKey, meta.DataKey
	if cfg == nil {
		return labelKey, dataKey
	}
	if cfg.LabelKey != "" && meta.HasColumn(cfg.LabelKey) {
		labelKey = cfg.LabelKey
	}
	if cfg.DataKey != "" && meta.HasColumn(cfg.DataKey) {
		dataKey = cfg.DataKey
	}
	return labelKey, dataKey
}
