package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

// tabular is the {columns, rows} result shape. Some backends send the
// positional rows under "data".
type tabular struct {
	Columns []string          `json:"columns"`
	Rows    []json.RawMessage `json:"rows"`
	Data    []json.RawMessage `json:"data"`
}

// DecodeRows accepts either a flat array of row objects or a
// {columns, rows} pair and returns row objects in column order.
func DecodeRows(raw json.RawMessage) ([]models.Row, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.Row{}, nil
	}

	switch raw[0] {
	case '[':
		var rows []models.Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decoding row array: %w", err)
		}
		if rows == nil {
			rows = []models.Row{}
		}
		return rows, nil
	case '{':
		var t tabular
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decoding tabular result: %w", err)
		}
		if t.Columns == nil && t.Rows == nil && t.Data == nil {
			return nil, ErrUnsupportedShape
		}
		items := t.Rows
		if items == nil {
			items = t.Data
		}
		return decodeTabular(t.Columns, items)
	}
	return nil, ErrUnsupportedShape
}

func decodeTabular(columns []string, items []json.RawMessage) ([]models.Row, error) {
	rows := make([]models.Row, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}

		switch item[0] {
		case '[':
			var values []models.CellValue
			if err := json.Unmarshal(item, &values); err != nil {
				return nil, fmt.Errorf("decoding row %d: %w", i, err)
			}
			rows = append(rows, models.RowOf(columns, values))
		case '{':
			var row models.Row
			if err := json.Unmarshal(item, &row); err != nil {
				return nil, fmt.Errorf("decoding row %d: %w", i, err)
			}
			rows = append(rows, row)
		default:
			return nil, fmt.Errorf("decoding row %d: %w", i, ErrUnsupportedShape)
		}
	}
	return rows, nil
}
