package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

type CellKind uint8

const (
	CellNull CellKind = iota
	CellNumber
	CellText
	CellDate
)

func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	case CellDate:
		return "date"
	}
	return "null"
}

// CellValue is a single value of a tabular result: Number, Text, Date or Null.
//
// Values that are not plain scalars on the wire (booleans, nested objects and
// arrays) are held as Text of their JSON encoding and re-encoded verbatim.
type CellValue struct {
	kind CellKind
	num  float64
	text string
	date time.Time
	raw  json.RawMessage
}

func Null() CellValue { return CellValue{} }

func Number(f float64) CellValue { return CellValue{kind: CellNumber, num: f} }

func Text(s string) CellValue { return CellValue{kind: CellText, text: s} }

func Date(t time.Time) CellValue { return CellValue{kind: CellDate, date: t} }

// CellOf converts a Go value, as produced by database drivers, into a CellValue.
func CellOf(v any) CellValue {
	switch x := v.(type) {
	case nil:
		return Null()
	case CellValue:
		return x
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return Text(x.String())
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	case bool:
		s := strconv.FormatBool(x)
		return CellValue{kind: CellText, text: s, raw: json.RawMessage(s)}
	case time.Time:
		return Date(x)
	case fmt.Stringer:
		return Text(x.String())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Text(fmt.Sprint(v))
	}
	return CellValue{kind: CellText, text: string(data), raw: data}
}

func (v CellValue) Kind() CellKind { return v.kind }

func (v CellValue) IsNull() bool { return v.kind == CellNull }

func (v CellValue) Float() (float64, bool) {
	return v.num, v.kind == CellNumber
}

// Str returns the text of a Text value.
func (v CellValue) Str() (string, bool) {
	return v.text, v.kind == CellText
}

func (v CellValue) Time() (time.Time, bool) {
	return v.date, v.kind == CellDate
}

// String renders the raw value. Null renders as the empty string.
func (v CellValue) String() string {
	switch v.kind {
	case CellNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case CellText:
		return v.text
	case CellDate:
		return v.date.Format(time.RFC3339)
	}
	return ""
}

func (v CellValue) MarshalJSON() ([]byte, error) {
	if v.raw != nil {
		return v.raw, nil
	}
	switch v.kind {
	case CellNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case CellText:
		return json.Marshal(v.text)
	case CellDate:
		return json.Marshal(v.date.Format(time.RFC3339))
	}
	return []byte("null"), nil
}

func (v *CellValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty cell value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	case 't', 'f', '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return err
		}
		raw := json.RawMessage(compact.Bytes())
		*v = CellValue{kind: CellText, text: string(raw), raw: raw}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cell value: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("cell value: %w", err)
	}
	*v = Number(f)
	return nil
}

// Row is a field map that keeps the column order it was built or decoded with.
type Row struct {
	keys  []string
	cells map[string]CellValue
}

// RowOf builds a row from parallel key and value slices.
func RowOf(keys []string, values []CellValue) Row {
	var r Row
	for i, k := range keys {
		v := Null()
		if i < len(values) {
			v = values[i]
		}
		r.Set(k, v)
	}
	return r
}

// Set stores v under key. A new key is appended; an existing key keeps its position.
func (r *Row) Set(key string, v CellValue) {
	if r.cells == nil {
		r.cells = make(map[string]CellValue)
	}
	if _, ok := r.cells[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.cells[key] = v
}

func (r Row) Get(key string) (CellValue, bool) {
	v, ok := r.cells[key]
	return v, ok
}

func (r Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Row) Len() int { return len(r.keys) }

func (r Row) Clone() Row {
	out := Row{
		keys:  make([]string, len(r.keys)),
		cells: make(map[string]CellValue, len(r.cells)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.cells {
		out.cells[k] = v
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.cells[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row: expected object, got %v", tok)
	}

	var out Row
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row: expected key, got %v", tok)
		}
		var cell CellValue
		if err := dec.Decode(&cell); err != nil {
			return fmt.Errorf("row: field %q: %w", key, err)
		}
		out.Set(key, cell)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}
