package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowKeepsDecodedOrder(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"a","mid":null}`), &row))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, row.Keys())

	out, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"a","mid":null}`, string(out))
}

func TestRowSetAppendsNewKeys(t *testing.T) {
	row := RowOf([]string{"b", "a"}, []CellValue{Number(1)})

	v, ok := row.Get("a")
	require.True(t, ok, "missing values are filled with null")
	assert.True(t, v.IsNull())

	row.Set("b", Text("x"))
	row.Set("name", Text("Jan"))
	assert.Equal(t, []string{"b", "a", "name"}, row.Keys())

	s, _ := row.Get("b")
	assert.Equal(t, "x", s.String())
}

func TestRowCloneIsIndependent(t *testing.T) {
	row := RowOf([]string{"a"}, []CellValue{Number(1)})
	clone := row.Clone()
	clone.Set("a", Number(2))
	clone.Set("b", Number(3))

	v, _ := row.Get("a")
	f, _ := v.Float()
	assert.Equal(t, 1.0, f)
	assert.Equal(t, 1, row.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestRowKeysReturnsCopy(t *testing.T) {
	row := RowOf([]string{"a", "b"}, nil)
	keys := row.Keys()
	keys[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, row.Keys())
}

func TestRowRejectsNonObject(t *testing.T) {
	var row Row
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &row))
}

func TestCellValueUnmarshal(t *testing.T) {
	tests := []struct {
		in       string
		kind     CellKind
		str      string
		reencode string
	}{
		{`null`, CellNull, "", `null`},
		{`12.5`, CellNumber, "12.5", `12.5`},
		{`-3`, CellNumber, "-3", `-3`},
		{`"2024-03-01"`, CellText, "2024-03-01", `"2024-03-01"`},
		{`"42"`, CellText, "42", `"42"`},
		{`true`, CellText, "true", `true`},
		{`{"a": [1, 2]}`, CellText, `{"a":[1,2]}`, `{"a":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var v CellValue
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.str, v.String())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.Equal(t, tt.reencode, string(out))
		})
	}
}

func TestCellOf(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, CellNull, CellOf(nil).Kind())
	assert.Equal(t, CellNumber, CellOf(int32(7)).Kind())
	assert.Equal(t, CellNumber, CellOf(json.Number("1.25")).Kind())
	assert.Equal(t, CellText, CellOf("x").Kind())
	assert.Equal(t, CellDate, CellOf(ts).Kind())
	assert.Equal(t, "2024-03-01T00:00:00Z", CellOf(ts).String())

	b := CellOf(false)
	assert.Equal(t, CellText, b.Kind())
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `false`, string(out))

	m := CellOf(map[string]int{"a": 1})
	assert.Equal(t, `{"a":1}`, m.String())
}

func TestCellValueNonFiniteEncodesNull(t *testing.T) {
	out, err := json.Marshal(Number(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, `null`, string(out))
}

func TestWidgetIDAcceptsNumberOrString(t *testing.T) {
	var rec struct {
		A WidgetID `json:"a"`
		B WidgetID `json:"b"`
		C WidgetID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":17,"b":"w-2","c":null}`), &rec))
	assert.Equal(t, WidgetID("17"), rec.A)
	assert.Equal(t, WidgetID("w-2"), rec.B)
	assert.Equal(t, WidgetID(""), rec.C)

	var bad WidgetID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestWidgetTypes(t *testing.T) {
	assert.True(t, WidgetBar.IsChart())
	assert.True(t, WidgetDoughnut.IsChart())
	assert.False(t, WidgetTable.IsChart())
	assert.False(t, WidgetType("pie").Valid())
	assert.False(t, WidgetType("").IsChart())
}

func TestDefinitionRecordRoundTrip(t *testing.T) {
	def := WidgetDefinition{
		Title:    "Revenue",
		Type:     WidgetArea,
		Query:    "select 1",
		Span:     6,
		Position: Position{X: 1, Y: 2},
		Size:     Size{Width: 3, Height: 4},
	}
	scope := Scope{TenantID: 9, UserID: 1, Dashboard: "main"}

	w := def.Record().ToWidget(scope)
	assert.Equal(t, def.Position, w.Position)
	assert.Equal(t, def.Size, w.Size)
	assert.Equal(t, "select 1", w.Query)
	assert.Equal(t, int64(9), w.TenantID)
	assert.Equal(t, "main", w.Dashboard)
	assert.Equal(t, "9/1/main", scope.String())
}
