package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type WidgetType string

const (
	WidgetLine     WidgetType = "line"
	WidgetBar      WidgetType = "bar"
	WidgetArea     WidgetType = "area"
	WidgetDoughnut WidgetType = "doughnut"
	WidgetTable    WidgetType = "table"
)

func (t WidgetType) Valid() bool {
	switch t {
	case WidgetLine, WidgetBar, WidgetArea, WidgetDoughnut, WidgetTable:
		return true
	}
	return false
}

// IsChart reports whether rows for this presentation get a derived name field.
func (t WidgetType) IsChart() bool {
	return t.Valid() && t != WidgetTable
}

// WidgetID is assigned by the server. The wire form may be a JSON number or string.
type WidgetID string

func (id *WidgetID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = WidgetID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("widget id: %w", err)
	}
	*id = WidgetID(n.String())
	return nil
}

type Position struct {
	X int `json:"x" validate:"gte=0"`
	Y int `json:"y" validate:"gte=0"`
}

type Size struct {
	Width  int `json:"width" validate:"gte=0"`
	Height int `json:"height" validate:"gte=0"`
}

// ChartConfig carries presentation hints. LabelKey and DataKey, when set and
// present in the result, take precedence over inferred axis keys.
type ChartConfig struct {
	LabelKey   string   `json:"labelKey,omitempty"`
	DataKey    string   `json:"dataKey,omitempty"`
	Colors     []string `json:"colors,omitempty"`
	ShowLegend *bool    `json:"showLegend,omitempty"`
}

type WidgetConfig struct {
	ChartData   []Row        `json:"chartData,omitempty"`
	ChartConfig *ChartConfig `json:"chartConfig,omitempty"`
}

// Widget is a dashboard tile as held by the pipeline and served to the UI.
type Widget struct {
	ID        WidgetID     `json:"id"`
	Title     string       `json:"title"`
	Type      WidgetType   `json:"type"`
	Query     string       `json:"query,omitempty"`
	Span      int          `json:"span"`
	Position  Position     `json:"position"`
	Size      Size         `json:"size"`
	TenantID  int64        `json:"tenant_id"`
	Dashboard string       `json:"dashboard"`
	Config    WidgetConfig `json:"config"`
}

// WidgetRecord is the widget definition record returned by the widget list endpoint.
type WidgetRecord struct {
	ID         WidgetID   `json:"id,omitempty"`
	Title      string     `json:"title"`
	Type       WidgetType `json:"type"`
	Span       int        `json:"span"`
	PositionX  int        `json:"position_x"`
	PositionY  int        `json:"position_y"`
	SizeWidth  int        `json:"size_width"`
	SizeHeight int        `json:"size_height"`
	SQLQuery   string     `json:"sql_query"`
}

func (r WidgetRecord) ToWidget(scope Scope) Widget {
	return Widget{
		ID:        r.ID,
		Title:     r.Title,
		Type:      r.Type,
		Query:     r.SQLQuery,
		Span:      r.Span,
		Position:  Position{X: r.PositionX, Y: r.PositionY},
		Size:      Size{Width: r.SizeWidth, Height: r.SizeHeight},
		TenantID:  scope.TenantID,
		Dashboard: scope.Dashboard,
	}
}

// WidgetDefinition is the input for creating a widget, from admin
// configuration or a chat "add to dashboard" action.
type WidgetDefinition struct {
	Title    string       `json:"title" validate:"required,max=200"`
	Type     WidgetType   `json:"type" validate:"required,oneof=line bar area doughnut table"`
	Query    string       `json:"query,omitempty"`
	Span     int          `json:"span" validate:"gte=0,lte=12"`
	Position Position     `json:"position"`
	Size     Size         `json:"size"`
	Config   WidgetConfig `json:"config"`
}

func (d WidgetDefinition) Record() WidgetRecord {
	return WidgetRecord{
		Title:      d.Title,
		Type:       d.Type,
		Span:       d.Span,
		PositionX:  d.Position.X,
		PositionY:  d.Position.Y,
		SizeWidth:  d.Size.Width,
		SizeHeight: d.Size.Height,
		SQLQuery:   d.Query,
	}
}

// WidgetPatch is a partial update; nil fields are left untouched.
type WidgetPatch struct {
	Title  *string       `json:"title,omitempty"`
	Type   *WidgetType   `json:"type,omitempty"`
	Query  *string       `json:"query,omitempty"`
	Span   *int          `json:"span,omitempty"`
	Config *WidgetConfig `json:"config,omitempty"`
}

// Scope bounds which widgets and cache entries are valid together.
type Scope struct {
	TenantID  int64  `json:"tenant_id"`
	UserID    int64  `json:"user_id"`
	Dashboard string `json:"dashboard"`
}

func (s Scope) String() string {
	return strconv.FormatInt(s.TenantID, 10) + "/" + strconv.FormatInt(s.UserID, 10) + "/" + s.Dashboard
}

// QueryRequest is the body sent to the remote query endpoint.
type QueryRequest struct {
	Query    string `json:"query"`
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
}

// WidgetListRequest is the body sent to the widget list endpoint.
type WidgetListRequest struct {
	TenantID  int64  `json:"tenant_id"`
	Dashboard string `json:"dashboard"`
	UserID    int64  `json:"user_id"`
}

type ColumnType string

const (
	ColumnNumber ColumnType = "number"
	ColumnDate   ColumnType = "date"
	ColumnString ColumnType = "string"
)

type Column struct {
	Key   string     `json:"key"`
	Label string     `json:"label"`
	Type  ColumnType `json:"type"`
}

// ChartMetadata describes a tabular result and which columns serve as axes.
// Empty LabelKey/DataKey mean no suitable column was found.
type ChartMetadata struct {
	Columns  []Column `json:"columns"`
	LabelKey string   `json:"labelKey,omitempty"`
	DataKey  string   `json:"dataKey,omitempty"`
}

func (m ChartMetadata) HasColumn(key string) bool {
	for _, c := range m.Columns {
		if c.Key == key {
			return true
		}
	}
	return false
}
