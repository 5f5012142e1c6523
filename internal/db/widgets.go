package db

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

// NotFoundError is returned when a widget delete matches no row in scope.
type NotFoundError struct {
	ID models.WidgetID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("widget %s not found", e.ID)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

func (db *DB) ListWidgets(ctx context.Context, scope models.Scope) ([]models.WidgetRecord, error) {
	query := `
        SELECT id::text, title, type, span, position_x, position_y, size_width, size_height, sql_query
        FROM dashboard_widgets
        WHERE tenant_id = $1 AND user_id = $2 AND dashboard = $3
        ORDER BY position_y, position_x, created_at
    `

	rows, err := db.Pool.Query(ctx, query, scope.TenantID, scope.UserID, scope.Dashboard)
	if err != nil {
		return nil, fmt.Errorf("listing widgets: %w", err)
	}
	defer rows.Close()

	records := []models.WidgetRecord{}
	for rows.Next() {
		var rec models.WidgetRecord
		var id string
		var typ string
		err := rows.Scan(
			&id,
			&rec.Title,
			&typ,
			&rec.Span,
			&rec.PositionX,
			&rec.PositionY,
			&rec.SizeWidth,
			&rec.SizeHeight,
			&rec.SQLQuery,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning widget: %w", err)
		}
		rec.ID = models.WidgetID(id)
		rec.Type = models.WidgetType(typ)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing widgets: %w", err)
	}

	return records, nil
}

func (db *DB) CreateWidget(ctx context.Context, scope models.Scope, rec models.WidgetRecord) (models.WidgetID, error) {
	query := `
        INSERT INTO dashboard_widgets
            (id, tenant_id, user_id, dashboard, title, type, span, position_x, position_y, size_width, size_height, sql_query)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id::text
    `

	var id string
	err := db.Pool.QueryRow(ctx, query,
		uuid.New().String(),
		scope.TenantID,
		scope.UserID,
		scope.Dashboard,
		rec.Title,
		string(rec.Type),
		rec.Span,
		rec.PositionX,
		rec.PositionY,
		rec.SizeWidth,
		rec.SizeHeight,
		rec.SQLQuery,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating widget: %w", err)
	}

	return models.WidgetID(id), nil
}

func (db *DB) DeleteWidget(ctx context.Context, scope models.Scope, id models.WidgetID) error {
	widgetID, err := uuid.Parse(string(id))
	if err != nil {
		return &NotFoundError{ID: id}
	}

	query := `
        DELETE FROM dashboard_widgets
        WHERE id = $1 AND tenant_id = $2 AND user_id = $3 AND dashboard = $4
    `

	tag, err := db.Pool.Exec(ctx, query, widgetID.String(), scope.TenantID, scope.UserID, scope.Dashboard)
	if err != nil {
		return fmt.Errorf("deleting widget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}
