package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/pipeline"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/query"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/remote"
)

func newTestClient(t *testing.T) *remote.Client {
	t.Helper()
	b := newBackend(zap.NewNop())
	b.seed()
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	client, err := remote.NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	return client
}

func TestDashboardAgainstFakeBackend(t *testing.T) {
	client := newTestClient(t)
	c := cache.New(cache.Options{TTL: time.Minute})
	t.Cleanup(c.Close)

	exec := query.NewExecutor(c, client, nil, nil)
	p := pipeline.New(exec, client, c, pipeline.Options{})

	widgets, err := p.FetchWidgets(context.Background(), 1, 1, "main")
	require.NoError(t, err)
	require.Len(t, widgets, 4)

	byTitle := map[string]models.Widget{}
	for _, w := range widgets {
		byTitle[w.Title] = w
	}

	monthly := byTitle["Monthly revenue"].Config.ChartData
	require.Len(t, monthly, 6)
	name, _ := monthly[0].Get(query.NameField)
	assert.Equal(t, "Jan", name.String())

	daily := byTitle["Daily signups"].Config.ChartData
	require.Len(t, daily, 3)
	name, _ = daily[1].Get(query.NameField)
	assert.Equal(t, "Mar 2", name.String())

	accounts := byTitle["Accounts"].Config.ChartData
	require.Len(t, accounts, 2)
	assert.Equal(t, []string{"name", "plan", "seats"}, accounts[0].Keys())
}

func TestWidgetLifecycleAgainstFakeBackend(t *testing.T) {
	client := newTestClient(t)
	scope := models.Scope{TenantID: 2, UserID: 3, Dashboard: "ops"}

	id, err := client.CreateWidget(context.Background(), scope, models.WidgetRecord{Title: "Seats", Type: models.WidgetTable})
	require.NoError(t, err)

	recs, err := client.ListWidgets(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)

	require.NoError(t, client.DeleteWidget(context.Background(), scope, id))

	err = client.DeleteWidget(context.Background(), scope, id)
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestUnknownRelation(t *testing.T) {
	client := newTestClient(t)

	_, err := client.RunQuery(context.Background(), models.QueryRequest{Query: "select * from nowhere", TenantID: 1})
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}
