package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/lifecycle"
)

func TestObserveCountsLifecycleEvents(t *testing.T) {
	c := New()
	batch := &lifecycle.Batch{Category: idea.CategoryVideo, Ideas: make([]idea.Idea, 3)}

	require.NoError(t, c.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventGenerated, Batch: batch}))
	require.NoError(t, c.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventSaved, Idea: idea.Idea{Category: idea.CategoryVideo}}))
	require.NoError(t, c.Observe(context.Background(), lifecycle.Event{Kind: lifecycle.EventDeleted, Idea: idea.Idea{ID: "x"}}))

	assert.Equal(t, float64(3), testutil.ToFloat64(c.ideasGenerated.WithLabelValues("video")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ideaEvents.WithLabelValues("saved", "video")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ideaEvents.WithLabelValues("deleted", "")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New()
	router := gin.New()
	router.Use(c.Middleware())
	router.GET("/api/ideas/:id", func(ctx *gin.Context) { ctx.Status(http.StatusNotFound) })
	router.GET("/metrics", gin.WrapH(c.Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ideas/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/ideas/:id", "404")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ideaforge_http_requests_total"))
}
