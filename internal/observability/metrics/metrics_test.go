package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ResultOK},
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization_failure", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: ReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyFailure(tc.err))
		})
	}
}

func TestChargeInstruments(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(Config{ServiceName: "dongi", Environment: "test"}, registry)
	require.NoError(t, err)

	m.RecordChargeSkip("share_too_small")
	m.RecordChargeSkip("share_too_small")
	m.AddRoundingLoss(2)
	m.AddRoundingLoss(-5)
	m.RecordTransition("strict", "LOCKED", ResultOK)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.chargeSkips.WithLabelValues("share_too_small")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.roundingLoss))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventTransitions.WithLabelValues("strict", "LOCKED", ResultOK)))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordChargeSkip("invalid_amount")
		m.AddRoundingLoss(10)
		m.RecordTransition("admin", "DRAFT", ResultRejected)
		m.RecordSelectionMutation("create", ResultOK)
	})
}

func TestHTTPMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	h, err := NewHTTPMetrics(Config{}, registry)
	require.NoError(t, err)

	router := gin.New()
	router.Use(h.GinMiddleware())
	router.GET("/events/:eventId", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(h.requests.WithLabelValues(http.MethodGet, "/events/:eventId", "204")))
}
