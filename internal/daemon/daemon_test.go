package daemon

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsgen/naginator/internal/config"
	"github.com/opsgen/naginator/internal/telemetry"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunRejectsBadSchedule(t *testing.T) {
	d := New("", t.TempDir(), config.Daemon{Schedule: "not a schedule"}, nil, discard(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Run(ctx); err == nil {
		t.Fatal("Run() should reject an unparsable schedule")
	}
}

func TestMetricsServer(t *testing.T) {
	t.Run("disabled without listen address", func(t *testing.T) {
		d := New("", "", config.Daemon{}, nil, discard(), telemetry.NewMetrics())
		if d.metricsServer() != nil {
			t.Error("no server expected without a listen address")
		}
	})

	t.Run("serves metrics and health", func(t *testing.T) {
		d := New("", "", config.Daemon{Listen: ":0"}, nil, discard(), telemetry.NewMetrics())
		server := d.metricsServer()
		if server == nil {
			t.Fatal("server expected")
		}

		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
		if rec.Code != 200 {
			t.Errorf("healthz status = %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		if rec.Code != 200 {
			t.Errorf("metrics status = %d", rec.Code)
		}
	})
}
