package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Error("auth")
	if got := testutil.ToFloat64(b.ErrorsTotal.WithLabelValues("auth")); got != 0 {
		t.Fatalf("collectors must not share state, got %v", got)
	}
}

func TestTurnStarted_RecordsOutcome(t *testing.T) {
	c := New()
	done := c.TurnStarted("stream")
	if got := testutil.ToFloat64(c.TurnsInFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	done("ok")
	if got := testutil.ToFloat64(c.TurnsInFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(c.TurnsTotal.WithLabelValues("stream", "ok")); got != 1 {
		t.Fatalf("expected 1 ok turn, got %v", got)
	}
	if n := testutil.CollectAndCount(c.TurnDuration); n != 1 {
		t.Fatalf("expected 1 duration series, got %d", n)
	}
}

func TestCounters(t *testing.T) {
	c := New()
	c.Payload("extracted")
	c.Payload("extracted")
	c.Update("reload")
	c.Frame("text")
	c.CacheRefresh(nil)
	c.CacheRefresh(errors.New("down"))

	if got := testutil.ToFloat64(c.PayloadsTotal.WithLabelValues("extracted")); got != 2 {
		t.Fatalf("expected 2 payloads, got %v", got)
	}
	if got := testutil.ToFloat64(c.UpdatesTotal.WithLabelValues("reload")); got != 1 {
		t.Fatalf("expected 1 update, got %v", got)
	}
	if got := testutil.ToFloat64(c.FramesTotal.WithLabelValues("text")); got != 1 {
		t.Fatalf("expected 1 frame, got %v", got)
	}
	if got := testutil.ToFloat64(c.CacheRefreshes.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed refresh, got %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.TurnStarted("sync")("error")
	c.Error("network")
	c.Payload("none")
	c.Update("reload")
	c.Frame("done")
	c.CacheRefresh(nil)
	if c.Registry() != nil {
		t.Fatal("nil collector has no registry")
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.Update("replace-listing")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `invoicechat_view_updates_total{action="replace-listing"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
