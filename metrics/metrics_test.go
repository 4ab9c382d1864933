package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveCall("svc", time.Second, nil)
	r.ObserveConnect("svc", errors.New("x"))
	r.SetConnected(3)
	r.ObserveExecution(StatusOK, time.Second)
	r.ObserveOverflow(nil)
	if r.Handler() == nil {
		t.Fatal("Handler() should not be nil")
	}
}

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveCall("svc", 10*time.Millisecond, nil)
	r.ObserveCall("svc", 10*time.Millisecond, errors.New("boom"))
	r.ObserveCall("svc", 10*time.Millisecond, context.DeadlineExceeded)
	r.ObserveConnect("svc", nil)
	r.SetConnected(2)
	r.ObserveExecution(StatusTimeout, time.Second)
	r.ObserveOverflow(errors.New("disk full"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"calls ok", testutil.ToFloat64(r.calls.WithLabelValues("svc", StatusOK)), 1},
		{"calls error", testutil.ToFloat64(r.calls.WithLabelValues("svc", StatusError)), 1},
		{"calls timeout", testutil.ToFloat64(r.calls.WithLabelValues("svc", StatusTimeout)), 1},
		{"connects ok", testutil.ToFloat64(r.connects.WithLabelValues("svc", StatusOK)), 1},
		{"connected", testutil.ToFloat64(r.connected), 2},
		{"executions timeout", testutil.ToFloat64(r.executions.WithLabelValues(StatusTimeout)), 1},
		{"overflow error", testutil.ToFloat64(r.overflow.WithLabelValues(StatusError)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveConnect("context7", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `tool_executor_connects_total{service="context7",status="ok"} 1`) {
		t.Errorf("metrics output missing connects counter:\n%s", body)
	}
}
