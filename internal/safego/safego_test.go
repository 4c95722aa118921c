package safego

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background task did not finish")
	}
}

func TestGo_RunsTask(t *testing.T) {
	done := make(chan struct{})
	Go("test.run", func() { close(done) })
	waitDone(t, done)
}

func TestRun_RecoversAndCountsPanic(t *testing.T) {
	counter := telemetry.BackgroundPanicsTotal.WithLabelValues("test.panic")
	before := counterValue(counter)

	run("test.panic", func() { panic("boom") })

	if got := counterValue(counter) - before; got != 1 {
		t.Errorf("background_panics_total{task=test.panic} grew by %v, want 1", got)
	}
}

func TestGo_PanicDoesNotCrash(t *testing.T) {
	done := make(chan struct{})
	Go("test.go-panic", func() {
		defer close(done)
		panic("boom")
	})
	waitDone(t, done)
}
