package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ─── Metric Helpers ─────────────────────────────────────────────────────────

func TestObserveAction(t *testing.T) {
	before := testutil.ToFloat64(Actions.WithLabelValues("work", "ok"))
	ObserveAction("work", "")
	ObserveAction("work", "ok")
	after := testutil.ToFloat64(Actions.WithLabelValues("work", "ok"))
	if after-before != 2 {
		t.Errorf("work/ok delta = %v, want 2", after-before)
	}

	before = testutil.ToFloat64(Actions.WithLabelValues("rob", "cooldown_active"))
	ObserveAction("rob", "cooldown_active")
	if got := testutil.ToFloat64(Actions.WithLabelValues("rob", "cooldown_active")) - before; got != 1 {
		t.Errorf("rob/cooldown_active delta = %v, want 1", got)
	}
}

func TestObserveFlow_IgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(CurrencyFlow.WithLabelValues("daily"))
	ObserveFlow("daily", 0)
	ObserveFlow("daily", -5)
	ObserveFlow("daily", 700)
	if got := testutil.ToFloat64(CurrencyFlow.WithLabelValues("daily")) - before; got != 700 {
		t.Errorf("daily flow delta = %v, want 700", got)
	}
}

func TestObserveStorage(t *testing.T) {
	ObserveStorage(time.Now(), nil)
	ObserveStorage(time.Now(), errors.New("down"))
	if n := testutil.CollectAndCount(StorageSeconds); n != 2 {
		t.Errorf("StorageSeconds series = %d, want 2", n)
	}
}
