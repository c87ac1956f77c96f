package webhooks_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/enrollhooks/internal/webhooks"
)

func TestMetricsTotalsAndScore(t *testing.T) {
	m := webhooks.NewMetricsTracker()
	id := uuid.New()

	m.Record(id, true, 100*time.Millisecond)
	m.Record(id, true, 300*time.Millisecond)
	m.Record(id, false, 2*time.Second)
	m.Record(id, false, 0)

	hm := m.Snapshot(id)
	if hm.TotalDeliveries != 4 {
		t.Fatalf("TotalDeliveries = %d, want 4", hm.TotalDeliveries)
	}
	if hm.SuccessfulDeliveries != 2 {
		t.Fatalf("SuccessfulDeliveries = %d, want 2", hm.SuccessfulDeliveries)
	}
	if hm.HealthScore != 0.5 {
		t.Fatalf("HealthScore = %f, want 0.5", hm.HealthScore)
	}
	// Average latency covers successful deliveries only.
	if hm.AverageLatencyMs != 200 {
		t.Fatalf("AverageLatencyMs = %f, want 200", hm.AverageLatencyMs)
	}
}

func TestMetricsScoreBounds(t *testing.T) {
	m := webhooks.NewMetricsTracker()

	fresh := m.Snapshot(uuid.New())
	if fresh.HealthScore != 1.0 {
		t.Fatalf("fresh webhook HealthScore = %f, want 1.0", fresh.HealthScore)
	}

	id := uuid.New()
	for i := 0; i < 10; i++ {
		m.Record(id, false, time.Second)
	}
	hm := m.Snapshot(id)
	if hm.HealthScore < 0 || hm.HealthScore > 1 {
		t.Fatalf("HealthScore %f out of [0,1]", hm.HealthScore)
	}
	if hm.HealthScore != 0 {
		t.Fatalf("all-failing webhook HealthScore = %f, want 0", hm.HealthScore)
	}
}

func TestMetricsConcurrentRecords(t *testing.T) {
	m := webhooks.NewMetricsTracker()
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Record(id, i%2 == 0, 10*time.Millisecond)
		}(i)
	}
	wg.Wait()

	hm := m.Snapshot(id)
	if hm.TotalDeliveries != 100 {
		t.Fatalf("TotalDeliveries = %d, want 100 (lost updates)", hm.TotalDeliveries)
	}
	if hm.SuccessfulDeliveries != 50 {
		t.Fatalf("SuccessfulDeliveries = %d, want 50", hm.SuccessfulDeliveries)
	}
}
