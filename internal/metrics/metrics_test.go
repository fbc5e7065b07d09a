package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with a fresh registry so
// tests don't conflict with each other or with the default registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestSetPoolStatsIsAuthoritative(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetPoolStats(3, 5, 8, 1)
	if v := getGaugeValue(c.sessionsActive); v != 3 {
		t.Errorf("expected active=3, got %v", v)
	}

	c.SetPoolStats(2, 4, 6, 0)
	if v := getGaugeValue(c.sessionsActive); v != 2 {
		t.Errorf("expected active=2 after update, got %v", v)
	}
	if v := getGaugeValue(c.sessionsIdle); v != 4 {
		t.Errorf("expected idle=4, got %v", v)
	}
	if v := getGaugeValue(c.sessionsTotal); v != 6 {
		t.Errorf("expected total=6, got %v", v)
	}
}

func TestQueryDuration(t *testing.T) {
	c, reg := newTestCollector(t)

	c.QueryDuration("GetValues", 0.1)
	c.QueryDuration("GetValues", 0.2)
	c.QueryDuration("AddRecord", 0.05)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() != "mariadbclient_query_duration_seconds" {
			continue
		}
		found = true
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" && l.GetValue() == "GetValues" {
					if m.GetHistogram().GetSampleCount() != 2 {
						t.Errorf("expected 2 GetValues samples, got %d", m.GetHistogram().GetSampleCount())
					}
				}
			}
		}
	}
	if !found {
		t.Error("query duration metric not found")
	}
}

func TestPoolExhausted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.PoolExhausted()
	c.PoolExhausted()
	c.PoolExhausted()

	if v := getCounterValue(c.poolExhausted); v != 3 {
		t.Errorf("expected exhausted=3, got %v", v)
	}
}

func TestAcquireDuration(t *testing.T) {
	c, reg := newTestCollector(t)

	c.AcquireDuration(0.005)

	families, _ := reg.Gather()
	var found bool
	for _, f := range families {
		if f.GetName() == "mariadbclient_acquire_duration_seconds" {
			found = true
			m := f.GetMetric()
			if len(m) > 0 && m[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("expected 1 acquire sample, got %d", m[0].GetHistogram().GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("acquire duration metric not found")
	}
}

func TestOperationRetried(t *testing.T) {
	c, _ := newTestCollector(t)

	c.OperationRetried("GetValues")
	c.OperationRetried("GetValues")
	c.OperationRetried("AddRecord")

	if v := getCounterValue(c.operationRetries.WithLabelValues("GetValues")); v != 2 {
		t.Errorf("expected GetValues retries=2, got %v", v)
	}
	if v := getCounterValue(c.operationRetries.WithLabelValues("AddRecord")); v != 1 {
		t.Errorf("expected AddRecord retries=1, got %v", v)
	}
}

func TestLockContended(t *testing.T) {
	c, _ := newTestCollector(t)

	c.LockContended("table")
	c.LockContended("table")
	c.LockContended("record")

	if v := getCounterValue(c.lockContention.WithLabelValues("table")); v != 2 {
		t.Errorf("expected table contention=2, got %v", v)
	}
	if v := getCounterValue(c.lockContention.WithLabelValues("record")); v != 1 {
		t.Errorf("expected record contention=1, got %v", v)
	}
}

func TestHandshakeFailed(t *testing.T) {
	c, _ := newTestCollector(t)

	c.HandshakeFailed()
	c.HandshakeFailed()

	if v := getCounterValue(c.handshakeFailures); v != 2 {
		t.Errorf("expected handshake failures=2, got %v", v)
	}
}

func TestTransactionCompleted(t *testing.T) {
	c, _ := newTestCollector(t)

	c.TransactionCompleted("commit")
	c.TransactionCompleted("commit")
	c.TransactionCompleted("rollback")

	if v := getCounterValue(c.transactionsTotal.WithLabelValues("commit")); v != 2 {
		t.Errorf("expected commits=2, got %v", v)
	}
	if v := getCounterValue(c.transactionsTotal.WithLabelValues("rollback")); v != 1 {
		t.Errorf("expected rollbacks=1, got %v", v)
	}
}

func TestNewDoesNotPanicOnMultipleCalls(t *testing.T) {
	// Calling New() multiple times must not panic, since each call builds
	// its own registry rather than registering against a shared default.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("New() panicked on repeated calls: %v", r)
		}
	}()

	c1 := New()
	c2 := New()

	c1.SetPoolStats(1, 0, 1, 0)
	c2.SetPoolStats(2, 0, 2, 0)

	if v := getGaugeValue(c1.sessionsActive); v != 1 {
		t.Errorf("c1 expected active=1, got %v", v)
	}
	if v := getGaugeValue(c2.sessionsActive); v != 2 {
		t.Errorf("c2 expected active=2, got %v", v)
	}
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	// A nil *Collector is the "metrics disabled" default (Config.Metrics
	// unset); every method must tolerate it instead of panicking.
	var c *Collector
	c.SetPoolStats(1, 2, 3, 4)
	c.PoolExhausted()
	c.AcquireDuration(1)
	c.QueryDuration("op", 1)
	c.OperationRetried("op")
	c.LockContended("table")
	c.HandshakeFailed()
	c.TransactionCompleted("commit")
}
