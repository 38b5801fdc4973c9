package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "order_expiration"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncSkipped(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for _, name := range []string{"fulfillment_job_success_total", "fulfillment_job_failure_total", "fulfillment_job_skipped_total"} {
		if got, err := fetchCounterValue(mfs, name, map[string]string{"job": job}); err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		} else if got != 1 {
			t.Fatalf("expected %s=1, got %f", name, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "fulfillment_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var cron *CronJobMetrics
	cron.IncSuccess("x")
	cron.ObserveDuration("x", time.Second)

	NewCronJobMetrics(nil).IncFailure("x")
	NewFulfillmentMetrics(nil).AddSweepResults(1, 2, 3)

	var f *FulfillmentMetrics
	f.IncCheckout("created")
}

func TestFulfillmentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)
	m.IncCheckout("created")
	m.IncCheckout("insufficient_stock")
	m.IncTransition("PAID", true)
	m.IncTransition("PAID", false)
	m.IncPaymentEvent("payment_completed", "applied")
	m.AddSweepResults(9, 0, 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"fulfillment_checkouts_total", map[string]string{"outcome": "created"}, 1},
		{"fulfillment_order_transitions_total", map[string]string{"status": "PAID", "applied": "false"}, 1},
		{"fulfillment_payment_events_total", map[string]string{"type": "payment_completed", "outcome": "applied"}, 1},
		{"fulfillment_expired_orders_total", map[string]string{"result": "cancelled"}, 9},
		{"fulfillment_expired_orders_total", map[string]string{"result": "failed"}, 1},
	}
	for _, tc := range cases {
		got, err := fetchCounterValue(mfs, tc.name, tc.labels)
		if err != nil {
			t.Fatalf("fetch %s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s%v expected %f got %f", tc.name, tc.labels, tc.want, got)
		}
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		matched := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				matched = false
				break
			}
		}
		if matched {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
