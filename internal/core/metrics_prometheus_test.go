package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func TestPrometheusRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	rec.Observe(ctx, "create_sentence", true, 5*time.Millisecond)
	rec.Observe(ctx, "create_sentence", true, 7*time.Millisecond)
	rec.Observe(ctx, "transition_sentence", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_sentence", "success")); got != 2 {
		t.Fatalf("create_sentence success = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("transition_sentence", "error")); got != 1 {
		t.Fatalf("transition_sentence error = %v", got)
	}
	// one histogram series per operation, nothing for the empty name
	if got := testutil.CollectAndCount(rec.durations); got != 2 {
		t.Fatalf("duration series = %d", got)
	}
}

func TestPrometheusRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("second registration on the same registry must fail")
	}
}

func TestServiceObservesThroughPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	ctx := context.Background()

	if _, _, err := svc.CreateSentence(ctx, Sentence{Title: "observed"}); err != nil {
		t.Fatalf("create sentence: %v", err)
	}
	if _, _, err := svc.TransitionSentence(ctx, "missing", domain.SentenceOpen, "nobody"); err == nil {
		t.Fatalf("transition of a missing sentence must fail")
	}

	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_sentence", "success")); got != 1 {
		t.Fatalf("create_sentence success = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("transition_sentence", "error")); got != 1 {
		t.Fatalf("transition_sentence error = %v", got)
	}
}
