package core

import (
	"bottlecore/pkg/domain"
	"context"
	"testing"
	"time"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

// TestServiceOptionsCoversClockLogger ensures option overrides take effect.
func TestServiceOptionsCoversClockLogger(t *testing.T) {
	fixed := time.Unix(123, 0).UTC()
	clk := stubClock{t: fixed}
	log := &captureLogger{}
	svc := NewInMemoryService(nil, WithClock(clk), WithLogger(log))

	if _, _, err := svc.ProvisionProduct(context.Background(), domain.ProductLedger{ProductID: "p1", ContainerCapacity: 100, SealedContainers: 1}); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, _, err := svc.Consume(context.Background(), domain.ConsumptionRequest{ProductID: "p1", Amount: 10}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if svc.clock == nil || svc.clock.Now().Unix() != fixed.Unix() {
		t.Fatalf("expected clock override to be used")
	}
	if len(log.calls) == 0 {
		t.Fatalf("expected logger to record calls")
	}
}

// TestServiceOptionsIgnoreNil ensures nil option values keep the defaults.
func TestServiceOptionsIgnoreNil(t *testing.T) {
	svc := NewInMemoryService(nil,
		WithLogger(nil),
		WithAuditRecorder(nil),
		WithMetricsRecorder(nil),
		WithTracer(nil),
		WithClock(nil),
	)
	if svc.logger == nil || svc.audit == nil || svc.metrics == nil || svc.tracer == nil {
		t.Fatalf("nil options must not clear defaults")
	}
	if svc.now == nil {
		t.Fatalf("service needs a timestamp source")
	}
}
