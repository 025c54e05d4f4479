package observe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitProvider_ServesPrometheusScrape(t *testing.T) {
	// InitProvider swaps the global meter provider; restore it afterwards so
	// other tests see the original.
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(origMP) })

	ctx := context.Background()
	handler, shutdown, err := InitProvider(ctx, ProviderConfig{
		ServiceName:    "vaiccs-test",
		ServiceVersion: "0.0.0",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.ChunksIngested.Add(ctx, 3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "vaiccs_audio_ingested") {
		t.Error("scrape output missing vaiccs_audio_ingested counter")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("scrape output missing go runtime collector metrics")
	}
}

func TestInitProvider_RepeatedCallsDoNotCollide(t *testing.T) {
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(origMP) })

	ctx := context.Background()
	for i := range 2 {
		_, shutdown, err := InitProvider(ctx, ProviderConfig{})
		if err != nil {
			t.Fatalf("InitProvider call %d: %v", i+1, err)
		}
		if err := shutdown(ctx); err != nil {
			t.Fatalf("shutdown call %d: %v", i+1, err)
		}
	}
}
