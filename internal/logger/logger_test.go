package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("aggregate", "fundable")
	l.Warn("command rejected", "kind", "fundable.contribute")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["aggregate"] != "fundable" || fields["kind"] != "fundable.contribute" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		l.Debug("hello")
	}
	Nop().Error("discarded")
}
