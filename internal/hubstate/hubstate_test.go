package hubstate

import (
	"testing"

	"github.com/lobinuxsoft/capydeploy/pkg/protocol"
)

func TestTelemetryLazyCreationAndIsolation(t *testing.T) {
	store := NewStore()

	store.Telemetry("agent-a").Push(protocol.TelemetryData{Timestamp: 1})
	store.Telemetry("agent-b").Push(protocol.TelemetryData{Timestamp: 2})

	a, ok := store.Telemetry("agent-a").Latest()
	if !ok || a.Timestamp != 1 {
		t.Fatalf("agent-a latest = %+v, ok=%v, want timestamp 1", a, ok)
	}
	b, ok := store.Telemetry("agent-b").Latest()
	if !ok || b.Timestamp != 2 {
		t.Fatalf("agent-b latest = %+v, ok=%v, want timestamp 2", b, ok)
	}
}

func TestConsoleLogPushBatchPreservesOrder(t *testing.T) {
	store := NewStore()
	log := store.ConsoleLog("agent-a")

	log.PushBatch(protocol.ConsoleLogBatch{Entries: []protocol.ConsoleLogEntry{
		{Timestamp: 1, Text: "first"},
		{Timestamp: 2, Text: "second"},
	}})

	history := log.History()
	if len(history) != 2 || history[0].Text != "first" || history[1].Text != "second" {
		t.Fatalf("History() = %+v, want [first, second] in order", history)
	}
}

func TestForgetDropsState(t *testing.T) {
	store := NewStore()
	store.Telemetry("agent-a").Push(protocol.TelemetryData{Timestamp: 1})

	store.Forget("agent-a")

	_, ok := store.Telemetry("agent-a").Latest()
	if ok {
		t.Error("Latest() after Forget() = ok, want empty history")
	}
}
