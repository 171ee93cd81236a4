// SPDX-License-Identifier: Apache-2.0
package core

import (
	"context"
	"strings"
	"testing"
)

func TestEventChannels(t *testing.T) {
	e := Event{Type: EventTaskStarted, NetworkID: "n1", TaskID: "t1"}
	got := e.Channels()
	want := []string{"agentnet:task:t1", "agentnet:network:n1"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	memEvent := Event{Type: EventMemoryAdded, NetworkID: "n1"}
	if ch := memEvent.Channels(); len(ch) != 1 || ch[0] != "agentnet:network:n1" {
		t.Fatalf("network-only event should publish on the network channel, got %v", ch)
	}
}

func TestNewEventCarriesRun(t *testing.T) {
	ctx, run := StartRun(context.Background(), "n1", "t1")
	if !strings.HasPrefix(run.ID, "run-") {
		t.Fatalf("unexpected run id %q", run.ID)
	}
	ctx2, run2 := StartRun(ctx, "n1", "t1")
	if run2 != run || ctx2 != ctx {
		t.Fatalf("StartRun must keep the run of the same task")
	}
	if _, other := StartRun(ctx, "n1", "t2"); other.ID == run.ID {
		t.Fatalf("a different task must get a new run")
	}

	e := NewEvent(ctx, EventSubtaskStarted, "", "", map[string]any{"k": "v"}).WithAgent("a1")
	if e.RunID != run.ID || e.NetworkID != "n1" || e.TaskID != "t1" || e.AgentID != "a1" || e.Timestamp.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}

	memEvent := NewEvent(ctx, EventMemoryAdded, "n2", "", nil)
	if memEvent.NetworkID != "n2" || memEvent.TaskID != "t1" {
		t.Fatalf("explicit ids win over the run: %+v", memEvent)
	}
	if id, ok := RunID(context.Background()); ok || id != "" {
		t.Fatalf("empty context has no run")
	}
}

func TestEventEmitterFunc(t *testing.T) {
	var got []EventType
	var emitter EventEmitter = EventEmitterFunc(func(_ context.Context, e Event) {
		got = append(got, e.Type)
	})
	emitter.Emit(context.Background(), Event{Type: EventTaskCompleted})
	NoopEventEmitter{}.Emit(context.Background(), Event{Type: EventTaskFailed})
	if len(got) != 1 || got[0] != EventTaskCompleted {
		t.Fatalf("unexpected events %v", got)
	}
}
