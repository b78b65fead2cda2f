package sheriff

import (
	"testing"

	"github.com/allbeads/allbeads/internal/graph"
	"github.com/allbeads/allbeads/internal/shadowsync"
)

func TestMergedShadowSetAppliesDiff(t *testing.T) {
	existing := []*graph.ShadowBead{
		{Id: "s1", Summary: "one"},
		{Id: "s2", Summary: "two"},
	}
	diff := shadowsync.Diff{
		Create: []*graph.ShadowBead{{Id: "s3", Summary: "three"}},
		Update: []*graph.ShadowBead{{Id: "s1", Summary: "one-updated"}},
		Delete: []graph.BeadId{"s2"},
	}

	merged := mergedShadowSet(existing, diff)
	byId := make(map[graph.BeadId]*graph.ShadowBead, len(merged))
	for _, s := range merged {
		byId[s.Id] = s
	}

	if len(merged) != 2 {
		t.Fatalf("expected 2 shadows after merge, got %d", len(merged))
	}
	if s, ok := byId["s1"]; !ok || s.Summary != "one-updated" {
		t.Errorf("expected s1 updated, got %+v", s)
	}
	if _, ok := byId["s2"]; ok {
		t.Error("expected s2 to be deleted")
	}
	if _, ok := byId["s3"]; !ok {
		t.Error("expected s3 to be created")
	}
}

func TestSubscribeDropsEventsOnOverflow(t *testing.T) {
	s := &Sheriff{}
	ch := s.Subscribe()

	for i := 0; i < eventBufferSize+10; i++ {
		s.emit(Event{Kind: CycleStarted})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != eventBufferSize {
				t.Fatalf("expected exactly %d buffered events (rest dropped), got %d", eventBufferSize, count)
			}
			return
		}
	}
}

func TestCommandNonBlockingWhenChannelFull(t *testing.T) {
	s := &Sheriff{commands: make(chan Command, 1)}
	s.Command(Pause)
	// Channel is now full; this must not block.
	done := make(chan struct{})
	go func() {
		s.Command(Resume)
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		CycleStarted:    "CycleStarted",
		CycleCompleted:  "CycleCompleted",
		ShadowCreated:   "ShadowCreated",
		ExternalPushed:  "ExternalPushed",
		Error:           "Error",
		EventKind(9999): "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
