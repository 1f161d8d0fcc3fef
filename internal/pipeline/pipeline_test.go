package pipeline

import (
	"testing"
	"time"

	"threadpulse.app/pulse/common/id"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/analysis"
	"threadpulse.app/pulse/internal/gate"
	"threadpulse.app/pulse/internal/model"
)

func testGateConfig() config.GateConfig {
	return config.GateConfig{
		MinMessages:        5,
		MinParticipants:    2,
		MinAvgWords:        5,
		MinTotalWords:      50,
		MinDuration:        5 * time.Minute,
		MaxDuration:        12 * time.Hour,
		MinAge:             5 * time.Minute,
		MinVelocity:        2,
		MaxVelocity:        600,
		MinEngagementRatio: 0.1,
		MinUniquenessRatio: 0.3,
	}
}

// A day-old conversation that goes quiet and then wakes up must not stay
// locked out of the gate on max_duration forever: the first event after a
// silence-sized gap re-anchors the window.
func TestApplyEventReanchorsAfterSilenceGap(t *testing.T) {
	p := &Pipeline{silence: 3 * time.Minute}
	now := time.Now()

	conv := &model.Conversation{
		MessageCount:       40,
		WindowMessageCount: 40,
		Participants:       []string{"alice", "bob", "carol", "dave", "erin"},
		WordCount:          800,
		WindowStartAt:      now.Add(-14 * time.Hour),
		LastActivityAt:     now.Add(-1 * time.Hour),
	}

	res := gate.Evaluate(conv, testGateConfig(), now)
	if res.Passed || res.Reason != "max_duration" {
		t.Fatalf("stale conversation should fail max_duration, got passed=%v reason=%q", res.Passed, res.Reason)
	}

	texts := []string{
		"the nightly export job failed again with the same timeout",
		"did the retry budget change when we bumped the client version",
		"no but the upstream started throttling us around midnight",
		"we should batch those requests instead of sending them one by one",
		"batching needs the schema change we postponed last quarter",
		"then let's scope that change first thing tomorrow morning",
		"agreed, I'll draft the migration plan and share it here",
		"include the rollback steps this time so ops can review them",
	}
	users := []string{"alice", "bob"}
	base := now
	for i, text := range texts {
		p.applyEvent(conv, model.Event{
			UserID:    users[i%2],
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	if !conv.WindowStartAt.Equal(base) {
		t.Fatalf("window anchor not reset: got %v, want %v", conv.WindowStartAt, base)
	}
	if conv.WindowMessageCount != 8 {
		t.Fatalf("window message count = %d, want 8", conv.WindowMessageCount)
	}
	if conv.MessageCount != 48 {
		t.Fatalf("lifetime message count = %d, want 48", conv.MessageCount)
	}

	eval := base.Add(8 * time.Minute)
	res = gate.Evaluate(conv, testGateConfig(), eval)
	if !res.Passed {
		t.Fatalf("re-anchored conversation should pass the gate, failed on %q", res.Reason)
	}
}

func TestApplyEventKeepsAnchorWithinWindow(t *testing.T) {
	p := &Pipeline{silence: 3 * time.Minute}
	now := time.Now()
	anchor := now.Add(-10 * time.Minute)

	conv := &model.Conversation{
		MessageCount:       8,
		WindowMessageCount: 8,
		Participants:       []string{"alice", "bob"},
		WordCount:          160,
		WindowStartAt:      anchor,
		LastActivityAt:     now.Add(-time.Minute),
	}

	p.applyEvent(conv, model.Event{UserID: "alice", Text: "still here", Timestamp: now})

	if !conv.WindowStartAt.Equal(anchor) {
		t.Fatalf("anchor moved within the window: got %v, want %v", conv.WindowStartAt, anchor)
	}
	if conv.WindowMessageCount != 9 {
		t.Fatalf("window message count = %d, want 9", conv.WindowMessageCount)
	}
}

func TestNewInsightCarriesAnalysisFields(t *testing.T) {
	if err := id.Init(7); err != nil {
		t.Fatalf("initializing id generator: %v", err)
	}

	conv := &model.Conversation{ID: 42, SummaryVersion: 3}
	w := &analysis.Worthiness{
		Worthy:     true,
		Confidence: 0.91,
		Topic:      "queue migration",
		Summary:    "the team agreed to batch upstream requests",
		Framing:    "practical, lessons-learned",
	}

	in := newInsight(conv, w)
	if in.ID == 0 {
		t.Fatal("insight id not generated")
	}
	if in.ConversationID != 42 || in.SummaryVersion != 3 {
		t.Fatalf("conversation linkage wrong: %+v", in)
	}
	if in.Framing != w.Framing {
		t.Fatalf("framing = %q, want %q", in.Framing, w.Framing)
	}
	if !in.Worthy || in.Confidence != 0.91 || in.Topic != w.Topic || in.Summary != w.Summary {
		t.Fatalf("analysis fields not carried: %+v", in)
	}
}
