package stt

import (
	"testing"
	"time"
)

func TestEvent_Transcripts(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := Event{Results: []Result{
		{Alternatives: []Alternative{{Transcript: "hel"}}, IsPartial: true},
		{IsPartial: false},
		{Alternatives: []Alternative{{Transcript: "hello"}, {Transcript: "yellow"}}},
	}}

	got := ev.Transcripts(now)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "hel" || !got[0].IsPartial {
		t.Errorf("got[0] = %+v, want partial \"hel\"", got[0])
	}
	if got[1].Text != "hello" || got[1].IsPartial {
		t.Errorf("got[1] = %+v, want final \"hello\"", got[1])
	}
	if !got[1].Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got[1].Timestamp, now)
	}
}

func TestEvent_TranscriptsEmpty(t *testing.T) {
	if got := (Event{}).Transcripts(time.Now()); len(got) != 0 {
		t.Errorf("empty event produced %d results", len(got))
	}
}
