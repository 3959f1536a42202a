package logging

import (
	"testing"
	"time"
)

func TestEventBufferLatest(t *testing.T) {
	eb := NewEventBuffer(10)

	eb.Add(Event{Level: "WARN", Message: "first"})
	eb.Add(Event{Level: "INFO", Message: "second"})
	eb.Add(Event{Level: "WARN", Message: "third"})

	events := eb.Latest(2)
	if len(events) != 2 {
		t.Fatalf("Latest(2) returned %d events", len(events))
	}
	if events[0].Message != "third" {
		t.Errorf("newest event = %q, want %q", events[0].Message, "third")
	}
	if events[1].Message != "second" {
		t.Errorf("second event = %q, want %q", events[1].Message, "second")
	}

	if eb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", eb.Len())
	}
}

func TestEventBufferSequence(t *testing.T) {
	eb := NewEventBuffer(4)

	for i := 0; i < 3; i++ {
		eb.Add(Event{Message: "x"})
	}

	events := eb.Latest(3)
	if events[0].Seq != 3 {
		t.Errorf("newest Seq = %d, want 3", events[0].Seq)
	}
	if events[2].Seq != 1 {
		t.Errorf("oldest Seq = %d, want 1", events[2].Seq)
	}
	if eb.LastSeq() != 3 {
		t.Errorf("LastSeq() = %d, want 3", eb.LastSeq())
	}
}

func TestEventBufferWraparound(t *testing.T) {
	eb := NewEventBuffer(3)

	for i := 0; i < 5; i++ {
		eb.Add(Event{Seq: 0, Message: "msg", Term: string(rune('a' + i))})
	}

	if eb.Len() != 3 {
		t.Fatalf("Len() = %d after wraparound, want 3", eb.Len())
	}
	events := eb.Latest(10)
	if len(events) != 3 {
		t.Fatalf("Latest(10) returned %d events, want 3", len(events))
	}
	if events[0].Term != "e" {
		t.Errorf("newest Term = %q, want %q", events[0].Term, "e")
	}
	if events[2].Term != "c" {
		t.Errorf("oldest surviving Term = %q, want %q", events[2].Term, "c")
	}
}

func TestEventBufferTimestamp(t *testing.T) {
	eb := NewEventBuffer(2)

	eb.Add(Event{Message: "auto"})
	stamped := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	eb.Add(Event{Message: "fixed", Time: stamped})

	events := eb.Latest(2)
	if !events[0].Time.Equal(stamped) {
		t.Errorf("explicit timestamp overwritten: %v", events[0].Time)
	}
	if events[1].Time.IsZero() {
		t.Error("zero timestamp should be filled in on Add")
	}
}

func TestEventBufferFilter(t *testing.T) {
	eb := NewEventBuffer(10)

	eb.Add(Event{Level: "WARN", Term: "allow-web", Message: "term expired"})
	eb.Add(Event{Level: "INFO", Term: "allow-dns", Message: "term expires soon"})
	eb.Add(Event{Level: "WARN", Term: "deny-all", Message: "term dropped"})

	warns := eb.LatestFiltered(10, EventFilter{Level: "warn"})
	if len(warns) != 2 {
		t.Fatalf("level filter returned %d events, want 2", len(warns))
	}
	if warns[0].Term != "deny-all" {
		t.Errorf("newest WARN term = %q, want %q", warns[0].Term, "deny-all")
	}

	byTerm := eb.LatestFiltered(10, EventFilter{Term: "allow"})
	if len(byTerm) != 2 {
		t.Fatalf("term filter returned %d events, want 2", len(byTerm))
	}

	both := eb.LatestFiltered(10, EventFilter{Level: "warn", Term: "web"})
	if len(both) != 1 || both[0].Term != "allow-web" {
		t.Errorf("combined filter = %+v, want single allow-web event", both)
	}

	if !(EventFilter{}).IsEmpty() {
		t.Error("zero filter should be empty")
	}
	if (EventFilter{Level: "warn"}).IsEmpty() {
		t.Error("level filter should not be empty")
	}
}

func TestEventBufferSubscribe(t *testing.T) {
	eb := NewEventBuffer(10)

	sub := eb.Subscribe(4)
	defer sub.Close()

	eb.Add(Event{Message: "hello"})

	select {
	case ev := <-sub.C:
		if ev.Message != "hello" {
			t.Errorf("subscriber got %q, want %q", ev.Message, "hello")
		}
		if ev.Seq != 1 {
			t.Errorf("subscriber Seq = %d, want 1", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestEventBufferSlowSubscriber(t *testing.T) {
	eb := NewEventBuffer(10)

	sub := eb.Subscribe(1)
	defer sub.Close()

	// Fill the subscriber channel, then overflow it. Add must not block.
	eb.Add(Event{Message: "kept"})
	eb.Add(Event{Message: "dropped"})

	ev := <-sub.C
	if ev.Message != "kept" {
		t.Errorf("subscriber got %q, want %q", ev.Message, "kept")
	}
	select {
	case ev := <-sub.C:
		t.Errorf("unexpected second delivery: %+v", ev)
	default:
	}

	// The buffer itself keeps everything.
	if eb.Len() != 2 {
		t.Errorf("buffer Len() = %d, want 2", eb.Len())
	}
}

func TestEventBufferUnsubscribe(t *testing.T) {
	eb := NewEventBuffer(10)

	sub := eb.Subscribe(4)
	sub.Close()

	eb.Add(Event{Message: "after close"})

	select {
	case ev := <-sub.C:
		t.Errorf("closed subscription received %+v", ev)
	default:
	}
}
