package client

import (
	"testing"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

func newTestSession() *Session {
	conn := New("irc.example.org", 6667, false, nil)
	return NewSession(conn)
}

func TestApplyISupportCapturesEveryToken(t *testing.T) {
	s := newTestSession()

	s.onISupport(nil, irc.NewMessage("005", "nick", "NETWORK=Test", "EXCEPTS", "CHANLIMIT=#:120", "are supported"))

	if v, ok := s.Feature("NETWORK"); !ok || v != "Test" {
		t.Errorf("Feature(NETWORK) = (%q, %v), want (Test, true)", v, ok)
	}
	if v, ok := s.Feature("network"); !ok || v != "Test" {
		t.Errorf("Feature lookup must be case-insensitive, got (%q, %v)", v, ok)
	}
	if v, ok := s.Feature("EXCEPTS"); !ok || v != "true" {
		t.Errorf("Feature(EXCEPTS) = (%q, %v), want (true, true)", v, ok)
	}
	if v, ok := s.Feature("CHANLIMIT"); !ok || v != "#:120" {
		t.Errorf("Feature(CHANLIMIT) = (%q, %v), want (#:120, true)", v, ok)
	}
	if _, ok := s.Feature("NOSUCHFEATURE"); ok {
		t.Error("Feature should report false for a token never advertised")
	}
}

func TestEventsDispatchesToEveryIndependentSubscriber(t *testing.T) {
	s := newTestSession()

	var a, b []Event
	s.Events.Subscribe(func(ev Event) { a = append(a, ev) })
	s.Events.Subscribe(func(ev Event) { b = append(b, ev) })

	s.emit(RegisteredEvent{})

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("both independent subscribers should observe the event, got a=%v b=%v", a, b)
	}
}

func TestEventsUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestSession()

	var count int
	unsubscribe := s.Events.Subscribe(func(ev Event) { count++ })
	s.emit(RegisteredEvent{})
	unsubscribe()
	s.emit(RegisteredEvent{})

	if count != 1 {
		t.Errorf("count = %d, want 1 (no delivery after unsubscribe)", count)
	}
}
