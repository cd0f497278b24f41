package livebus

import "testing"

func TestAttachReceivesHello(t *testing.T) {
	bus := New()
	sess, detach := bus.Attach()
	defer detach()

	msg := <-sess.Ch
	if msg.Type != "hello" {
		t.Fatalf("expected hello message, got %q", msg.Type)
	}
	if msg.V != messageVersion {
		t.Fatalf("expected version %d, got %d", messageVersion, msg.V)
	}
}

func TestBroadcastReachesAllAttachedSessions(t *testing.T) {
	bus := New()
	s1, d1 := bus.Attach()
	s2, d2 := bus.Attach()
	defer d1()
	defer d2()
	<-s1.Ch // drain hello
	<-s2.Ch

	bus.Broadcast("kpi", map[string]any{"cpu_percent": 42.0})

	m1 := <-s1.Ch
	m2 := <-s2.Ch
	if m1.Type != "kpi" || m2.Type != "kpi" {
		t.Fatalf("expected both sessions to receive kpi, got %q and %q", m1.Type, m2.Type)
	}
}

func TestBroadcastIsolatesFailingSession(t *testing.T) {
	bus := New()
	bus.bufSize = 1
	s1, d1 := bus.Attach()
	s2, d2 := bus.Attach()
	s3, d3 := bus.Attach()
	defer d1()
	defer d2()
	defer d3()
	<-s1.Ch
	<-s2.Ch
	<-s3.Ch

	if bus.Count() != 3 {
		t.Fatalf("expected 3 sessions attached, got %d", bus.Count())
	}

	// Fill s2's buffer without draining it, so the next broadcast finds it full.
	bus.mu.Lock()
	sess2 := bus.sessions[s2.ID]
	bus.mu.Unlock()
	sess2.send <- newMessage("filler", nil)

	bus.Broadcast("kpi", map[string]any{"v": 1})

	if _, ok := <-s1.Ch; !ok {
		t.Fatal("expected session 1 to still receive broadcasts")
	}
	if _, ok := <-s3.Ch; !ok {
		t.Fatal("expected session 3 to still receive broadcasts")
	}
	if bus.Count() != 2 {
		t.Fatalf("expected failing session to be detached, count=%d", bus.Count())
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	bus := New()
	sess, detach := bus.Attach()
	<-sess.Ch
	detach()
	detach() // must not panic on double-close
	if bus.Count() != 0 {
		t.Fatalf("expected 0 sessions after detach, got %d", bus.Count())
	}
}
