package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/pollwire/pollwire/internal/core"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("gone")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRouter()
	conn := &fakeConn{}

	r.Join("p1", "s1", conn)
	r.Join("p1", "s1", conn)

	res := r.Broadcast("p1", core.Frame(`{"type":"update_results"}`))
	if res.SentTo != 1 {
		t.Errorf("expected delivery to 1 member, got %d", res.SentTo)
	}
	if conn.received() != 1 {
		t.Errorf("double join must not duplicate delivery, got %d frames", conn.received())
	}
}

func TestBroadcastReachesAllMembers(t *testing.T) {
	r := NewRouter()
	a, b := &fakeConn{}, &fakeConn{}
	r.Join("p1", "sa", a)
	r.Join("p1", "sb", b)

	r.Broadcast("p1", core.Frame(`x`))
	if a.received() != 1 || b.received() != 1 {
		t.Errorf("expected both members to receive, got a=%d b=%d", a.received(), b.received())
	}
}

func TestNoCrossPollLeakage(t *testing.T) {
	r := NewRouter()
	a, b := &fakeConn{}, &fakeConn{}
	r.Join("p1", "sa", a)
	r.Join("p2", "sb", b)

	r.Broadcast("p1", core.Frame(`x`))
	if a.received() != 1 {
		t.Errorf("member of p1 should receive, got %d", a.received())
	}
	if b.received() != 0 {
		t.Errorf("member of p2 must not receive p1 broadcasts, got %d", b.received())
	}
}

func TestLeaveRemovesFromEveryRoom(t *testing.T) {
	r := NewRouter()
	conn := &fakeConn{}
	r.Join("p1", "s1", conn)
	r.Join("p2", "s1", conn)

	r.Leave("s1")

	r.Broadcast("p1", core.Frame(`x`))
	r.Broadcast("p2", core.Frame(`x`))
	if conn.received() != 0 {
		t.Errorf("left connection still received %d frames", conn.received())
	}
	if r.RoomCount() != 0 {
		t.Errorf("empty rooms should be pruned, %d remain", r.RoomCount())
	}
}

func TestBroadcastSwallowsDeadConnections(t *testing.T) {
	r := NewRouter()
	dead, live := &fakeConn{fail: true}, &fakeConn{}
	r.Join("p1", "sd", dead)
	r.Join("p1", "sl", live)

	res := r.Broadcast("p1", core.Frame(`x`))
	if res.Dropped != 1 || res.SentTo != 1 {
		t.Errorf("expected 1 dropped / 1 sent, got %d / %d", res.Dropped, res.SentTo)
	}
	if live.received() != 1 {
		t.Errorf("a dead member must not abort delivery to the rest, live got %d", live.received())
	}
}
