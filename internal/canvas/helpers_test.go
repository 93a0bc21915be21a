package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const testAdminToken = "letmein"

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type tokenAdmission string

func (t tokenAdmission) Evaluate(credential string) bool {
	return credential != "" && credential == string(t)
}

type fakeGateway struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   map[string]int
	saveErr error
	loadErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{data: map[string][]byte{}, saves: map[string]int{}}
}

func (g *fakeGateway) Load(_ context.Context, key string, dst any) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return false, g.loadErr
	}
	raw, ok := g.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (g *fakeGateway) Save(_ context.Context, key string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves[key]++
	if g.saveErr != nil {
		return g.saveErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	g.data[key] = raw
	return nil
}

func (g *fakeGateway) saveCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves[key]
}

func (g *fakeGateway) put(t *testing.T, key string, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	g.data[key] = raw
}

type recordingMetrics struct {
	handled    map[string]int
	denied     map[string]int
	suppressed int
	sessions   int
	failed     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{handled: map[string]int{}, denied: map[string]int{}, failed: map[string]int{}}
}

func (m *recordingMetrics) EventHandled(event string)     { m.handled[event]++ }
func (m *recordingMetrics) PermissionDenied(event string) { m.denied[event]++ }
func (m *recordingMetrics) ReactionSuppressed()           { m.suppressed++ }
func (m *recordingMetrics) SessionsChanged(count int)     { m.sessions = count }
func (m *recordingMetrics) SnapshotFailed(key string)     { m.failed[key]++ }

type recordingIndexer struct {
	indexed []string
	deleted []string
}

func (i *recordingIndexer) IndexMemo(m Memo)         { i.indexed = append(i.indexed, m.ID) }
func (i *recordingIndexer) DeleteMemos(ids []string) { i.deleted = append(i.deleted, ids...) }

type testRig struct {
	router  *Router
	clock   *fakeClock
	gateway *fakeGateway
	metrics *recordingMetrics
	indexer *recordingIndexer
}

func newTestRig(t *testing.T, opts ...RouterOption) *testRig {
	t.Helper()
	clock := newFakeClock()
	rig := &testRig{
		clock:   clock,
		gateway: newFakeGateway(),
		metrics: newRecordingMetrics(),
		indexer: &recordingIndexer{},
	}
	seq := 0
	base := []RouterOption{
		WithClock(clock.Now),
		WithAdmission(tokenAdmission(testAdminToken)),
		WithGateway(rig.gateway),
		WithMetrics(rig.metrics),
		WithIndexer(rig.indexer),
		WithLogger(zaptest.NewLogger(t)),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithIDGenerator(func(prefix string) string {
			seq++
			return fmt.Sprintf("%s-%d", prefix, seq)
		}),
	}
	rig.router = NewRouter(NewState(clock.Now()), append(base, opts...)...)
	return rig
}

func (r *testRig) send(t *testing.T, sessionID, event string, data any) []Emission {
	t.Helper()
	in := Inbound{Event: event}
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		in.Data = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s payload: %v", event, err)
		}
		in.Data = raw
	}
	return r.router.Handle(sessionID, in)
}

func (r *testRig) createMemo(t *testing.T, sessionID string, data map[string]any) Memo {
	t.Helper()
	out := r.send(t, sessionID, EventCreateMemo, data)
	emission := mustFind(t, out, EventNewMemo)
	memo, ok := emission.Payload.(Memo)
	if !ok {
		t.Fatalf("expected Memo payload, got %T", emission.Payload)
	}
	return memo
}

func find(emissions []Emission, event string) (Emission, bool) {
	for _, e := range emissions {
		if e.Event == event {
			return e, true
		}
	}
	return Emission{}, false
}

func mustFind(t *testing.T, emissions []Emission, event string) Emission {
	t.Helper()
	e, ok := find(emissions, event)
	if !ok {
		t.Fatalf("expected %s emission, got %v", event, events(emissions))
	}
	return e
}

func events(emissions []Emission) []string {
	names := make([]string, 0, len(emissions))
	for _, e := range emissions {
		names = append(names, e.Audience.String()+":"+e.Event)
	}
	return names
}

var errSaveFailed = errors.New("disk full")
