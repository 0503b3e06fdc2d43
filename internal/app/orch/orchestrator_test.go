package orch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscope/meetscope/internal/app"
	"github.com/meetscope/meetscope/internal/core"
	"github.com/meetscope/meetscope/internal/domain"
)

type fakeSession struct {
	mu       sync.Mutex
	leaves   int
	leaveErr error
}

func (s *fakeSession) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	return s.leaveErr
}

func (s *fakeSession) leaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaves
}

type fakeTransport struct {
	mu      sync.Mutex
	joinErr error
	joins   []core.JoinParams
	sink    core.FrameSink
	sess    *fakeSession
	joined  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{joined: make(chan struct{}, 1)}
}

func (t *fakeTransport) Join(_ context.Context, p core.JoinParams, sink core.FrameSink) (core.MediaSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins = append(t.joins, p)
	if t.joinErr != nil {
		return nil, t.joinErr
	}
	t.sink = sink
	t.sess = &fakeSession{}
	select {
	case t.joined <- struct{}{}:
	default:
	}
	return t.sess, nil
}

func (t *fakeTransport) joinCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.joins)
}

type fakeAnalysis struct {
	mu     sync.Mutex
	reqs   []core.AnalysisRequest
	resp   json.RawMessage
	err    error
	called chan struct{}
}

func newFakeAnalysis(resp string) *fakeAnalysis {
	return &fakeAnalysis{resp: json.RawMessage(resp), called: make(chan struct{}, 4)}
}

func (a *fakeAnalysis) Analyze(_ context.Context, req core.AnalysisRequest) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	select {
	case a.called <- struct{}{}:
	default:
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.resp, nil
}

func (a *fakeAnalysis) lastReq() (core.AnalysisRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.reqs) == 0 {
		return core.AnalysisRequest{}, false
	}
	return a.reqs[len(a.reqs)-1], true
}

type monitorResult struct {
	payload json.RawMessage
	err     error
}

func newTestOrchestrator(wait, window time.Duration) (*Orchestrator, *fakeTransport, *fakeAnalysis) {
	tr := newFakeTransport()
	an := newFakeAnalysis(`{"verdict":"clean"}`)
	o := &Orchestrator{
		Registry:      app.NewRegistry(),
		Transport:     tr,
		Analysis:      an,
		WaitTimeout:   wait,
		CaptureWindow: window,
	}
	return o, tr, an
}

// startMonitor runs Monitor in the background and waits until the
// watch is registered before returning.
func startMonitor(t *testing.T, o *Orchestrator, meeting, participant string) <-chan monitorResult {
	t.Helper()
	res := make(chan monitorResult, 1)
	go func() {
		p, err := o.Monitor(context.Background(), core.MeetingID(meeting), core.ParticipantID(participant))
		res <- monitorResult{payload: p, err: err}
	}()
	require.Eventually(t, func() bool {
		_, ok := o.Registry.Target(core.MeetingID(meeting))
		return ok
	}, time.Second, time.Millisecond)
	return res
}

func TestMonitorMissingFields(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second, time.Second)

	_, err := o.Monitor(context.Background(), "", "u1")
	assert.ErrorIs(t, err, core.ErrMissingFields)
	_, err = o.Monitor(context.Background(), "m1", "")
	assert.ErrorIs(t, err, core.ErrMissingFields)
	assert.Equal(t, 0, o.Registry.WatchCount())
}

func TestMonitorConflict(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second, time.Second)
	require.NoError(t, o.Registry.Register(domain.NewWatch("m1", "u1")))

	_, err := o.Monitor(context.Background(), "m1", "u2")
	assert.ErrorIs(t, err, core.ErrAlreadyActive)

	// The original watch is still the registered one.
	target, ok := o.Registry.Target("m1")
	require.True(t, ok)
	assert.Equal(t, core.ParticipantID("u1"), target)
}

func TestMonitorWaitTimeout(t *testing.T) {
	o, tr, _ := newTestOrchestrator(30*time.Millisecond, time.Second)

	_, err := o.Monitor(context.Background(), "m1", "u1")
	assert.ErrorIs(t, err, core.ErrAwaitTimeout)
	assert.Equal(t, 0, o.Registry.WatchCount())
	assert.Equal(t, 0, tr.joinCount())
}

func TestCaptureEndToEnd(t *testing.T) {
	o, tr, an := newTestOrchestrator(2*time.Second, 60*time.Millisecond)
	res := startMonitor(t, o, "m1", "u1")

	o.MeetingStarted(context.Background(), StartedEvent{
		MeetingUUID: "m1",
		StreamID:    "s1",
		ServerURLs:  []string{"wss://x"},
	})

	select {
	case <-tr.joined:
	case <-time.After(time.Second):
		t.Fatal("transport never joined")
	}
	require.Equal(t, core.JoinParams{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}}, tr.joins[0])

	tr.sink.OnAudioFrame(core.Frame("a1"), core.FrameMeta{ParticipantID: "u1"})
	tr.sink.OnAudioFrame(core.Frame("a2"), core.FrameMeta{ParticipantID: "u1"})
	tr.sink.OnAudioFrame(core.Frame("zz"), core.FrameMeta{ParticipantID: "u2"})

	var out monitorResult
	select {
	case out = <-res:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never settled")
	}
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"verdict":"clean"}`, string(out.payload))

	req, ok := an.lastReq()
	require.True(t, ok)
	assert.Equal(t, core.MeetingID("m1"), req.MeetingUUID)
	assert.Equal(t, core.ParticipantID("u1"), req.UserID)
	assert.Equal(t, []string{
		base64.StdEncoding.EncodeToString([]byte("a1")),
		base64.StdEncoding.EncodeToString([]byte("a2")),
	}, req.Audio)
	assert.NotNil(t, req.Video)
	assert.Empty(t, req.Video)

	assert.Equal(t, 1, tr.sess.leaveCount())
	assert.Equal(t, 0, o.Registry.WatchCount())

	// A late session_stopped is a safe no-op: no double leave.
	o.MeetingStopped("m1")
	assert.Equal(t, 1, tr.sess.leaveCount())
}

func TestCaptureZeroFramesStillCallsAnalysis(t *testing.T) {
	o, tr, an := newTestOrchestrator(2*time.Second, 30*time.Millisecond)
	res := startMonitor(t, o, "m1", "u1")

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}})
	<-tr.joined

	out := <-res
	require.NoError(t, out.err)

	req, ok := an.lastReq()
	require.True(t, ok)
	assert.NotNil(t, req.Audio)
	assert.Empty(t, req.Audio)
	assert.NotNil(t, req.Video)
	assert.Empty(t, req.Video)
}

func TestCaptureJoinFailure(t *testing.T) {
	o, tr, an := newTestOrchestrator(2*time.Second, time.Second)
	tr.joinErr = errors.New("dial refused")
	res := startMonitor(t, o, "m1", "u1")

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}})

	out := <-res
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "dial refused")
	assert.Equal(t, 0, o.Registry.WatchCount())
	_, called := an.lastReq()
	assert.False(t, called)
}

func TestCaptureAnalysisFailure(t *testing.T) {
	o, tr, an := newTestOrchestrator(2*time.Second, 30*time.Millisecond)
	an.err = errors.New("analysis down")
	res := startMonitor(t, o, "m1", "u1")

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}})
	<-tr.joined

	out := <-res
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "analysis down")
	assert.Equal(t, 0, o.Registry.WatchCount())
}

func TestStartedEventForUnwatchedMeetingIsIgnored(t *testing.T) {
	o, tr, _ := newTestOrchestrator(time.Second, time.Second)

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "ghost", StreamID: "s1", ServerURLs: []string{"wss://x"}})

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, tr.joinCount())
	_, ok := o.Registry.TakeSession("ghost")
	assert.False(t, ok)
}

func TestStoppedEventTearsDownSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second, time.Second)
	sess := &fakeSession{}
	o.Registry.BindSession(&domain.ActiveSession{MeetingID: "m1", StreamID: "s1", Session: sess})

	o.MeetingStopped("m1")
	assert.Equal(t, 1, sess.leaveCount())

	// Duplicate stop: nothing left to tear down.
	o.MeetingStopped("m1")
	assert.Equal(t, 1, sess.leaveCount())
}

func TestStoppedEventSwallowsLeaveError(t *testing.T) {
	o, _, _ := newTestOrchestrator(time.Second, time.Second)
	sess := &fakeSession{leaveErr: errors.New("socket gone")}
	o.Registry.BindSession(&domain.ActiveSession{MeetingID: "m1", StreamID: "s1", Session: sess})

	o.MeetingStopped("m1")
	_, ok := o.Registry.TakeSession("m1")
	assert.False(t, ok)
}

func TestAbandonedCaptureIsDiscarded(t *testing.T) {
	// The gateway times out before the capture window closes; the
	// capture still runs to completion but its outcome has no audience.
	o, tr, an := newTestOrchestrator(100*time.Millisecond, 250*time.Millisecond)
	res := startMonitor(t, o, "m1", "u1")

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}})
	<-tr.joined

	out := <-res
	assert.ErrorIs(t, out.err, core.ErrAwaitTimeout)

	select {
	case <-an.called:
	case <-time.After(time.Second):
		t.Fatal("abandoned capture never reached the analysis API")
	}
	req, ok := an.lastReq()
	require.True(t, ok)
	assert.Equal(t, core.ParticipantID("u1"), req.UserID)
	assert.Empty(t, req.Audio)

	require.Eventually(t, func() bool { return tr.sess.leaveCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, o.Registry.WatchCount())
}

func TestConcurrentMeetingsAreIndependent(t *testing.T) {
	o, tr, an := newTestOrchestrator(2*time.Second, 40*time.Millisecond)
	res1 := startMonitor(t, o, "m1", "u1")
	res2 := startMonitor(t, o, "m2", "u9")

	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m1", StreamID: "s1", ServerURLs: []string{"wss://x"}})
	<-tr.joined
	o.MeetingStarted(context.Background(), StartedEvent{MeetingUUID: "m2", StreamID: "s2", ServerURLs: []string{"wss://y"}})

	out1 := <-res1
	out2 := <-res2
	require.NoError(t, out1.err)
	require.NoError(t, out2.err)

	an.mu.Lock()
	defer an.mu.Unlock()
	require.Len(t, an.reqs, 2)
	seen := map[core.MeetingID]core.ParticipantID{}
	for _, r := range an.reqs {
		seen[r.MeetingUUID] = r.UserID
	}
	assert.Equal(t, core.ParticipantID("u1"), seen["m1"])
	assert.Equal(t, core.ParticipantID("u9"), seen["m2"])
}
