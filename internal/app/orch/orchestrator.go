package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meetscope/meetscope/internal/app"
	"github.com/meetscope/meetscope/internal/core"
	"github.com/meetscope/meetscope/internal/domain"
)

// Orchestrator wires the coordination core to the media transport and
// the analysis API. One instance serves all meetings; per-meeting state
// lives only in the registry.
type Orchestrator struct {
	Registry  *app.Registry
	Transport core.MediaTransport
	Analysis  core.AnalysisClient

	// WaitTimeout bounds how long a Monitor caller waits for the
	// session_started webhook. CaptureWindow is how long media is
	// buffered once the stream is joined.
	WaitTimeout   time.Duration
	CaptureWindow time.Duration
}

// Monitor registers a watch for the target participant and suspends
// the caller until the capture settles or the waiting timeout fires.
// On success the analysis API's response payload is returned verbatim.
func (o *Orchestrator) Monitor(ctx context.Context, meetingID core.MeetingID, participantID core.ParticipantID) (json.RawMessage, error) {
	if meetingID == "" || participantID == "" {
		return nil, core.ErrMissingFields
	}

	w := domain.NewWatch(meetingID, participantID)
	if err := o.Registry.Register(w); err != nil {
		return nil, err
	}

	timer := time.NewTimer(o.WaitTimeout)
	defer timer.Stop()

	select {
	case out := <-w.Done:
		return out.Payload, out.Err
	case <-timer.C:
		if _, ok := o.Registry.TakeWatch(meetingID); ok {
			return nil, core.ErrAwaitTimeout
		}
		// Lost the removal race: a settlement is already in flight and
		// the send on Done cannot block (buffered, single owner).
		out := <-w.Done
		return out.Payload, out.Err
	case <-ctx.Done():
		if _, ok := o.Registry.TakeWatch(meetingID); ok {
			return nil, ctx.Err()
		}
		out := <-w.Done
		return out.Payload, out.Err
	}
}
