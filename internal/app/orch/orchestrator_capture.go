package orch

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetscope/meetscope/internal/app"
	"github.com/meetscope/meetscope/internal/core"
	"github.com/meetscope/meetscope/internal/domain"
)

// capture is the join-and-collect sequence for one watched meeting:
// join the media stream, buffer the target's frames until the capture
// window closes, ship the buffers to the analysis API and settle the
// watch. Every failure except leave errors settles the watch's failure
// path.
func (o *Orchestrator) capture(ctx context.Context, ev StartedEvent) error {
	id := ev.MeetingUUID
	trace := uuid.NewString()

	// The watch may have timed out while the webhook was in flight.
	target, ok := o.Registry.Target(id)
	if !ok {
		log.Info().Str("module", "app.orch").Str("meeting", string(id)).Msg("watch gone before join, aborting capture")
		return nil
	}

	sink := app.NewCollector(o.Registry, id)

	// The window opens before the join attempt: capture duration is
	// measured from the session_started signal, not from transport
	// readiness.
	window := time.NewTimer(o.CaptureWindow)
	defer window.Stop()

	sess, err := o.Transport.Join(ctx, core.JoinParams{
		MeetingUUID: id,
		StreamID:    ev.StreamID,
		ServerURLs:  ev.ServerURLs,
	}, sink)
	if err != nil {
		err = fmt.Errorf("join media stream: %w", err)
		o.settleFailure(id, err)
		return err
	}
	o.Registry.BindSession(&domain.ActiveSession{
		MeetingID:  id,
		StreamID:   ev.StreamID,
		ServerURLs: ev.ServerURLs,
		JoinedAt:   time.Now(),
		Session:    sess,
	})
	log.Info().Str("module", "app.orch").Str("trace", trace).Str("meeting", string(id)).Str("stream", ev.StreamID).Msg("joined media stream, capture window open")

	// Window expiry is the sole trigger for ending the capture; an
	// empty buffer still completes the sequence.
	<-window.C

	if s, ok := o.Registry.TakeSession(id); ok {
		if err := s.Session.Leave(); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("trace", trace).Str("meeting", string(id)).Msg("leave failed after capture window")
		}
	}

	w, taken := o.Registry.TakeWatch(id)
	var audio, video []core.Frame
	if taken {
		audio, video = w.Audio, w.Video
	}
	log.Info().Str("module", "app.orch").Str("trace", trace).Str("meeting", string(id)).
		Int("audio_frames", len(audio)).Int("video_frames", len(video)).
		Int("audio_bytes", frameBytes(audio)).Int("video_bytes", frameBytes(video)).
		Bool("abandoned", !taken).Msg("capture window closed")

	payload, err := o.Analysis.Analyze(ctx, core.AnalysisRequest{
		MeetingUUID: id,
		UserID:      target,
		Audio:       encodeFrames(audio),
		Video:       encodeFrames(video),
	})

	if !taken {
		// The waiting timeout already abandoned this capture; the
		// analysis outcome has no audience.
		log.Info().Str("module", "app.orch").Str("trace", trace).Str("meeting", string(id)).Msg("discarding analysis outcome for abandoned capture")
		return nil
	}
	if err != nil {
		err = fmt.Errorf("analyze capture: %w", err)
		w.Done <- domain.Outcome{Err: err}
		return err
	}
	w.Done <- domain.Outcome{Payload: payload}
	return nil
}

// settleFailure rejects the watch if it still exists; a watch already
// taken by the waiting timeout means nobody is listening.
func (o *Orchestrator) settleFailure(id core.MeetingID, err error) {
	if w, ok := o.Registry.TakeWatch(id); ok {
		w.Done <- domain.Outcome{Err: err}
	}
}

// encodeFrames renders frames base64 in arrival order. The result is
// never nil so the outbound JSON carries [] rather than null.
func encodeFrames(frames []core.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, base64.StdEncoding.EncodeToString(f))
	}
	return out
}

func frameBytes(frames []core.Frame) int {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	return n
}
