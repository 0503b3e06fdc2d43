package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/meetscope/meetscope/internal/core"
)

// StartedEvent is the session_started webhook payload after parsing.
type StartedEvent struct {
	MeetingUUID core.MeetingID
	StreamID    string
	ServerURLs  []string
}

// MeetingStarted reacts to a session_started event. Meetings nobody
// asked to watch are expected traffic and are ignored. For a watched
// meeting the join-and-collect sequence runs asynchronously; its
// failures settle the watch, never the dispatcher. ctx should be the
// server's lifetime context — the capture outlives the webhook request.
func (o *Orchestrator) MeetingStarted(ctx context.Context, ev StartedEvent) {
	if _, ok := o.Registry.Target(ev.MeetingUUID); !ok {
		log.Info().Str("module", "app.orch").Str("meeting", string(ev.MeetingUUID)).Msg("session started for unwatched meeting, ignoring")
		return
	}
	go func() {
		if err := o.capture(ctx, ev); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("meeting", string(ev.MeetingUUID)).Msg("capture failed")
		}
	}()
}

// MeetingStopped reacts to a session_stopped event: tear down the live
// media session if one exists. The meeting is considered gone whether
// or not the leave succeeds, and a duplicate event is a no-op.
func (o *Orchestrator) MeetingStopped(id core.MeetingID) {
	s, ok := o.Registry.TakeSession(id)
	if !ok {
		log.Debug().Str("module", "app.orch").Str("meeting", string(id)).Msg("session stopped for meeting with no active session")
		return
	}
	if err := s.Session.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("meeting", string(id)).Msg("leave failed on session stop")
	}
	log.Info().Str("module", "app.orch").Str("meeting", string(id)).Msg("left media session on session stop")
}
