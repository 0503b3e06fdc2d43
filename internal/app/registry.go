package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meetscope/meetscope/internal/core"
	"github.com/meetscope/meetscope/internal/domain"
)

// Registry is the coordination core: one lock over the two keyed
// mappings (pending watches, active media sessions). Removal is
// take-semantics — the first caller to take an entry owns its
// settlement or teardown, every later caller sees absence and treats
// it as a no-op. That is the whole idempotence story for the race
// between the gateway's waiting timeout and the capture window.
type Registry struct {
	mu       sync.Mutex
	watches  map[core.MeetingID]*domain.Watch
	sessions map[core.MeetingID]*domain.ActiveSession
}

func NewRegistry() *Registry {
	return &Registry{
		watches:  make(map[core.MeetingID]*domain.Watch),
		sessions: make(map[core.MeetingID]*domain.ActiveSession),
	}
}

// Register adds a watch. A meeting already being watched is rejected
// with core.ErrAlreadyActive and the existing watch is left untouched.
func (r *Registry) Register(w *domain.Watch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[w.MeetingID]; ok {
		return core.ErrAlreadyActive
	}
	r.watches[w.MeetingID] = w
	log.Info().Str("module", "app.registry").Str("meeting", string(w.MeetingID)).Str("participant", string(w.Participant)).Msg("registered watch")
	return nil
}

// Target reports the watched participant for a meeting, if any.
func (r *Registry) Target(id core.MeetingID) (core.ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok {
		return "", false
	}
	return w.Participant, true
}

// TakeWatch removes and returns the watch for a meeting. The caller
// that gets ok=true is the sole owner of the watch's settlement and of
// its buffers; no further appends can happen after removal.
func (r *Registry) TakeWatch(id core.MeetingID) (*domain.Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok {
		return nil, false
	}
	delete(r.watches, id)
	log.Info().Str("module", "app.registry").Str("meeting", string(id)).Msg("took watch")
	return w, true
}

// AppendAudio buffers one audio frame for a meeting's watch. Frames
// for a different participant, or for a meeting no longer watched, are
// discarded. Reports whether the frame was kept.
func (r *Registry) AppendAudio(id core.MeetingID, meta core.FrameMeta, f core.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok || meta.ParticipantID != w.Participant {
		return false
	}
	w.Audio = append(w.Audio, f)
	return true
}

// AppendVideo buffers one video frame, with the same guards as
// AppendAudio.
func (r *Registry) AppendVideo(id core.MeetingID, meta core.FrameMeta, f core.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok || meta.ParticipantID != w.Participant {
		return false
	}
	w.Video = append(w.Video, f)
	return true
}

// BindSession records a live media session for a meeting.
func (r *Registry) BindSession(s *domain.ActiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.MeetingID] = s
	log.Info().Str("module", "app.registry").Str("meeting", string(s.MeetingID)).Str("stream", s.StreamID).Msg("bound session")
}

// TakeSession removes and returns the active session for a meeting.
// Only the taker may leave the underlying transport, so a duplicate
// session_stopped event or a racing capture expiry is a safe no-op.
func (r *Registry) TakeSession(id core.MeetingID) (*domain.ActiveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("meeting", string(id)).Msg("took session")
	return s, true
}

// WatchCount reports how many watches are pending.
func (r *Registry) WatchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}
