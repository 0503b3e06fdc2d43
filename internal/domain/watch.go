package domain

import (
	"encoding/json"
	"time"

	"github.com/meetscope/meetscope/internal/core"
)

// Outcome settles a watch: either the analysis API's verbatim response
// payload or the failure that ended the capture.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Watch is a pending monitoring request: who we are listening for and
// what has been heard so far. Buffers are append-only and mutated only
// through the registry, which guards them with its lock.
type Watch struct {
	MeetingID   core.MeetingID
	Participant core.ParticipantID

	Audio []core.Frame
	Video []core.Frame

	// Done carries the settlement to the waiting caller. Buffered with
	// capacity one; only the party that took the watch out of the
	// registry may send on it.
	Done chan Outcome

	CreatedAt time.Time
}

func NewWatch(meetingID core.MeetingID, participant core.ParticipantID) *Watch {
	return &Watch{
		MeetingID:   meetingID,
		Participant: participant,
		Done:        make(chan Outcome, 1),
		CreatedAt:   time.Now(),
	}
}
