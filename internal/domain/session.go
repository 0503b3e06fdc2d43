package domain

import (
	"time"

	"github.com/meetscope/meetscope/internal/core"
)

// ActiveSession is a live media subscription for one meeting. Exists
// only between a successful join and the matching leave.
type ActiveSession struct {
	MeetingID  core.MeetingID
	StreamID   string
	ServerURLs []string
	JoinedAt   time.Time

	Session core.MediaSession
}
