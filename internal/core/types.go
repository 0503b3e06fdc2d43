package core

// Frame is a raw binary media payload (one audio or video frame) as
// decoded from the transport.
type Frame []byte

// MeetingID identifies one monitored meeting. At most one watch and one
// live media session exist per MeetingID at a time.
type MeetingID string

// ParticipantID identifies a participant inside a meeting.
type ParticipantID string

// FrameMeta describes the origin of a single media frame.
type FrameMeta struct {
	ParticipantID ParticipantID
	DisplayName   string
	Size          int
	Timestamp     int64
}

// JoinParams is everything the transport needs to subscribe to a
// meeting's realtime media stream.
type JoinParams struct {
	MeetingUUID MeetingID
	StreamID    string
	ServerURLs  []string
}

// AnalysisRequest is the outbound payload for the external analysis
// API. Audio and Video carry base64-encoded frames in arrival order.
type AnalysisRequest struct {
	MeetingUUID MeetingID     `json:"meetingUuid"`
	UserID      ParticipantID `json:"userId"`
	Audio       []string      `json:"audio"`
	Video       []string      `json:"video"`
}
