// Package rtms implements core.MediaTransport over the conferencing
// platform's realtime media stream: a websocket link that delivers
// framed JSON messages after a signaling handshake.
package rtms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetscope/meetscope/internal/core"
)

const (
	msgHandshakeReq  = "SIGNALING_HAND_SHAKE_REQ"
	msgHandshakeResp = "SIGNALING_HAND_SHAKE_RESP"
	msgKeepAliveReq  = "KEEP_ALIVE_REQ"
	msgKeepAliveResp = "KEEP_ALIVE_RESP"
	msgMediaAudio    = "MEDIA_DATA_AUDIO"
	msgMediaVideo    = "MEDIA_DATA_VIDEO"
)

// envelope is the wire shape of every stream message. Media payloads
// arrive base64 inside content.data; encoding/json decodes them to raw
// bytes on unmarshal.
type envelope struct {
	MsgType     string        `json:"msg_type"`
	MeetingUUID string        `json:"meeting_uuid,omitempty"`
	StreamID    string        `json:"rtms_stream_id,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	Timestamp   int64         `json:"timestamp,omitempty"`
	Content     *mediaContent `json:"content,omitempty"`
}

type mediaContent struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Transport dials media servers and runs one read loop per session.
type Transport struct {
	// HandshakeTimeout bounds the dial plus signaling handshake per
	// candidate server URL.
	HandshakeTimeout time.Duration

	dialer *websocket.Dialer
}

func NewTransport(handshakeTimeout time.Duration) *Transport {
	return &Transport{
		HandshakeTimeout: handshakeTimeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Join connects to the first reachable media server, completes the
// signaling handshake and starts delivering frames to the sink. The
// returned handle is independent per meeting.
func (t *Transport) Join(ctx context.Context, p core.JoinParams, sink core.FrameSink) (core.MediaSession, error) {
	if len(p.ServerURLs) == 0 {
		return nil, errors.New("no media server urls")
	}
	var lastErr error
	for _, u := range p.ServerURLs {
		conn, _, err := t.dialer.DialContext(ctx, u, nil)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", u, err)
			continue
		}
		s := &session{
			conn:    conn,
			sink:    sink,
			meeting: p.MeetingUUID,
			done:    make(chan struct{}),
		}
		if err := s.handshake(p, t.HandshakeTimeout); err != nil {
			_ = conn.Close()
			lastErr = fmt.Errorf("handshake %s: %w", u, err)
			continue
		}
		go s.readLoop()
		log.Info().Str("module", "rtms").Str("meeting", string(p.MeetingUUID)).Str("server", u).Msg("media stream joined")
		return s, nil
	}
	return nil, lastErr
}

type session struct {
	conn    *websocket.Conn
	sink    core.FrameSink
	meeting core.MeetingID

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) handshake(p core.JoinParams, timeout time.Duration) error {
	if err := s.writeJSON(envelope{
		MsgType:     msgHandshakeReq,
		MeetingUUID: string(p.MeetingUUID),
		StreamID:    p.StreamID,
	}); err != nil {
		return err
	}
	if timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.MsgType != msgHandshakeResp {
			continue
		}
		if env.StatusCode != 0 {
			return fmt.Errorf("media server rejected handshake: status %d", env.StatusCode)
		}
		return nil
	}
}

// readLoop pumps stream messages until the connection dies or Leave
// closes it. Frame callbacks run on this goroutine, so the sink must
// not block.
func (s *session) readLoop() {
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			select {
			case <-s.done:
			default:
				log.Warn().Err(err).Str("module", "rtms").Str("meeting", string(s.meeting)).Msg("media stream read ended")
			}
			return
		}
		switch env.MsgType {
		case msgKeepAliveReq:
			if err := s.writeJSON(envelope{MsgType: msgKeepAliveResp, Timestamp: env.Timestamp}); err != nil {
				log.Warn().Err(err).Str("module", "rtms").Str("meeting", string(s.meeting)).Msg("keep-alive response failed")
			}
		case msgMediaAudio:
			if env.Content != nil {
				s.sink.OnAudioFrame(core.Frame(env.Content.Data), frameMeta(env.Content))
			}
		case msgMediaVideo:
			if env.Content != nil {
				s.sink.OnVideoFrame(core.Frame(env.Content.Data), frameMeta(env.Content))
			}
		default:
			// Signaling chatter we do not care about.
		}
	}
}

func frameMeta(c *mediaContent) core.FrameMeta {
	return core.FrameMeta{
		ParticipantID: core.ParticipantID(c.UserID),
		DisplayName:   c.UserName,
		Size:          len(c.Data),
		Timestamp:     c.Timestamp,
	}
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Leave terminates the subscription. Safe to call more than once; the
// read loop exits on the closed connection.
func (s *session) Leave() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		log.Info().Str("module", "rtms").Str("meeting", string(s.meeting)).Msg("media stream left")
	})
	return err
}
