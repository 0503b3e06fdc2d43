package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/meetscope/meetscope/internal/app/orch"
	"github.com/meetscope/meetscope/internal/core"
)

type monitorRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

type webhookRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type startedPayload struct {
	MeetingUUID string `json:"meeting_uuid"`
	StreamID    string `json:"rtms_stream_id"`
	ServerURLs  string `json:"server_urls"`
}

type stoppedPayload struct {
	MeetingUUID string `json:"meeting_uuid"`
}

func handleMonitor(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req monitorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
			return
		}

		payload, err := o.Monitor(c.Request.Context(),
			core.MeetingID(req.SessionID), core.ParticipantID(req.ParticipantID))
		switch {
		case errors.Is(err, core.ErrMissingFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		case errors.Is(err, core.ErrAlreadyActive):
			c.JSON(http.StatusConflict, gin.H{"error": "already active"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.Data(http.StatusOK, "application/json", payload)
		}
	}
}

// handleWebhook always acknowledges with ok unless the request body
// itself does not parse: the platform cannot fix our internal failures
// by retrying.
func handleWebhook(ctx context.Context, o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req webhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		switch req.Event {
		case "session_started":
			var p startedPayload
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("bad session_started payload")
				break
			}
			o.MeetingStarted(ctx, orch.StartedEvent{
				MeetingUUID: core.MeetingID(p.MeetingUUID),
				StreamID:    p.StreamID,
				ServerURLs:  splitServerURLs(p.ServerURLs),
			})
		case "session_stopped":
			var p stoppedPayload
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("bad session_stopped payload")
				break
			}
			o.MeetingStopped(core.MeetingID(p.MeetingUUID))
		default:
			log.Debug().Str("module", "adapters.http").Str("event", req.Event).Msg("ignoring webhook event")
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleHealthz(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "watches": o.Registry.WatchCount()})
	}
}

// splitServerURLs accepts the webhook's comma separated server list.
func splitServerURLs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
