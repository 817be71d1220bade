package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/freshalert/freshagent/internal/checkpoint"
	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

// messageRequest is one inbound user message. Images may be raw base64
// payloads or remote URLs.
type messageRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Images    []imagePayload `json:"images,omitempty"`
}

type imagePayload struct {
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"` // base64
	URL       string `json:"url,omitempty"`
}

// messageResponse is the invocation outcome.
type messageResponse struct {
	SessionID    string `json:"session_id"`
	Reply        string `json:"reply"`
	ToolRounds   int    `json:"tool_rounds,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Message == "" && len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "message or images required", s.logger)
		return
	}

	images := make([]turn.ImageRef, 0, len(req.Images))
	for _, img := range req.Images {
		ref := turn.ImageRef{MediaType: img.MediaType, URL: img.URL}
		if img.Data != "" {
			data, err := base64.StdEncoding.DecodeString(img.Data)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid base64 image data", s.logger)
				return
			}
			ref.Data = data
		}
		images = append(images, ref)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, release := s.sessions.Acquire(sessionID)
	defer release()

	result, err := s.engine.Run(r.Context(), sess, turn.NewHuman(req.Message, images...))
	if err != nil {
		var upstream *llm.UpstreamError
		if errors.As(err, &upstream) {
			s.logger.Error("generation failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "model provider error, please retry", s.logger)
			return
		}
		s.logger.Error("invocation failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, messageResponse{
		SessionID:    sessionID,
		Reply:        result.Reply,
		ToolRounds:   result.ToolRounds,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, s.logger)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"sessions": s.sessions.IDs()}, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	// Snapshot under the ownership lock; serializing the live session
	// would race with an in-flight invocation appending to it.
	var payload map[string]any
	found := s.sessions.View(r.PathValue("id"), func(sess *session.Session) {
		payload = map[string]any{
			"id":              sess.ID,
			"turns":           append([]turn.Turn(nil), sess.Turns...),
			"watermark":       sess.Watermark,
			"rolling_summary": sess.RollingSummary,
			"created_at":      sess.CreatedAt,
			"updated_at":      sess.UpdatedAt,
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "session not found", s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, payload, s.logger)
}

func (s *Server) handleSessionLedger(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	found := s.sessions.View(r.PathValue("id"), func(sess *session.Session) {
		payload = map[string]any{
			"session_id": sess.ID,
			"records":    sess.Ledger.Records(),
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "session not found", s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, payload, s.logger)
}

func (s *Server) handleCheckpointCreate(w http.ResponseWriter, r *http.Request) {
	if s.checkpointer == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpointing disabled", s.logger)
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	// Body is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	cp, err := s.checkpointer.Create(checkpoint.TriggerManual, req.Note)
	if err != nil {
		s.logger.Error("checkpoint create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "checkpoint failed", s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"id":         cp.ID.String(),
		"created_at": cp.CreatedAt,
		"sessions":   cp.SessionCount,
		"turns":      cp.TurnCount,
		"bytes":      cp.ByteSize,
	}, s.logger)
}

func (s *Server) handleCheckpointList(w http.ResponseWriter, r *http.Request) {
	if s.checkpointer == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpointing disabled", s.logger)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	checkpoints, err := s.checkpointer.List(limit)
	if err != nil {
		s.logger.Error("checkpoint list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed", s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"checkpoints": checkpoints}, s.logger)
}
