package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/assistant"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/websocket"
)

const maxChatBody = 1 << 20

// chatRequest accepts both the current field names and the older
// message/use_rag names.
type chatRequest struct {
	Prompt       string         `json:"prompt"`
	Message      string         `json:"message"`
	UserID       string         `json:"user_id"`
	UseRetrieval *bool          `json:"use_retrieval"`
	UseRAG       *bool          `json:"use_rag"`
	TopK         *int           `json:"top_k"`
	Options      map[string]any `json:"options"`
}

func (c chatRequest) toRequest(defaultTopK int, retrievalEnabled bool) assistant.Request {
	prompt := c.Prompt
	if prompt == "" {
		prompt = c.Message
	}
	useRetrieval := retrievalEnabled
	switch {
	case c.UseRetrieval != nil:
		useRetrieval = *c.UseRetrieval
	case c.UseRAG != nil:
		useRetrieval = *c.UseRAG
	}
	topK := defaultTopK
	if c.TopK != nil {
		topK = *c.TopK
	}
	return assistant.Request{
		Prompt:       prompt,
		UserID:       c.UserID,
		UseRetrieval: useRetrieval,
		TopK:         topK,
		Options:      c.Options,
	}
}

type maskRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	classes := privacy.Classes()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = string(c)
	}

	info := map[string]interface{}{
		"name":              "fin-sentinel",
		"version":           Version,
		"uptime":            time.Since(s.startTime).Round(time.Second).String(),
		"detectors":         names,
		"model_provider":    s.config.Model.Provider,
		"retrieval_enabled": s.config.Retrieval.Enabled,
		"retrieval_backend": s.config.Retrieval.Backend,
		"embedding_service": s.config.Embeddings.Type,
	}
	if s.ingester != nil {
		if stats, err := s.ingester.Stats(r.Context()); err == nil {
			info["index"] = stats
		} else {
			s.logger.Warn("Index stats unavailable", zap.Error(err))
		}
	}
	if s.hub != nil {
		info["websocket"] = s.hub.GetStats()
	}
	if s.limiter != nil {
		info["rate_limit"] = s.limiter.Config()
	}

	writeJSON(w, http.StatusOK, info)
}

// handleChat answers one question through the masking pipeline
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var body chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := decoder.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := body.toRequest(s.config.Retrieval.TopK, s.config.Retrieval.Enabled)
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, r, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, r, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	answer, err := s.assistant.Answer(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Chat request timed out")
		writeError(w, r, http.StatusGatewayTimeout, "request timed out")
		return
	case errors.Is(err, context.Canceled):
		log.Info("Chat request cancelled by client")
		return
	case errors.Is(err, assistant.ErrGeneration):
		writeError(w, r, http.StatusBadGateway, "model generation failed")
		return
	default:
		log.Error("Chat request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	s.broadcast(websocket.EventTypeMasking, requestID, websocket.MaskingEvent{
		Direction:     "prompt",
		Findings:      answer.Findings,
		TotalFindings: privacy.ProcessResult{Findings: answer.Findings}.Total(),
		PromptHash:    answer.PromptHash,
	})
	s.broadcast(websocket.EventTypeVerdict, requestID, websocket.VerdictEvent{
		Status:     string(answer.Status),
		Confidence: string(answer.Confidence),
		Sources:    len(answer.Sources),
		PromptHash: answer.PromptHash,
	})

	writeJSON(w, http.StatusOK, answer)
}

// handleMask masks text without calling the model
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var body maskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.assistant.Mask(body.Text)
	s.broadcast(websocket.EventTypeMasking, getRequestID(r.Context()), websocket.MaskingEvent{
		Direction:     "text",
		Findings:      result.Findings,
		TotalFindings: result.Total(),
	})
	writeJSON(w, http.StatusOK, result)
}

// handleIngest indexes an uploaded statement file. The index is reset first
// unless reset=false is given or disabled in configuration.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	reset := s.config.Ingest.ResetOnUpload
	if v := r.FormValue("reset"); v != "" {
		if reset, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, http.StatusBadRequest, "reset must be a boolean")
			return
		}
	}

	result, err := s.ingester.Ingest(r.Context(), header.Filename, file, reset)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, "request timed out")
			return
		}
		log.Warn("Ingestion failed", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, r, http.StatusUnprocessableEntity, "ingestion failed")
		return
	}

	status := "ok"
	if result.Indexed == 0 && result.Skipped == 0 && result.Failed == 0 {
		status = "no_docs"
	}

	s.broadcast(websocket.EventTypeIngest, requestID, websocket.IngestEvent{
		Source:   result.Source,
		Rows:     result.Rows,
		Indexed:  result.Indexed,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		Findings: result.Findings,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"file":   header.Filename,
		"docs":   result.Indexed,
		"result": result,
	})
}

func (s *Server) broadcast(t websocket.EventType, requestID string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(websocket.Event{
		Type:      t,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data:      data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: getRequestID(r.Context())})
}
