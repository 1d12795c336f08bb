package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/layout"
	"github.com/xhad/solar/pkg/llm"
	"github.com/xhad/solar/pkg/store"
	"github.com/xhad/solar/pkg/tools"
)

var errNoContext = errors.New("no context found")

type passagesRequest struct {
	Messages   []string `json:"messages"`
	Model      string   `json:"model,omitempty"`
	Collection string   `json:"collection,omitempty"`
	ID         string   `json:"id,omitempty"`
}

type ragRequest struct {
	Messages   []string `json:"messages"`
	Model      string   `json:"model,omitempty"`
	Collection string   `json:"collection,omitempty"`
}

type chatRequest struct {
	Model     string           `json:"model,omitempty"`
	Messages  []models.Message `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
	// Collection grounds the last user message on passages retrieved from it.
	Collection string `json:"collection,omitempty"`
}

type embeddingsResponse struct {
	Object string                   `json:"object"`
	Data   []models.EmbeddingResult `json:"data"`
}

type chatChoice struct {
	Index   int            `json:"index"`
	Message models.Message `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model,omitempty"`
	Choices []chatChoice `json:"choices"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	var req passagesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.badRequest(w, r, "messages must not be empty")
		return
	}

	results, err := s.embeddings.PassageEmbeddings(r.Context(), req.Messages, embedding.PassageOptions{
		Model:      req.Model,
		Collection: req.Collection,
		ID:         req.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, embeddingsResponse{Object: "list", Data: results})
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		s.badRequest(w, r, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, r, "file is required")
		return
	}
	defer file.Close()

	results, err := s.embeddings.PDFEmbeddings(r.Context(), models.UploadFile{
		Filename: header.Filename,
		Content:  file,
	}, r.FormValue("collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, embeddingsResponse{Object: "list", Data: results})
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.badRequest(w, r, "messages must not be empty")
		return
	}

	result, err := s.embeddings.RAG(r.Context(), req.Messages, embedding.RAGOptions{
		Model:      req.Model,
		Collection: req.Collection,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		s.writeError(w, r, errNoContext)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.badRequest(w, r, "messages must not be empty")
		return
	}

	messages, err := s.ground(r.Context(), req.Messages, req.Collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var options []llms.CallOption
	if req.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.MaxTokens))
	}

	if req.Stream {
		s.streamChat(w, r, messages, req.Model, options)
		return
	}

	text, err := s.chat.Generate(r.Context(), messages, req.Model, options...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ID:     RequestID(r.Context()),
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chatChoice{{
			Message: models.Message{Role: models.RoleAssistant, Content: text},
		}},
	})
}

// streamChat writes the completion as server-sent events, one JSON delta per
// event, terminated by "data: [DONE]".
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, messages []models.Message, model string, options []llms.CallOption) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming not supported"))
		return
	}

	stream := s.chat.StreamGenerate(r.Context(), messages, model, options...)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range stream.Chunks() {
		data, _ := json.Marshal(map[string]string{"content": chunk})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		s.logger.Error("Stream failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("error", err.Error()))
		data, _ := json.Marshal(errorResponse{Error: err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Definitions())
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.badRequest(w, r, "error reading body")
		return
	}

	out, err := s.tools.Call(r.Context(), name, string(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// ground swaps the last user message for a RAG prompt built from collection.
func (s *Server) ground(ctx context.Context, messages []models.Message, collection string) ([]models.Message, error) {
	if collection == "" {
		return messages, nil
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleUser {
		return messages, nil
	}

	result, err := s.embeddings.RAG(ctx, []string{last.Content}, embedding.RAGOptions{Collection: collection})
	if err != nil {
		return nil, err
	}

	grounded := make([]models.Message, 0, len(messages)+1)
	grounded = append(grounded, messages[:len(messages)-1]...)
	return append(grounded, llm.RAGMessages(last.Content, result.Texts())...), nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.badRequest(w, r, "invalid json body")
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.logger.Warn("Bad request",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("error", msg))
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var completionErr *llm.CompletionError
	var layoutErr *layout.APIError

	switch {
	case errors.Is(err, errNoContext),
		errors.Is(err, store.ErrCollectionNotFound),
		errors.Is(err, tools.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, tools.ErrInvalidArguments),
		errors.Is(err, store.ErrInvalidBatch),
		errors.Is(err, layout.ErrInvalidPDF):
		return http.StatusBadRequest
	case errors.As(err, &completionErr), errors.As(err, &layoutErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
