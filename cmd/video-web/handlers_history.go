package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/history"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// historyItem is the list view of an entry.
type historyItem struct {
	ID        string        `json:"id"`
	FileName  string        `json:"fileName"`
	Mode      analysis.Mode `json:"mode"`
	CreatedAt time.Time     `json:"createdAt"`
	Summary   string        `json:"summary"`
	ChatTurns int           `json:"chatTurns"`
}

// handleListHistory lists entries newest first. GET /api/history?limit=N
func (s *server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list history")
		httpError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		item := historyItem{
			ID:        e.ID,
			FileName:  e.FileName,
			Mode:      e.Mode,
			CreatedAt: e.CreatedAt,
			ChatTurns: len(e.Chat),
		}
		if e.Result != nil {
			item.Summary = e.Result.Summary
		}
		items = append(items, item)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": items})
}

// handleGetHistory returns one entry with its chat. GET /api/history/{id}
func (s *server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.historyError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleDeleteHistory removes an entry and its spooled video. DELETE /api/history/{id}
func (s *server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.historyError(w, err)
		return
	}
	s.dropVideo(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleChat answers a follow-up question. Model failures still return 200
// with a readable reply and ok=false; only successful exchanges are saved.
// POST /api/history/{id}/chat
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return
	}

	entry, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.historyError(w, err)
		return
	}

	chatReq := analysis.ChatRequest{History: entry.Chat, Message: question}
	if remote, ok := entry.Result.RemoteReference(); ok {
		chatReq.Remote = &remote
	} else if src, ok := s.video(id); ok {
		chatReq.Source = src
	}

	reply, ok := s.analyzer.Chat(r.Context(), chatReq)
	if ok {
		err := s.store.AppendChat(context.WithoutCancel(r.Context()), id,
			analysis.Turn{Role: analysis.RoleUser, Text: question},
			analysis.Turn{Role: analysis.RoleAssistant, Text: reply},
		)
		if err != nil {
			log.Error().Err(err).Str("history_id", id).Msg("Failed to save chat turn")
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reply": reply, "ok": ok})
}

func (s *server) historyError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNotFound) {
		httpError(w, http.StatusNotFound, "history entry not found")
		return
	}
	log.Error().Err(err).Msg("History store error")
	httpError(w, http.StatusInternalServerError, "history store error")
}
