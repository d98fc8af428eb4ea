// Package api exposes the enhancement pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptd/promptd/internal/pipeline"
	"github.com/promptd/promptd/internal/profile"
	"github.com/promptd/promptd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// defaultUserID is assumed when a request carries no user identifier.
const defaultUserID = "default"

// Enhancer abstracts the pipeline for the HTTP layer.
type Enhancer interface {
	EnhanceMulti(ctx context.Context, userID, input string) (*pipeline.MultiResult, error)
	EnhanceSingle(ctx context.Context, input string) (*pipeline.SingleResult, error)
}

// ProfileManager abstracts profile reads and preference updates.
// Implemented by profile.Manager.
type ProfileManager interface {
	Get(userID string) profile.Profile
	SetPreferences(userID string, upd profile.PreferenceUpdate) (profile.Profile, error)
}

// HistoryWriter records exchanged chat messages. Implemented by storage.Store.
type HistoryWriter interface {
	AppendHistory(userID string, entries ...storage.HistoryEntry) error
}

// EnhancementLister reads the run log. Implemented by storage.Store.
type EnhancementLister interface {
	RecentEnhancements(limit int) ([]storage.EnhancementRecord, error)
}

// Deps holds everything the HTTP handler needs.
type Deps struct {
	Enhancer Enhancer
	Profiles ProfileManager
	History  HistoryWriter
	Runs     EnhancementLister
	Chat     ChatClient
	Token    string // bearer token guarding management routes
}

// NewHandler returns the service's HTTP handler: public enhancement and
// chat routes plus token-guarded management routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/enhance", handleEnhance(deps.Enhancer))
	r.Post("/v1/enhance/multi", handleEnhanceMulti(deps.Enhancer))
	r.Post("/v1/chat/completions", handleChatCompletions(deps.Chat, deps.History))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/profile/{userID}", handleGetProfile(deps.Profiles))
		r.Patch("/profile/{userID}", handlePatchProfile(deps.Profiles))
		r.Get("/interactions", handleInteractions(deps.Runs))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type enhanceRequest struct {
	UserInput string `json:"userInput"`
	UserID    string `json:"userId"`
}

func decodeEnhanceRequest(w http.ResponseWriter, r *http.Request) (enhanceRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return enhanceRequest{}, false
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	return req, true
}

func handleEnhance(enh Enhancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeEnhanceRequest(w, r)
		if !ok {
			return
		}

		res, err := enh.EnhanceSingle(r.Context(), req.UserInput)
		if err != nil {
			if errors.Is(err, pipeline.ErrEmptyInput) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "Input is required")
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "Failed to enhance prompt")
			return
		}

		writeJSON(w, res)
	}
}

func handleEnhanceMulti(enh Enhancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeEnhanceRequest(w, r)
		if !ok {
			return
		}

		res, err := enh.EnhanceMulti(r.Context(), req.UserID, req.UserInput)
		if err != nil {
			if errors.Is(err, pipeline.ErrEmptyInput) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "Input is required")
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "Failed to generate enhancements")
			return
		}

		writeJSON(w, res)
	}
}

func handleGetProfile(profiles ProfileManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		writeJSON(w, profiles.Get(userID))
	}
}

func handlePatchProfile(profiles ProfileManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var upd profile.PreferenceUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := profiles.SetPreferences(userID, upd)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, p)
	}
}

func handleInteractions(runs EnhancementLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
				return
			}
			if n > 100 {
				n = 100
			}
			limit = n
		}

		recs, err := runs.RecentEnhancements(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing interactions: %v", err)
			return
		}

		type record struct {
			ID        string `json:"id"`
			UserID    string `json:"userId"`
			Input     string `json:"input"`
			BestStyle string `json:"bestStyle"`
			AvgScore  int    `json:"avgScore"`
			CreatedAt string `json:"createdAt"`
		}
		out := make([]record, len(recs))
		for i, rec := range recs {
			out[i] = record{
				ID:        rec.ID,
				UserID:    rec.UserID,
				Input:     rec.Input,
				BestStyle: rec.BestStyle,
				AvgScore:  rec.AvgScore,
				CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
