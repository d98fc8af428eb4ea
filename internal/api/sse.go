package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptd/promptd/internal/llm"
	"github.com/promptd/promptd/internal/storage"
)

// chatSystemPrompt frames every conversation; incoming prompts have already
// been through the enhancement pipeline.
const chatSystemPrompt = "You are a helpful AI assistant. Provide clear, accurate, and helpful responses. " +
	"The user's prompts have been enhanced for clarity, so respond accordingly to their enhanced intent."

// ChatClient is the model client used by the chat route. Implemented by
// llm.OpenAIClient.
type ChatClient interface {
	Generate(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error)
	GenerateStream(ctx context.Context, messages []llm.Message, onDelta func(string) error, opts ...llm.GenerateOption) error
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	UserID   string        `json:"userId"`
}

// sseFrame is the wire shape of one streamed content fragment.
type sseFrame struct {
	Choices []sseChoice `json:"choices"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Content string `json:"content"`
}

func handleChatCompletions(chat ChatClient, history HistoryWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}
		if req.UserID == "" {
			req.UserID = defaultUserID
		}

		messages := append([]llm.Message{{Role: "system", Content: chatSystemPrompt}}, req.Messages...)
		opts := []llm.GenerateOption{llm.WithTemperature(0.7), llm.WithMaxTokens(1000)}

		var reply string
		if req.Stream {
			var ok bool
			reply, ok = streamChat(r.Context(), w, chat, messages, opts)
			if !ok {
				return
			}
		} else {
			var err error
			reply, err = chat.Generate(r.Context(), messages, opts...)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "Failed to process chat request")
				return
			}
			writeJSON(w, map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": reply}},
				},
			})
		}

		recordExchange(history, req.UserID, req.Messages, reply)
	}
}

// streamChat relays the model stream as SSE frames:
//
//	data: {"choices":[{"delta":{"content": <fragment>}}]}\n\n
//
// terminated by a data: [DONE] frame. Returns the accumulated reply and
// whether the stream completed cleanly.
func streamChat(ctx context.Context, w http.ResponseWriter, chat ChatClient, messages []llm.Message, opts []llm.GenerateOption) (string, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return "", false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var full strings.Builder
	err := chat.GenerateStream(ctx, messages, func(delta string) error {
		full.WriteString(delta)
		payload, err := json.Marshal(sseFrame{Choices: []sseChoice{{Delta: sseDelta{Content: delta}}}})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, opts...)
	if err != nil {
		slog.Warn("chat: stream failed", "error", err)
		errPayload, marshalErr := json.Marshal(map[string]any{
			"error": map[string]any{
				"message": "upstream read error",
				"type":    "server_error",
			},
		})
		if marshalErr == nil {
			fmt.Fprintf(w, "data: %s\n\n", errPayload)
			flusher.Flush()
		}
		return "", false
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	return full.String(), true
}

// recordExchange appends the last user message and the assistant's reply to
// the user's history. Failures are logged, never surfaced.
func recordExchange(history HistoryWriter, userID string, messages []llm.Message, reply string) {
	now := time.Now().UTC()
	var entries []storage.HistoryEntry
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			entries = append(entries, storage.HistoryEntry{Role: "user", Content: messages[i].Content, Timestamp: now})
			break
		}
	}
	if reply != "" {
		entries = append(entries, storage.HistoryEntry{Role: "assistant", Content: reply, Timestamp: now})
	}
	if len(entries) == 0 {
		return
	}
	if err := history.AppendHistory(userID, entries...); err != nil {
		slog.Warn("chat: recording history failed", "user", userID, "error", err)
	}
}
