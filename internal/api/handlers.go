package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ainova/assistant/internal/auth"
)

// AgentRunner is the single entry point into the assistant pipeline.
type AgentRunner interface {
	Respond(ctx context.Context, externalID, displayName, query string, routingTags map[string]string) (string, error)
}

// MessageSender delivers a reply back to a WhatsApp chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

type APIHandler struct {
	agent     AgentRunner
	whatsapp  MessageSender // nil when Green API is not configured
	jwtSecret []byte        // empty disables bearer auth on /agent
}

func NewAPIHandler(agent AgentRunner, whatsapp MessageSender, jwtSecret []byte) *APIHandler {
	return &APIHandler{agent: agent, whatsapp: whatsapp, jwtSecret: jwtSecret}
}

// AuthMiddleware requires a valid bearer token when a JWT secret is
// configured. Tokens identify channel integrations, minted offline via
// the -issue-token server flag.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.jwtSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if _, err := auth.ValidateToken(h.jwtSecret, tokenString); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ExternalID accepts a JSON string or number; numbers are canonicalized
// to their decimal representation so the same caller maps to the same
// user regardless of how a channel encodes the id.
type ExternalID string

func (e *ExternalID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExternalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	*e = ExternalID(n.String())
	return nil
}

type AgentRequest struct {
	UserID   ExternalID `json:"user_id"`
	Username string     `json:"username,omitempty"`
	Message  string     `json:"message"`
	Client   string     `json:"client,omitempty"`
	Channel  string     `json:"channel,omitempty"`
}

type AgentResponse struct {
	Answer string `json:"answer"`
}

// AgentHandler is the unified entry point for all channels: Telegram,
// web chat, automations. Model failures never surface here; the
// pipeline absorbs them into a fallback answer.
func (h *APIHandler) AgentHandler(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id and message are required", http.StatusBadRequest)
		return
	}

	routingTags := map[string]string{}
	if req.Client != "" {
		routingTags["client"] = req.Client
	}
	if req.Channel != "" {
		routingTags["channel"] = req.Channel
	}

	answer, err := h.agent.Respond(r.Context(), string(req.UserID), req.Username, req.Message, routingTags)
	if err != nil {
		log.Printf("Error running agent for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AgentResponse{Answer: answer})
}

type greenAPIWebhook struct {
	TypeWebhook string `json:"typeWebhook"`
	SenderData  struct {
		ChatID     string `json:"chatId"` // e.g. '79991234567@c.us'
		SenderName string `json:"senderName"`
		ChatName   string `json:"chatName"`
	} `json:"senderData"`
	MessageData struct {
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
	} `json:"messageData"`
}

// GreenAPIWebhookHandler receives Green API notifications, runs incoming
// WhatsApp messages through the agent, and sends the answer back to the
// chat. Anything that is not an incoming text message is acknowledged
// and ignored.
func (h *APIHandler) GreenAPIWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var payload greenAPIWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid webhook payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if payload.TypeWebhook != "incomingMessageReceived" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "type": payload.TypeWebhook})
		return
	}

	chatID := payload.SenderData.ChatID
	userText := payload.MessageData.TextMessageData.TextMessage
	if chatID == "" || userText == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_text_or_chat"})
		return
	}

	username := payload.SenderData.SenderName
	if username == "" {
		username = payload.SenderData.ChatName
	}
	if username == "" {
		username = "whatsapp_user"
	}

	externalID := "wa:" + chatID

	answer, err := h.agent.Respond(r.Context(), externalID, username, userText, map[string]string{"channel": "whatsapp"})
	if err != nil {
		log.Printf("Error running agent for WhatsApp chat %s: %v", chatID, err)
		http.Error(w, "Failed to generate response", http.StatusInternalServerError)
		return
	}

	if h.whatsapp != nil {
		if err := h.whatsapp.SendMessage(r.Context(), chatID, answer); err != nil {
			log.Printf("Failed to send WhatsApp reply to %s: %v", chatID, err)
			writeJSON(w, http.StatusOK, map[string]string{"status": "error_send", "detail": err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "answer": answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
