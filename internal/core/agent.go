package core

import (
	"context"
	"fmt"
	"log"

	"github.com/ainova/assistant/internal/store"
)

// FallbackReply is returned to the caller when the model call fails.
// It is not persisted as an assistant turn: history records what the
// model actually said.
const FallbackReply = "I'm sorry, something went wrong while generating a response. Please try again later."

// ChatModel is the external language-model boundary.
type ChatModel interface {
	ChatCompletion(ctx context.Context, segments []Segment) (string, error)
}

// Options are the per-request knobs the pipeline honors. They are plain
// values read once at construction; their sourcing lives in config.
type Options struct {
	SystemPrompts    []string
	HistoryLimit     int
	RetrievalEnabled bool
	TopK             int
	MaxContextChars  int
}

// AgentService runs the context-assembly pipeline: resolve identity,
// read history, retrieve knowledge, compose the prompt, call the model,
// persist the exchange.
type AgentService struct {
	dbStore   *store.SQLiteStore
	retriever *Retriever
	llm       ChatModel
	opts      Options
}

func NewAgentService(db *store.SQLiteStore, retriever *Retriever, llm ChatModel, opts Options) *AgentService {
	return &AgentService{
		dbStore:   db,
		retriever: retriever,
		llm:       llm,
		opts:      opts,
	}
}

// Respond is the single entry point for every channel (Telegram, web,
// WhatsApp, automations). It takes an opaque external user id, an
// optional display name, the message text, and optional routing tags,
// and returns the assistant's answer.
//
// Steps run in a fixed order: identity, history read, retrieval, prompt
// composition, model call, history write. Storage failures propagate to
// the caller; embedding and model failures are absorbed locally so the
// caller always receives a response string.
func (s *AgentService) Respond(ctx context.Context, externalID, displayName, query string, routingTags map[string]string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	var namePtr *string
	if displayName != "" {
		namePtr = &displayName
	}
	user, err := s.dbStore.UpsertUser(ctx, externalID, namePtr)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user identity: %w", err)
	}

	history, err := s.dbStore.RecentTurns(ctx, user.ID, s.opts.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	var chunks []store.DocumentChunk
	if s.opts.RetrievalEnabled && s.retriever != nil {
		scored, err := s.retriever.TopK(ctx, query, s.opts.TopK)
		if err != nil {
			// Retrieval is best-effort: answer from history alone.
			log.Printf("Retrieval failed for user %s, proceeding without context: %v", user.ExternalID, err)
		}
		for _, sc := range scored {
			chunks = append(chunks, sc.Chunk)
		}
	}

	segments := BuildPrompt(PromptInput{
		SystemPrompts:   s.opts.SystemPrompts,
		RoutingTags:     routingTags,
		History:         history,
		Chunks:          chunks,
		Query:           query,
		MaxContextChars: s.opts.MaxContextChars,
	})

	reply, err := s.llm.ChatCompletion(ctx, segments)
	if err != nil {
		log.Printf("Model call failed for user %s: %v", user.ExternalID, err)
		// The query still happened; keep it on record. The apology is
		// not written back as an assistant turn.
		if _, err := s.dbStore.AppendTurn(ctx, user.ID, store.RoleUser, query); err != nil {
			log.Printf("Failed to persist user turn after model failure: %v", err)
		}
		return FallbackReply, nil
	}

	if _, err := s.dbStore.AppendTurn(ctx, user.ID, store.RoleUser, query); err != nil {
		return "", fmt.Errorf("failed to persist user turn: %w", err)
	}
	if _, err := s.dbStore.AppendTurn(ctx, user.ID, store.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("failed to persist assistant turn: %w", err)
	}

	return reply, nil
}
