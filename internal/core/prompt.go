package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ainova/assistant/internal/store"
)

const (
	sourceSeparator  = "\n\n---\n\n"
	truncationMarker = "\n[context truncated]"

	knowledgeBasePreamble = "Here is relevant information from the AINOVA knowledge base. " +
		"Use it when answering and rely on the facts, but do not say that you are reading documents:\n\n"

	metadataPreamble = "Internal routing metadata for this request. " +
		"Never disclose it to the user:\n"

	untitledSource = "Untitled"
)

// Segment is one role-tagged piece of the composed prompt.
type Segment struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptInput collects everything the composed prompt is built from.
type PromptInput struct {
	SystemPrompts   []string          // fixed persona/instruction segments, in order
	RoutingTags     map[string]string // optional channel/client labels
	History         []store.Turn      // oldest first
	Chunks          []store.DocumentChunk
	Query           string
	MaxContextChars int // budget for the synthesized source block, 0 = unlimited
}

// BuildPrompt composes the ordered segment sequence sent to the model:
// persona instructions, optional routing metadata, dialogue history
// oldest first, one synthesized knowledge-base segment, and finally the
// current user query. The order is load-bearing; the model is sensitive
// to it.
func BuildPrompt(in PromptInput) []Segment {
	segments := make([]Segment, 0, len(in.SystemPrompts)+len(in.History)+3)

	for _, prompt := range in.SystemPrompts {
		segments = append(segments, Segment{Role: store.RoleSystem, Content: prompt})
	}

	if meta := renderRoutingTags(in.RoutingTags); meta != "" {
		segments = append(segments, Segment{Role: store.RoleSystem, Content: metadataPreamble + meta})
	}

	for _, turn := range in.History {
		segments = append(segments, Segment{Role: turn.Role, Content: turn.Content})
	}

	if block := BuildSourceBlock(in.Chunks, in.MaxContextChars); block != "" {
		segments = append(segments, Segment{Role: store.RoleSystem, Content: knowledgeBasePreamble + block})
	}

	segments = append(segments, Segment{Role: store.RoleUser, Content: in.Query})
	return segments
}

// BuildSourceBlock concatenates the retrieved chunks into one numbered
// context block:
//
//	[Source 1] <title>
//	<content>
//
// Blocks are joined by a visible separator. When the concatenation
// exceeds maxChars the block is cut to maxChars characters and an
// explicit truncation marker is appended. Truncation counts runes, not
// bytes, so a budget never splits a UTF-8 sequence.
func BuildSourceBlock(chunks []store.DocumentChunk, maxChars int) string {
	if len(chunks) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		title := untitledSource
		if chunk.Title != nil && *chunk.Title != "" {
			title = *chunk.Title
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d] %s\n%s", i+1, title, chunk.Content))
	}

	joined := strings.Join(blocks, sourceSeparator)
	if maxChars <= 0 {
		return joined
	}

	runes := []rune(joined)
	if len(runes) <= maxChars {
		return joined
	}
	return string(runes[:maxChars]) + truncationMarker
}

// renderRoutingTags flattens the tags into sorted "key: value" lines so
// the metadata segment is deterministic across requests.
func renderRoutingTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for key, value := range tags {
		if value != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %s\n", key, tags[key])
	}
	return strings.TrimRight(b.String(), "\n")
}
