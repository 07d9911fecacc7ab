package core

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSystemPrompt = "You are the AI assistant of the AINOVA studio. " +
		"Answer to the point, in plain language."

	defaultDeveloperPrompt = "Answer in a structured and concise way. " +
		"If you are missing information, ask a clarifying question."
)

// LoadSystemPrompts reads the persona files system.txt and developer.txt
// from dir, falling back to the built-in defaults when a file is absent,
// empty, or unreadable. It never fails: the pipeline can always compose
// a prompt.
func LoadSystemPrompts(dir string) []string {
	return []string{
		readPromptFile(filepath.Join(dir, "system.txt"), defaultSystemPrompt),
		readPromptFile(filepath.Join(dir, "developer.txt"), defaultDeveloperPrompt),
	}
}

func readPromptFile(path, fallback string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback
	}
	return text
}
