// Package summarize produces meeting notes from a transcript with an LLM.
package summarize

import (
	"context"
	"strings"

	"github.com/hpungsan/minutes/internal/config"
	"github.com/hpungsan/minutes/internal/errors"
	"github.com/hpungsan/minutes/internal/recording"
)

// Provider names accepted in llm.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Default models per provider, used when llm.model is empty.
const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultAnthropicModel = "claude-haiku-4-5"
)

const systemPrompt = `You write concise meeting notes from transcripts.
Respond in Markdown with exactly these sections:

## Summary
A short paragraph on what the meeting was about.

## Decisions
Bullet list of decisions made. Write "None" if there were none.

## Action Items
Bullet list of tasks, with the owner in bold when one is named.

## Open Questions
Bullet list of unresolved questions.

Do not invent facts that are not in the transcript.`

// Client sends a prompt to a language model and returns its text reply.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// New builds the client for cfg.LLM.Provider.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	key := strings.TrimSpace(cfg.LLM.APIKey)
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = ProviderGemini
	}

	switch provider {
	case ProviderGemini:
		if key == "" {
			return nil, errors.NewSummarizer("no Gemini API key: set MINUTES_GEMINI_API_KEY or llm.api_key", nil)
		}
		return newGemini(ctx, key, cfg.LLM.Model, cfg.LLM.Endpoint)
	case ProviderAnthropic:
		if key == "" {
			return nil, errors.NewSummarizer("no Anthropic API key: set MINUTES_ANTHROPIC_API_KEY or llm.api_key", nil)
		}
		return newAnthropic(key, cfg.LLM.Model, cfg.LLM.Endpoint), nil
	default:
		return nil, errors.NewSummarizer("unknown llm provider: "+provider, nil)
	}
}

// FlattenTranscript renders segments as "[mm:ss] text" lines.
func FlattenTranscript(segments []recording.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString("[")
		b.WriteString(recording.FormatTimestamp(s.StartTime))
		b.WriteString("] ")
		if s.Speaker != nil && *s.Speaker != "" {
			b.WriteString(*s.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildPrompt is the user message sent with the system prompt.
func BuildPrompt(title string, segments []recording.Segment) string {
	var b strings.Builder
	b.WriteString("Meeting: ")
	b.WriteString(title)
	b.WriteString("\n\nTranscript:\n\n")
	b.WriteString(FlattenTranscript(segments))
	return b.String()
}

// Summarize asks c for notes on a transcript.
func Summarize(ctx context.Context, c Client, title string, segments []recording.Segment) (string, error) {
	if len(segments) == 0 {
		return "", errors.NewInvalidRequest("recording has no transcript to summarize")
	}

	out, err := c.Complete(ctx, systemPrompt, BuildPrompt(title, segments))
	if err != nil {
		if errors.Is(err, errors.ErrSummarizer) {
			return "", err
		}
		return "", errors.NewSummarizer(c.Name()+" request failed", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.NewSummarizer(c.Name()+" returned an empty summary", nil)
	}
	return out, nil
}
