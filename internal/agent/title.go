package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/bqchat/bqchat/internal/store"
)

const titleTimeout = 5 * time.Second

// GenerateTitle produces a short session topic from the first user message.
// Failures degrade to a truncated copy of the message so a new session never
// fails just because the title call did.
func (a *Agent) GenerateTitle(ctx context.Context, firstMessage string) string {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	fallback := truncateTitle(firstMessage)

	if err := a.limiter.Wait(ctx); err != nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Summarize the following question about warehouse data as a short title "+
			"(at most 8 words, no quotes, no trailing punctuation):\n\n%s", firstMessage)

	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if a.modelName != "" {
		opts = append(opts, ai.WithModelName(a.modelName))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		a.logger.Debug("title generation failed", "error", err)
		return fallback
	}

	title := strings.TrimSpace(strings.Trim(resp.Text(), "\"' \n"))
	if title == "" {
		return fallback
	}
	return truncateTitle(title)
}

// truncateTitle clamps a candidate topic to the store's topic length limit.
func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "New conversation"
	}
	runes := []rune(s)
	if len(runes) <= store.TopicMaxLength {
		return s
	}
	return string(runes[:store.TopicMaxLength-3]) + "..."
}
