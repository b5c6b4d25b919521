package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/parlorlabs/parlor/internal/store"
)

const (
	defaultSummaryWindow = 20
	defaultSuggestWindow = 5

	summarizeTemplate = "Summarize the following chat conversation in a few short sentences. " +
		"Mention who said what only when it matters. Conversation:\n\n%s"

	fixGrammarTemplate = "Correct the spelling and grammar of the following chat message. " +
		"Keep the tone and meaning unchanged. Reply with the corrected message only, nothing else.\n\nMessage: %s"

	suggestReplyTemplate = "You are helping a chat participant write their next message. " +
		"Given the recent conversation and the participant's unfinished draft, suggest a single natural reply. " +
		"Reply with the suggested message only, nothing else.\n\nConversation:\n%s\n\nDraft: %s"
)

// Completer is a stateless text-completion collaborator: one prompt in, one
// candidate out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AssistService turns feed context into prompts for the text service. Every
// call is single-shot with no retry; failures surface as ErrAssist, never as
// a fault that takes the caller down.
type AssistService struct {
	llm           Completer
	summaryWindow int
	suggestWindow int
}

func NewAssistService(llm Completer, summaryWindow, suggestWindow int) *AssistService {
	if summaryWindow <= 0 {
		summaryWindow = defaultSummaryWindow
	}
	if suggestWindow <= 0 {
		suggestWindow = defaultSuggestWindow
	}
	return &AssistService{llm: llm, summaryWindow: summaryWindow, suggestWindow: suggestWindow}
}

func (s *AssistService) Summarize(ctx context.Context, history []store.Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("%w: nothing to summarize yet", ErrValidation)
	}

	prompt := fmt.Sprintf(summarizeTemplate, transcript(history, s.summaryWindow))
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssist, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *AssistService) FixGrammar(ctx context.Context, draft string) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return "", fmt.Errorf("%w: draft is empty", ErrValidation)
	}

	prompt := fmt.Sprintf(fixGrammarTemplate, draft)
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssist, err)
	}
	return stripWrappingQuotes(out), nil
}

func (s *AssistService) SuggestReply(ctx context.Context, history []store.Message, draft string) (string, error) {
	prompt := fmt.Sprintf(suggestReplyTemplate, transcript(history, s.suggestWindow), draft)
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssist, err)
	}
	return stripWrappingQuotes(out), nil
}

// transcript renders the most recent n messages as "<author>: <text>" lines.
func transcript(history []store.Message, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}

	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Author.Name)
		b.WriteString(": ")
		b.WriteString(msg.Body)
	}
	return b.String()
}

// stripWrappingQuotes undoes the quotation marks the model tends to wrap
// single-message answers in.
func stripWrappingQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'")
}
