package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"luxselect/src/failure"
)

const (
	followUpSystemPrompt = "You suggest follow-up questions. Given a selected text and its explanation, " +
		"propose 3 to 5 specific questions the reader is likely to ask next, moving from basic to deeper " +
		"(history, applications, principles, comparisons). Keep each under 15 words. " +
		"Reply with a JSON array of strings only, for example [\"question 1\", \"question 2\"]."
	maxFollowUps      = 5
	followUpMaxTokens = 200
)

// FollowUps asks the model for questions the reader may want to ask next.
func (c *Client) FollowUps(ctx context.Context, text, explanation string) ([]string, error) {
	user := fmt.Sprintf("Selected text: %s\n\nExplanation:\n%s\n\nSuggest 3-5 follow-up questions:",
		clip(text, 500), clip(explanation, 1000))
	content, err := c.Complete(ctx, []message{
		{Role: "system", Content: followUpSystemPrompt},
		{Role: "user", Content: user},
	}, followUpMaxTokens)
	if err != nil {
		return nil, err
	}
	questions, err := parseQuestions(content)
	if err != nil {
		return nil, failure.New(failure.Internal, "llm.followups", err)
	}
	return questions, nil
}

// parseQuestions accepts a JSON array of strings, optionally wrapped in a
// Markdown code fence.
func parseQuestions(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw []any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse follow-up questions: %w", err)
	}
	var out []string
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxFollowUps {
			break
		}
	}
	return out, nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
