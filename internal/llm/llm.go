// Package llm classifies repositories into the configured vocabulary with a
// single chat completion per repo.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rb81/github-stars-organizer/internal/models"
)

type Client struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewClient(baseURL, apiKey, model string, log zerolog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log,
	}
}

// Categorize asks the model for exactly one label from vocab. A response
// outside the vocabulary falls back to the Other bucket so one malformed
// answer cannot abort the run.
func (c *Client) Categorize(ctx context.Context, repo models.Repo, vocab models.Vocabulary) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(vocab)},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(repo)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM call for %s: %w", repo.FullName, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned for %s", repo.FullName)
	}

	label := normalizeLabel(resp.Choices[0].Message.Content)
	resolved, ok := resolveLabel(vocab, label)
	if !ok {
		c.log.Warn().
			Str("repo", repo.FullName).
			Str("label", label).
			Msg("model returned a label outside the vocabulary, using Other")
	}
	return resolved, nil
}

// systemPrompt lists the permitted categories with their descriptions and
// constrains the model to answer with a bare category name.
func systemPrompt(vocab models.Vocabulary) string {
	var sb strings.Builder
	sb.WriteString("You classify GitHub repositories. Use ONLY the following categories:\n\n")
	for _, c := range vocab {
		if c.Description != "" {
			sb.WriteString(fmt.Sprintf("%s: %s\n", c.Name, c.Description))
		} else {
			sb.WriteString(c.Name + "\n")
		}
	}
	sb.WriteString("\nPick the single most appropriate category for the repository. ")
	sb.WriteString(fmt.Sprintf("If none fit, answer %q. ", models.OtherCategory))
	sb.WriteString("Answer with the category name only. No explanation, no punctuation, no markdown.")
	return sb.String()
}

func userMessage(repo models.Repo) string {
	parts := []string{fmt.Sprintf("Repository: %s", repo.FullName)}
	if repo.Description != "" {
		parts = append(parts, fmt.Sprintf("Description: %s", repo.Description))
	}
	if repo.Language != "" {
		parts = append(parts, fmt.Sprintf("Primary language: %s", repo.Language))
	}
	if repo.ReadmeExcerpt != "" {
		parts = append(parts, fmt.Sprintf("README excerpt:\n%s", repo.ReadmeExcerpt))
	}
	return strings.Join(parts, "\n\n")
}

// normalizeLabel strips the noise models wrap around a bare answer: code
// fences, quotes, a trailing period, surrounding whitespace.
func normalizeLabel(s string) string {
	s = stripCodeFences(s)
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

// resolveLabel matches a normalized label against the vocabulary, case
// insensitively. Unknown labels resolve to Other with ok=false.
func resolveLabel(vocab models.Vocabulary, label string) (string, bool) {
	if strings.EqualFold(label, models.OtherCategory) {
		return models.OtherCategory, true
	}
	for _, c := range vocab {
		if strings.EqualFold(c.Name, label) {
			return c.Name, true
		}
	}
	return models.OtherCategory, false
}

// stripCodeFences removes markdown code fences that some models wrap around
// their output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
