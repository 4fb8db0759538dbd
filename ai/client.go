// Package ai is the single gateway to the external speech-to-text,
// embedding and generative-text services, all spoken over an
// OpenAI-compatible API.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"videorag/config"
	"videorag/core"
)

type Client struct {
	oa  *openai.Client
	cfg *config.Config
}

func New(cfg *config.Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{oa: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

// Transcribe sends one audio segment to the speech-to-text service and
// returns segment-relative timestamped spans.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (core.ASRResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.ASRTimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := c.oa.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.ASRModel,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return core.ASRResult{}, fmt.Errorf("transcription API: %w", err)
	}

	res := core.ASRResult{Text: strings.TrimSpace(resp.Text)}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		res.Spans = append(res.Spans, core.Span{Start: seg.Start, End: seg.End, Text: text})
	}
	// Some gateways return plain text with no segment detail. Fall back to
	// a single span covering the whole segment.
	if len(res.Spans) == 0 && res.Text != "" {
		end := resp.Duration
		if end == 0 {
			end, _ = core.ProbeDuration(audioPath)
		}
		res.Spans = []core.Span{{Start: 0, End: end, Text: res.Text}}
	}
	if len(res.Spans) == 0 {
		return core.ASRResult{}, fmt.Errorf("empty transcription result for %s", audioPath)
	}
	return res, nil
}

// Embed computes one vector per input text, preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.EmbedTimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := c.oa.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Complete runs a single-turn chat completion.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
	return c.chat(ctx, messages, maxTokens, temperature)
}

// ChatWithHistory runs a multi-turn completion with prior conversation
// context, most recent turns last.
func (c *Client) ChatWithHistory(ctx context.Context, system string, history []core.ChatTurn, message string, maxTokens int, temperature float32) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range history {
		role := turn.Role
		if role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})
	return c.chat(ctx, messages, maxTokens, temperature)
}

func (c *Client) chat(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (string, error) {
	resp, err := c.oa.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
