// Package openai implementiert den FieldExtractor über die Chat-Completions-API.
// Alle Aufrufe laufen mit Temperatur 0; partielle Ergebnisse sind erlaubt.
package openai

import (
	"context"
	"fmt"

	"myevidence/config"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client kapselt den OpenAI-Client samt Modellwahl.
type Client struct {
	client *goopenai.Client
	model  string
	logger *zap.Logger
}

// NewClient erstellt einen neuen OpenAI-Client aus der Konfiguration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	clientCfg := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.OpenAIModel,
		logger: logger,
	}
}

// chat schickt System- und User-Nachricht und gibt den ersten Choice-Text zurück.
func (c *Client) chat(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Synthesize schreibt den Meta-Absatz über die gepackten Studienblöcke.
func (c *Client) Synthesize(ctx context.Context, instructions, input string) (string, error) {
	out, err := c.chat(ctx, instructions, input, 2000)
	if err != nil {
		c.logger.Error("OpenAI-Synthese fehlgeschlagen", zap.Error(err))
		return "", err
	}
	return out, nil
}
