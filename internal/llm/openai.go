// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vexlabs/vex/internal/vexerr"
)

// OpenAIProvider implements Provider over the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// NewOpenAIProvider builds a provider for the given key and model. Model
// defaults to gpt-4o-mini.
func NewOpenAIProvider(apiKey, model string, log *slog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, vexerr.New(vexerr.Configuration, "llm.NewOpenAIProvider", "api key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model, log: log}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Available probes the models endpoint.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	base := req.BaseMaxTokens
	if base <= 0 {
		base = 1024
	}
	apiReq := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            messages,
		Temperature:         float32(req.Params.Temperature),
		TopP:                float32(req.Params.TopP),
		PresencePenalty:     float32(req.Params.PresencePenalty),
		FrequencyPenalty:    float32(req.Params.FrequencyPenalty),
		MaxCompletionTokens: req.Params.MaxTokens(base),
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return Response{}, vexerr.Wrap(vexerr.Provider, "llm.OpenAIProvider.Complete", "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, vexerr.New(vexerr.Provider, "llm.OpenAIProvider.Complete", "no choices returned")
	}

	content := resp.Choices[0].Message.Content
	return Response{
		Content: content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Structured: extractStructured(content),
	}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
