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

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/vexlabs/vex/internal/vexerr"
)

// LangchainProvider adapts any langchaingo model behind the Provider
// surface — the second concrete backend proving the surface is genuinely
// pluggable. The stock constructor targets a local Ollama server.
type LangchainProvider struct {
	model llms.Model
	name  string
	log   *slog.Logger
}

// NewOllamaProvider builds a LangchainProvider over a local Ollama model.
func NewOllamaProvider(serverURL, model string, log *slog.Logger) (*LangchainProvider, error) {
	if model == "" {
		return nil, vexerr.New(vexerr.Configuration, "llm.NewOllamaProvider", "model name is required")
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Configuration, "llm.NewOllamaProvider", "build ollama client", err)
	}
	return NewLangchainProvider(m, "ollama/"+model, log), nil
}

// NewLangchainProvider wraps an existing langchaingo model.
func NewLangchainProvider(model llms.Model, name string, log *slog.Logger) *LangchainProvider {
	if log == nil {
		log = slog.Default()
	}
	return &LangchainProvider{model: model, name: name, log: log}
}

func (p *LangchainProvider) Name() string { return p.name }

// Available issues a one-token probe completion.
func (p *LangchainProvider) Available(ctx context.Context) bool {
	_, err := llms.GenerateFromSinglePrompt(ctx, p.model, "ok", llms.WithMaxTokens(1))
	return err == nil
}

func (p *LangchainProvider) Complete(ctx context.Context, req Request) (Response, error) {
	base := req.BaseMaxTokens
	if base <= 0 {
		base = 1024
	}

	content := []llms.MessageContent{}
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := p.model.GenerateContent(ctx, content,
		llms.WithTemperature(req.Params.Temperature),
		llms.WithTopP(req.Params.TopP),
		llms.WithPresencePenalty(req.Params.PresencePenalty),
		llms.WithFrequencyPenalty(req.Params.FrequencyPenalty),
		llms.WithMaxTokens(req.Params.MaxTokens(base)),
	)
	if err != nil {
		return Response{}, vexerr.Wrap(vexerr.Provider, "llm.LangchainProvider.Complete", "generate content", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, vexerr.New(vexerr.Provider, "llm.LangchainProvider.Complete", "no choices returned")
	}

	text := resp.Choices[0].Content
	return Response{
		Content:    text,
		Structured: extractStructured(text),
	}, nil
}

var _ Provider = (*LangchainProvider)(nil)
