// Package providers groups the concrete model adapters. Each sub-package
// implements [github.com/germanamz/silk/pkg/modeladapter.Provider]:
//   - openai: OpenAI chat completions via go-openai
//   - anthropic: Anthropic Messages via anthropic-sdk-go
//   - gemini: Google Gemini via generative-ai-go
//   - grok: xAI Grok over the OpenAI-compatible SSE endpoint
//   - ollama: Ollama chat via its api client
//   - echo: offline deterministic replies
//
// This package contains no provider-specific code.
package providers
