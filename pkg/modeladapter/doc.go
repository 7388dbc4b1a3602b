// Package modeladapter defines the contract between the chat endpoint and
// language model providers.
//
// It contains:
//   - [Provider] and the tagged [Response] variants [Text] and [ToolCall]
//   - [Request] and the [ToolChoice] policy (auto, forced tool, none)
//   - [Demux], which turns a provider's event stream into a Response
//   - the embeddable [ModelAdapter] base with HTTP helpers and auth
//   - [RateLimited], a Provider wrapper with request pacing and 429 retry
//
// This package contains no vendor-specific code; concrete providers live
// under pkg/providers.
package modeladapter
