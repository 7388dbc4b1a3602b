// Package chats provides the provider-agnostic data model for chat requests.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/silk/pkg/chats/role] transcript roles (system, user, assistant)
//   - [github.com/germanamz/silk/pkg/chats/content] content parts (text, tool call, tool result)
//   - [github.com/germanamz/silk/pkg/chats/chat] ordered transcript and prompt rendering
//
// No provider or API code is included.
package chats
