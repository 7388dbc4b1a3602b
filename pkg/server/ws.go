package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/stream"
)

// Frame types sent on /api/chat/ws.
const (
	FrameDelta      = "delta"
	FrameDone       = "done"
	FrameToolResult = "tool_result"
	FrameError      = "error"
)

// Frame is one server message on the WebSocket. Each client message is a
// transcript {"messages": [...]}; the reply is a series of delta frames ended
// by done, a single tool_result, or an error.
type Frame struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WarnContext(r.Context(), "websocket accept failed", slog.Any("error", err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	conn.SetReadLimit(s.maxBody)
	ctx := r.Context()

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				s.log.DebugContext(ctx, "websocket read ended", slog.Any("error", err))
			}
			return
		}

		if err := s.answerWS(ctx, conn, raw); err != nil {
			s.log.DebugContext(ctx, "websocket write failed", slog.Any("error", err))
			return
		}
	}
}

// answerWS handles one transcript. Only write failures are returned; request
// errors are reported to the client as error frames.
func (s *Server) answerWS(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
	c, err := dispatch.DecodeTranscript(bytes.NewReader(raw))
	if err != nil {
		return s.writeErrorFrame(ctx, conn, err)
	}

	out, err := s.dispatcher.Converse(ctx, c)
	if err != nil {
		return s.writeErrorFrame(ctx, conn, err)
	}

	switch o := out.(type) {
	case dispatch.ToolResult:
		s.metrics.outcomes.WithLabelValues("tool_result").Inc()
		return wsjson.Write(ctx, conn, Frame{Type: FrameToolResult, Result: o.Body})
	case dispatch.Stream:
		s.metrics.outcomes.WithLabelValues("stream").Inc()
		return s.relayWS(ctx, conn, o.Pipe)
	default:
		return s.writeErrorFrame(ctx, conn, errors.New("server: unexpected outcome"))
	}
}

func (s *Server) relayWS(ctx context.Context, conn *websocket.Conn, pipe *stream.Pipe) error {
	defer pipe.Abort()

	for {
		fragment, err := pipe.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return wsjson.Write(ctx, conn, Frame{Type: FrameDone})
		}
		if err != nil {
			return s.writeErrorFrame(ctx, conn, err)
		}

		if err := wsjson.Write(ctx, conn, Frame{Type: FrameDelta, Text: fragment}); err != nil {
			return err
		}
		s.metrics.fragments.Inc()
	}
}

func (s *Server) writeErrorFrame(ctx context.Context, conn *websocket.Conn, err error) error {
	s.metrics.outcomes.WithLabelValues("error").Inc()
	_, code := classify(err)
	return wsjson.Write(ctx, conn, Frame{Type: FrameError, Error: code, Message: err.Error()})
}
