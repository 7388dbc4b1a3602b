package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/stream"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	in, err := dispatch.Classify(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out, err := s.dispatcher.Handle(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch o := out.(type) {
	case dispatch.Download:
		s.metrics.outcomes.WithLabelValues("download").Inc()
		w.Header().Set("Content-Type", o.Result.FileType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": o.Result.Filename}))
		w.Header().Set("Content-Length", strconv.Itoa(len(o.Result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(o.Result.Data)
	case dispatch.ToolResult:
		s.metrics.outcomes.WithLabelValues("tool_result").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(o.Body)
	case dispatch.Stream:
		s.metrics.outcomes.WithLabelValues("stream").Inc()
		s.streamText(w, r, o.Pipe)
	}
}

// streamText relays fragments as a chunked plain-text body, flushing after
// each one. A provider error after the first byte cannot change the status,
// so it is logged and the body ends.
func (s *Server) streamText(w http.ResponseWriter, r *http.Request, pipe *stream.Pipe) {
	defer pipe.Abort()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	fl, _ := w.(http.Flusher)
	if fl != nil {
		fl.Flush()
	}

	ctx := r.Context()
	for {
		fragment, err := pipe.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.log.WarnContext(ctx, "stream ended with error",
				slog.String("req_id", RequestIDFromContext(ctx)),
				slog.Any("error", err),
			)
			return
		}

		if _, err := io.WriteString(w, fragment); err != nil {
			s.log.DebugContext(ctx, "client went away", slog.Any("error", err))
			return
		}
		if fl != nil {
			fl.Flush()
		}
		s.metrics.fragments.Inc()
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed",
		slog.String("req_id", RequestIDFromContext(r.Context())),
		slog.Int("status", status),
		slog.Any("error", err),
	)

	if r.URL.Path == "/api/chat" {
		s.metrics.outcomes.WithLabelValues("error").Inc()
	}

	writeError(w, status, code, err.Error())
}
