package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/germanamz/silk/pkg/chats/chat"
)

const (
	// DownloadAction is the form value of "action" that requests the archive.
	DownloadAction = "download"
	// MessagesField carries a JSON transcript in form submissions.
	MessagesField = "messages"

	maxFormMemory = 1 << 20
)

var (
	// ErrUnsupportedMediaType is returned for requests that are neither forms nor JSON.
	ErrUnsupportedMediaType = errors.New("dispatch: unsupported media type")
	// ErrBadRequest is returned for malformed forms or transcripts.
	ErrBadRequest = errors.New("dispatch: bad request")
)

// Kind tells the dispatcher which path a request takes.
type Kind int

const (
	KindChat     Kind = iota // Conversational turn.
	KindDownload             // Direct archive download.
)

func (k Kind) String() string {
	if k == KindDownload {
		return "download"
	}
	return "chat"
}

// Inbound is a classified request. Chat is set for KindChat.
type Inbound struct {
	Kind Kind
	Chat *chat.Chat
}

// Classify inspects the content type of r and decodes it into an Inbound.
// Form submissions with action=download take the download path; other form
// submissions read their transcript from the messages field. JSON bodies carry
// {"messages": [...]}.
func Classify(r *http.Request) (Inbound, error) {
	ct := r.Header.Get("Content-Type")

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, ct)
	}

	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return Inbound{}, fmt.Errorf("%w: parse form: %v", ErrBadRequest, err)
		}
		return classifyForm(r)
	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return Inbound{}, fmt.Errorf("%w: parse form: %v", ErrBadRequest, err)
		}
		return classifyForm(r)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		c, err := DecodeTranscript(r.Body)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: KindChat, Chat: c}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
}

func classifyForm(r *http.Request) (Inbound, error) {
	if r.PostFormValue("action") == DownloadAction {
		return Inbound{Kind: KindDownload}, nil
	}

	raw := r.PostFormValue(MessagesField)
	if raw == "" {
		return Inbound{}, fmt.Errorf("%w: form has neither action=%s nor %s", ErrBadRequest, DownloadAction, MessagesField)
	}

	c, err := DecodeTranscript(strings.NewReader(`{"messages":` + raw + `}`))
	if err != nil {
		return Inbound{}, err
	}

	return Inbound{Kind: KindChat, Chat: c}, nil
}

// DecodeTranscript reads {"messages": [{role, content}, ...]} from r.
// A missing or empty list yields an empty chat.
func DecodeTranscript(r io.Reader) (*chat.Chat, error) {
	var body struct {
		Messages []chat.Turn `json:"messages"`
	}

	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode transcript: %v", ErrBadRequest, err)
	}

	c := chat.New(body.Messages...)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	return c, nil
}
