package intake

import (
	"errors"
	"strings"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindText  Kind = "text"
	KindOther Kind = "other"
)

// ErrGatewayDownload marks a photo whose bytes could not be fetched.
// Gateways wrap their transport error with it.
var ErrGatewayDownload = errors.New("photo download failed")

// Event is an inbound message, classified once by the gateway adapter.
type Event struct {
	Kind           Kind
	ConversationID string
	// MessageID is the platform message id, for logs only.
	MessageID string

	// KindPhoto: either Image or FetchErr is set.
	Image    []byte
	FetchErr error

	// KindText.
	Text string
}

func PhotoEvent(conversationID string, image []byte) Event {
	return Event{Kind: KindPhoto, ConversationID: conversationID, Image: image}
}

func PhotoFetchFailedEvent(conversationID string, err error) Event {
	if err == nil {
		err = ErrGatewayDownload
	}
	return Event{Kind: KindPhoto, ConversationID: conversationID, FetchErr: err}
}

func TextEvent(conversationID, text string) Event {
	return Event{Kind: KindText, ConversationID: conversationID, Text: text}
}

func OtherEvent(conversationID string) Event {
	return Event{Kind: KindOther, ConversationID: conversationID}
}

func (e Event) routable() bool {
	return strings.TrimSpace(e.ConversationID) != ""
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	// Allow "/cmd@BotName" variants by stripping "@...".
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
