// Package messaging defines the chat-platform surface the bridge talks to.
// Concrete adapters (Slack, Discord, ...) live outside this repository; the
// daemon only depends on these interfaces plus the bundled console adapter.
package messaging

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Platform discriminates message-length split policies per chat platform.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
	PlatformConsole Platform = "console"
)

// SplitLimit is the maximum message length before the platform adapter must
// split outgoing text.
func (p Platform) SplitLimit() int {
	switch p {
	case PlatformDiscord:
		return 2000
	case PlatformSlack:
		return 40000
	default:
		return 0 // unlimited
	}
}

// SplitText breaks text into chunks of at most limit bytes, preferring to cut
// at the last newline inside the window and never splitting a rune. A limit
// of zero or less returns the text as a single chunk.
func SplitText(limit int, text string) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, text[:cut])
			text = text[cut:]
			continue
		}
		chunks = append(chunks, text[:cut])
		text = text[cut+1:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// Question is one interactive question with its selectable options.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Messenger is the base capability set every platform adapter provides.
// All operations are best-effort from the orchestrator's point of view.
type Messenger interface {
	SendToChannel(ctx context.Context, channelID, text string) error
	// SendToChannelWithID returns the posted message id, or "" when the
	// platform does not expose one.
	SendToChannelWithID(ctx context.Context, channelID, text string) (string, error)
	SendToChannelWithFiles(ctx context.Context, channelID, caption string, paths []string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ReplaceOwnReaction(ctx context.Context, channelID, messageID, from, to string) error
	// SendInteractiveQuestions blocks until the user answers or the platform
	// gives up; the selection is informational for this subsystem.
	SendInteractiveQuestions(ctx context.Context, channelID string, questions []Question) (string, error)
	Platform() Platform
}

// ThreadMessenger is an optional extension for platforms with thread replies.
type ThreadMessenger interface {
	ReplyInThread(ctx context.Context, channelID, parentID, text string) error
	ReplyInThreadWithID(ctx context.Context, channelID, parentID, text string) (string, error)
}

// MessageEditor is an optional extension for platforms that allow editing an
// already posted message. Streaming previews and thread accumulation need it.
type MessageEditor interface {
	UpdateMessage(ctx context.Context, channelID, messageID, text string) error
}
