package messaging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
)

// Console is a development Messenger that renders channel traffic to a
// terminal. It supports threads and edits so the full orchestration path can
// be exercised without a chat platform.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole() *Console {
	return &Console{w: os.Stdout}
}

var _ Messenger = (*Console)(nil)
var _ ThreadMessenger = (*Console)(nil)
var _ MessageEditor = (*Console)(nil)

func (c *Console) printf(col color.Attribute, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = color.New(col).Fprintf(c.w, format+"\n", args...)
}

func (c *Console) SendToChannel(_ context.Context, channelID, text string) error {
	c.printf(color.FgWhite, "[%s] %s", channelID, text)
	return nil
}

func (c *Console) SendToChannelWithID(_ context.Context, channelID, text string) (string, error) {
	id := ulid.Make().String()
	c.printf(color.FgWhite, "[%s] (%s) %s", channelID, id, text)
	return id, nil
}

func (c *Console) SendToChannelWithFiles(_ context.Context, channelID, caption string, paths []string) error {
	c.printf(color.FgMagenta, "[%s] %s files=%v", channelID, caption, paths)
	return nil
}

func (c *Console) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	c.printf(color.FgYellow, "[%s] react %s on %s", channelID, emoji, messageID)
	return nil
}

func (c *Console) ReplaceOwnReaction(_ context.Context, channelID, messageID, from, to string) error {
	c.printf(color.FgYellow, "[%s] react %s -> %s on %s", channelID, from, to, messageID)
	return nil
}

func (c *Console) SendInteractiveQuestions(_ context.Context, channelID string, questions []Question) (string, error) {
	for _, q := range questions {
		c.printf(color.FgCyan, "[%s] ? %s %v", channelID, q.Question, q.Options)
	}
	return "", nil
}

func (c *Console) ReplyInThread(_ context.Context, channelID, parentID, text string) error {
	c.printf(color.FgHiBlack, "[%s] ↳(%s) %s", channelID, parentID, text)
	return nil
}

func (c *Console) ReplyInThreadWithID(_ context.Context, channelID, parentID, text string) (string, error) {
	id := ulid.Make().String()
	c.printf(color.FgHiBlack, "[%s] ↳(%s) (%s) %s", channelID, parentID, id, text)
	return id, nil
}

func (c *Console) UpdateMessage(_ context.Context, channelID, messageID, text string) error {
	c.printf(color.FgHiBlack, "[%s] edit %s: %s", channelID, messageID, text)
	return nil
}

func (c *Console) Platform() Platform {
	return PlatformConsole
}

// String implements fmt.Stringer for log output.
func (c *Console) String() string {
	return fmt.Sprintf("console(%s)", PlatformConsole)
}
