// Package streaming maintains one editable preview message per turn, updated
// in place as agent activity arrives.
package streaming

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/kazz187/chatbridge/internal/messaging"
)

type key struct {
	Project  string
	Instance string
}

type session struct {
	channelID string
	messageID string
	lines     []string
}

// Updater edits a bound message with the accumulated preview. It only works
// on platforms implementing messaging.MessageEditor; the editor is probed
// once at construction.
type Updater struct {
	mu       sync.Mutex
	sessions map[key]*session
	editor   messaging.MessageEditor
}

func NewUpdater(msgr messaging.Messenger) *Updater {
	editor, _ := msgr.(messaging.MessageEditor)
	return &Updater{
		sessions: make(map[key]*session),
		editor:   editor,
	}
}

// CanStream reports whether the platform supports message edits.
func (u *Updater) CanStream() bool {
	return u.editor != nil
}

// Start binds the preview to an already-posted message.
func (u *Updater) Start(project, instanceID, channelID, messageID string) {
	if u.editor == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessions[key{Project: project, Instance: instanceID}] = &session{
		channelID: channelID,
		messageID: messageID,
	}
}

// Has reports whether a preview is open for the key.
func (u *Updater) Has(project, instanceID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.sessions[key{Project: project, Instance: instanceID}]
	return ok
}

// Append adds a line and pushes the joined buffer to the bound message.
// No-op when unbound.
func (u *Updater) Append(ctx context.Context, project, instanceID, text string) {
	u.mu.Lock()
	s, ok := u.sessions[key{Project: project, Instance: instanceID}]
	if !ok {
		u.mu.Unlock()
		return
	}
	s.lines = append(s.lines, text)
	body := strings.Join(s.lines, "\n")
	channelID, messageID := s.channelID, s.messageID
	u.mu.Unlock()

	if err := u.editor.UpdateMessage(ctx, channelID, messageID, body); err != nil {
		slog.Debug("failed to update streaming preview", "project", project, "error", err)
	}
}

// Finalize performs the last edit and closes the preview. When header is
// non-empty it is prepended to the buffer. With no open preview, a non-empty
// header together with a fallback target still gets written, so a turn that
// streamed nothing can carry its usage summary.
func (u *Updater) Finalize(ctx context.Context, project, instanceID, header, fallbackChannelID, fallbackMessageID string) {
	if u.editor == nil {
		return
	}
	u.mu.Lock()
	k := key{Project: project, Instance: instanceID}
	s, ok := u.sessions[k]
	delete(u.sessions, k)
	u.mu.Unlock()

	if !ok {
		if header == "" || fallbackMessageID == "" {
			return
		}
		if err := u.editor.UpdateMessage(ctx, fallbackChannelID, fallbackMessageID, header); err != nil {
			slog.Debug("failed to finalize preview", "project", project, "error", err)
		}
		return
	}

	lines := s.lines
	if header != "" {
		lines = append([]string{header}, lines...)
	}
	if len(lines) == 0 {
		return
	}
	if err := u.editor.UpdateMessage(ctx, s.channelID, s.messageID, strings.Join(lines, "\n")); err != nil {
		slog.Debug("failed to finalize preview", "project", project, "error", err)
	}
}

// Discard drops the preview without a final edit.
func (u *Updater) Discard(project, instanceID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.sessions, key{Project: project, Instance: instanceID})
}

// Reset drops all previews. Test hook.
func (u *Updater) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessions = make(map[key]*session)
}
