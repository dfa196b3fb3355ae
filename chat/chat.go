// Package chat models the chat platform: users, messages, incoming
// events, and the narrow client surface the action adapters call.
// The real client lives outside this repo; tests use Recorder.
package chat

import (
	"context"
	"time"

	"github.com/groupwarden/groupwarden/interp"
)

// User is a platform user as seen in events.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// Attr exposes user fields to rule paths (user.id, user.username).
func (u *User) Attr(name string) (interp.Value, bool) {
	if u == nil {
		return interp.Null, false
	}
	switch name {
	case "id":
		return interp.Int(u.ID), true
	case "username":
		return interp.String(u.Username), true
	case "first_name":
		return interp.String(u.FirstName), true
	case "last_name":
		return interp.String(u.LastName), true
	case "is_bot":
		return interp.Bool(u.IsBot), true
	}
	return interp.Null, false
}

// Message is a platform message.  Kind distinguishes the media
// classes the dispatcher canonicalizes ("text", "photo", "video",
// "document").
type Message struct {
	ID           int64    `json:"id"`
	ChatID       int64    `json:"chat_id"`
	From         *User    `json:"from,omitempty"`
	Text         string   `json:"text,omitempty"`
	Caption      string   `json:"caption,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	MediaGroupID string   `json:"media_group_id,omitempty"`
	ReplyTo      *Message `json:"reply_to,omitempty"`
}

// Attr exposes message fields to rule paths.  A nil nested message
// (message.reply_to_message) resolves to null, and further segments
// null-propagate in the evaluator's path walker.
func (m *Message) Attr(name string) (interp.Value, bool) {
	if m == nil {
		return interp.Null, false
	}
	switch name {
	case "id":
		return interp.Int(m.ID), true
	case "chat_id":
		return interp.Int(m.ChatID), true
	case "text":
		return interp.String(m.Text), true
	case "caption":
		return interp.String(m.Caption), true
	case "kind":
		return interp.String(m.Kind), true
	case "media_group_id":
		return interp.String(m.MediaGroupID), true
	case "from_user":
		if m.From == nil {
			return interp.Null, true
		}
		return interp.Opaque(m.From), true
	case "reply_to_message":
		if m.ReplyTo == nil {
			return interp.Null, true
		}
		return interp.Opaque(m.ReplyTo), true
	}
	return interp.Null, false
}

// Event is one incoming platform event, already canonicalized by the
// feed to an atomic tag.  Synthesized events (media_group, schedule)
// are built by the dispatcher.
type Event struct {
	// ID is a dispatch id, assigned when the event enters the
	// dispatcher.  Used only for log correlation.
	ID string `json:"id,omitempty"`

	// Tag is the canonical event tag: message, command, user_join,
	// user_leave, photo, video, document, edited_message,
	// media_group, schedule.
	Tag string `json:"tag"`

	GroupID int64    `json:"group_id"`
	User    *User    `json:"user,omitempty"`
	Message *Message `json:"message,omitempty"`

	// MediaGroup is the ordered list of aggregated messages on a
	// synthesized media_group event.
	MediaGroup []*Message `json:"media_group,omitempty"`

	At time.Time `json:"at"`
}

// Member is the platform's view of a user's standing in a chat.
type Member struct {
	User   *User  `json:"user"`
	Status string `json:"status"` // creator, administrator, member, restricted, left, kicked
}

// IsAdmin reports whether the member can administer the chat.
func (m *Member) IsAdmin() bool {
	return m != nil && (m.Status == "creator" || m.Status == "administrator")
}

// Client is the platform surface the action adapters consume.  Every
// call may suspend; implementations should honor ctx.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	Reply(ctx context.Context, msg *Message, text string) error
	Delete(ctx context.Context, msg *Message) error

	// Restrict mutes the user.  A zero until means indefinitely.
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	Unrestrict(ctx context.Context, chatID, userID int64) error

	Ban(ctx context.Context, chatID, userID int64, reason string) error
	Kick(ctx context.Context, chatID, userID int64) error

	GetChatMember(ctx context.Context, chatID, userID int64) (*Member, error)

	// StartVerification hands the user to the human-verification
	// subsystem.  Opaque to this engine.
	StartVerification(ctx context.Context, chatID, userID int64) error
}
