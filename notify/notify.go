package notify

import (
	"context"

	"github.com/copse-social/copse/models"
	"go.uber.org/zap"
)

// EventKind names a state transition worth telling local clients about.
type EventKind string

const (
	PostCreated     EventKind = "post_created"
	PostUpdated     EventKind = "post_updated"
	PostDeleted     EventKind = "post_deleted"
	PostRestored    EventKind = "post_restored"
	CommentCreated  EventKind = "comment_created"
	CommentUpdated  EventKind = "comment_updated"
	CommentDeleted  EventKind = "comment_deleted"
	CommentRestored EventKind = "comment_restored"
	MessageCreated  EventKind = "message_created"
	MessageUpdated  EventKind = "message_updated"
	MessageDeleted  EventKind = "message_deleted"
	MessageRestored EventKind = "message_restored"
	VoteChanged     EventKind = "vote_changed"
	FollowChanged   EventKind = "follow_changed"
	BanChanged      EventKind = "ban_changed"
)

// Event is handed to the notifier after a successful apply.
type Event struct {
	Kind   EventKind
	Entity models.URL
	// Scope is the community (or actor) whose audience should hear
	// about the change.
	Scope models.URL
}

// Notifier delivers events to locally connected clients. Best effort:
// the apply engine never fails because a notification did.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier records events to the log. It stands in for a client
// push channel in single-binary deployments and in tests.
type LogNotifier struct {
	Log *zap.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	n.Log.Info("notify",
		zap.String("kind", string(ev.Kind)),
		zap.String("entity", ev.Entity.String()),
		zap.String("scope", ev.Scope.String()))
}
