package storage

import (
	"context"
	"errors"

	"github.com/copse-social/copse/models"
)

// ErrNotFound is returned by lookups that miss. The resolver treats it as
// "fetch remotely"; everything else treats it as an error.
var ErrNotFound = errors.New("storage: not found")

// Community is a cached community document plus local ownership.
type Community struct {
	models.Community
	Local bool
}

// Post is a cached post document plus the local moderation flags the
// apply engine mutates.
type Post struct {
	models.Post
	Deleted bool
	Removed bool
	Local   bool
}

// Comment mirrors Post for replies.
type Comment struct {
	models.Comment
	Deleted bool
	Removed bool
	Local   bool
}

// PrivateMessage is a cached chat message plus its deletion flag.
type PrivateMessage struct {
	models.ChatMessage
	Deleted bool
	Local   bool
}

// Follow is a subscription edge from an actor to a person or community.
type Follow struct {
	Follower models.URL
	Target   models.URL
	// Inbox is where deliveries for this follower go; the shared inbox
	// of the follower's instance when it advertises one.
	Inbox    models.URL
	Accepted bool
	// Broken is set when the inbox permanently rejected a delivery.
	// Broken follows are skipped during fan-out.
	Broken bool
}

// Vote is a score record keyed by (actor, target).
type Vote struct {
	Actor  models.URL
	Target models.URL
	Score  int
}

// Ban records that a community banned an actor.
type Ban struct {
	Actor     models.URL
	Community models.URL
}

// Objects caches resolved entities and carries deletion state.
type Objects interface {
	Person(ctx context.Context, id models.URL) (*models.Person, error)
	UpsertPerson(ctx context.Context, p *models.Person) error
	Community(ctx context.Context, id models.URL) (*Community, error)
	UpsertCommunity(ctx context.Context, c *Community) error
	Post(ctx context.Context, id models.URL) (*Post, error)
	UpsertPost(ctx context.Context, p *Post) error
	Comment(ctx context.Context, id models.URL) (*Comment, error)
	UpsertComment(ctx context.Context, c *Comment) error
	// SetDeleted flips the deletion flags on the post or comment named
	// by target. Setting flags already at the requested value is not an
	// error; delivery is at-least-once.
	SetDeleted(ctx context.Context, target models.URL, deleted, removed bool) error
}

// Messages owns private messages. They live outside Objects because no
// community or moderation state ever touches them.
type Messages interface {
	PrivateMessage(ctx context.Context, id models.URL) (*PrivateMessage, error)
	UpsertPrivateMessage(ctx context.Context, m *PrivateMessage) error
	// SetMessageDeleted flips the deletion flag; flipping to the current
	// value is not an error.
	SetMessageDeleted(ctx context.Context, id models.URL, deleted bool) error
}

// Follows owns subscription edges.
type Follows interface {
	UpsertFollow(ctx context.Context, f Follow) error
	DeleteFollow(ctx context.Context, follower, target models.URL) error
	AcceptFollow(ctx context.Context, follower, target models.URL) error
	Following(ctx context.Context, follower, target models.URL) (bool, error)
	FollowsBy(ctx context.Context, follower models.URL) ([]Follow, error)
	// FollowerInboxes lists delivery inboxes of target's followers,
	// excluding broken edges. Deduplication happens at dispatch.
	FollowerInboxes(ctx context.Context, target models.URL) ([]models.URL, error)
	// MarkFollowBroken disables every edge delivered through inbox.
	MarkFollowBroken(ctx context.Context, inbox models.URL) error
}

// Votes owns score records.
type Votes interface {
	UpsertVote(ctx context.Context, v Vote) error
	DeleteVote(ctx context.Context, actor, target models.URL) error
	Vote(ctx context.Context, actor, target models.URL) (*Vote, error)
}

// Bans owns community bans and moderator rosters, the relationship state
// the verification engine consults.
type Bans interface {
	// RecordBan upserts the ban and drops the banned actor's follow of
	// the community in one storage transaction, so no reader observes
	// the ban without the follow gone.
	RecordBan(ctx context.Context, b Ban) error
	DeleteBan(ctx context.Context, actor, community models.URL) error
	Banned(ctx context.Context, actor, community models.URL) (bool, error)
	AddModerator(ctx context.Context, actor, community models.URL) error
	IsModerator(ctx context.Context, actor, community models.URL) (bool, error)
}

// Store is everything the federation engines need from persistence.
type Store interface {
	Objects
	Messages
	Follows
	Votes
	Bans
}
