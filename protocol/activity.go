package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// PublicAudience addresses an activity to the world; peers deliver it to
// their followers rather than to a concrete inbox.
var PublicAudience = models.MustURL("https://www.w3.org/ns/activitystreams#Public")

// maxClockSkew bounds how far in the future a published timestamp may
// claim to be before the envelope is rejected.
const maxClockSkew = 10 * time.Minute

// Activity is one wire activity. Verify is read-only and must pass before
// Apply runs; Apply is the single idempotent state transition for the
// kind. Both may resolve remote references on the shared budget.
type Activity interface {
	Envelope() *Common
	Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error
	Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error
}

// Outgoing is an activity queued for dispatch, together with the local
// actor whose followers expand the recipient set.
type Outgoing struct {
	Activity Activity
	// FollowersOf, when set, adds the current follower inboxes of this
	// local actor to the explicit to/cc recipients.
	FollowersOf models.URL
}

// Deps holds the collaborators one activity is processed against.
type Deps struct {
	Scheme   string
	Domain   string
	Store    storage.Store
	Resolver *resolver.Resolver
	Notify   notify.Notifier
	// Deliver queues an outbound activity; nil when this node never
	// sends (some tests).
	Deliver func(ctx context.Context, out Outgoing) error
	// AllowedInstances, when non-empty, is an allowlist of peer hosts.
	AllowedInstances []string
	BlockedInstances []string
	Log              *zap.Logger
}

// IsLocal reports whether u lives on this instance.
func (d *Deps) IsLocal(u models.URL) bool {
	return u.Host == d.Domain
}

// NewActivityID mints a dereferenceable id for a locally built activity.
func (d *Deps) NewActivityID(kind string) models.URL {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 only fails when the entropy source does.
		panic(err)
	}
	scheme := d.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return models.MustURL(fmt.Sprintf("%s://%s/activities/%s/%s", scheme, d.Domain, kind, id))
}

// notify emits a client event. Best effort: a nil or failing notifier
// never fails the apply.
func (d *Deps) notify(ctx context.Context, ev notify.Event) {
	if d.Notify == nil {
		return
	}
	d.Notify.Notify(ctx, ev)
}

// instanceAllowed applies the configured federation allow/block lists.
func (d *Deps) instanceAllowed(host string) bool {
	for _, blocked := range d.BlockedInstances {
		if host == blocked {
			return false
		}
	}
	if len(d.AllowedInstances) == 0 {
		return true
	}
	for _, allowed := range d.AllowedInstances {
		if host == allowed {
			return true
		}
	}
	return false
}

// Common is the envelope every activity kind carries.
type Common struct {
	ID        models.URL                    `json:"id"`
	Kind      string                        `json:"type"`
	Actor     models.ObjectID[models.Actor] `json:"actor"`
	To        models.OneOrMany              `json:"to,omitempty"`
	Cc        models.OneOrMany              `json:"cc,omitempty"`
	Published *time.Time                    `json:"published,omitempty"`
	Extra     models.Extra                  `json:"-"`
}

// Envelope returns the envelope; every kind embeds one. The method
// cannot be named Common: the embedded field of that name would shadow
// it and break interface satisfaction.
func (c *Common) Envelope() *Common {
	return c
}

// validate applies the structural envelope rules at decode time.
func (c *Common) validate() error {
	if c.ID.IsZero() {
		return models.Errorf(models.KindMalformed, "activity has no id")
	}
	if c.Actor.IsZero() {
		return models.Errorf(models.KindMalformed, "activity has no actor")
	}
	if c.To != nil && len(c.To) == 0 {
		return models.Errorf(models.KindMalformed, "activity %s has an empty to list", c.ID.String())
	}
	if c.Cc != nil && len(c.Cc) == 0 {
		return models.Errorf(models.KindMalformed, "activity %s has an empty cc list", c.ID.String())
	}
	return nil
}

// verifyCommon is the envelope part of the verification engine: structural
// sanity plus the instance-level federation policy.
func verifyCommon(c *Common, deps *Deps) error {
	if !c.ID.SameAuthority(c.Actor.ID()) {
		return models.Errorf(models.KindAuthorization,
			"activity %s and its actor %s live on different authorities", c.ID.String(), c.Actor.String())
	}
	if c.Published != nil && time.Until(*c.Published) > maxClockSkew {
		return models.Errorf(models.KindMalformed,
			"activity %s claims a publish time too far in the future", c.ID.String())
	}
	if !deps.instanceAllowed(c.Actor.ID().Host) {
		return models.Errorf(models.KindAuthorization,
			"instance %s is not permitted to federate here", c.Actor.ID().Host)
	}
	return nil
}

// verifyActorAllowed checks the relationship policy: a banned actor may
// not act in the community.
func verifyActorAllowed(ctx context.Context, deps *Deps, actor, community models.URL) error {
	banned, err := deps.Store.Banned(ctx, actor, community)
	if err != nil {
		return models.WrapErr(models.KindStorage, err, "ban lookup")
	}
	if banned {
		return models.Errorf(models.KindAuthorization,
			"actor %s is banned from %s", actor.String(), community.String())
	}
	return nil
}

// communityOf walks a cached post-or-comment up to its post and returns
// the community it belongs to. The walk stays inside storage; resolution
// has already pulled the chain in.
func communityOf(ctx context.Context, deps *Deps, target models.PostOrComment) (models.URL, error) {
	if target.Post != nil {
		return target.Post.Audience.ID(), nil
	}

	current := target.Comment
	seen := make(map[string]bool)
	for current != nil {
		parent := current.InReplyTo.ID()
		if seen[parent.String()] {
			break
		}
		seen[parent.String()] = true

		if post, err := deps.Store.Post(ctx, parent); err == nil {
			return post.Audience.ID(), nil
		}
		comment, err := deps.Store.Comment(ctx, parent)
		if err != nil {
			break
		}
		current = &comment.Comment
	}
	return models.URL{}, models.Errorf(models.KindResolution,
		"could not determine the community of %s", target.ID().String())
}

// maybeAnnounce forwards act to the community's followers when the
// community is local. Remote communities announce their own traffic.
func maybeAnnounce(ctx context.Context, deps *Deps, community models.URL, act Activity) {
	if deps.Deliver == nil || community.IsZero() || !deps.IsLocal(community) {
		return
	}

	ann := &Announce{
		Common: Common{
			ID:    deps.NewActivityID("announce"),
			Kind:  "Announce",
			Actor: models.NewObjectID[models.Actor](community),
			To:    models.OneOrMany{PublicAudience},
		},
		Object: act,
	}
	if err := deps.Deliver(ctx, Outgoing{Activity: ann, FollowersOf: community}); err != nil && deps.Log != nil {
		deps.Log.Warn("announce dispatch failed",
			zap.String("community", community.String()),
			zap.String("object", act.Envelope().ID.String()),
			zap.Error(err))
	}
}
