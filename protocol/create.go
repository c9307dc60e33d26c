package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
)

// CreateOrUpdate carries a new or edited post or comment. Create and
// Update share the transition: the object is upserted by its id, so a
// duplicate Create and a redundant Update both land in the same place.
type CreateOrUpdate struct {
	Common
	Object InlineObject `json:"object"`
}

// InlineObject is the embedded object of a CreateOrUpdate, dispatched on
// the object's own type discriminator.
type InlineObject struct {
	Post    *models.Post
	Comment *models.Comment
	Message *models.ChatMessage
}

// ID returns the id of whichever side is set.
func (o InlineObject) ID() models.URL {
	if o.Post != nil {
		return o.Post.ID
	}
	if o.Comment != nil {
		return o.Comment.ID
	}
	if o.Message != nil {
		return o.Message.ID
	}
	return models.URL{}
}

// AttributedTo returns the author reference of whichever side is set.
func (o InlineObject) AttributedTo() models.URL {
	if o.Post != nil {
		return o.Post.AttributedTo.ID()
	}
	if o.Comment != nil {
		return o.Comment.AttributedTo.ID()
	}
	if o.Message != nil {
		return o.Message.AttributedTo.ID()
	}
	return models.URL{}
}

// UnmarshalJSON dispatches on the embedded "type".
func (o *InlineObject) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case "Page", "Article":
		var p models.Post
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		o.Post = &p
		o.Comment = nil
		o.Message = nil
	case "Note":
		var c models.Comment
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		o.Comment = &c
		o.Post = nil
		o.Message = nil
	case "ChatMessage":
		var m models.ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		o.Message = &m
		o.Post = nil
		o.Comment = nil
	default:
		return models.Errorf(models.KindMalformed, "cannot create object of type %q", probe.Kind)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o InlineObject) MarshalJSON() ([]byte, error) {
	if o.Post != nil {
		return json.Marshal(o.Post)
	}
	if o.Comment != nil {
		return json.Marshal(o.Comment)
	}
	if o.Message != nil {
		return json.Marshal(o.Message)
	}
	return nil, models.Errorf(models.KindMalformed, "empty inline object")
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (c *CreateOrUpdate) UnmarshalJSON(data []byte) error {
	type createOrUpdate CreateOrUpdate
	var raw createOrUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*c = CreateOrUpdate(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (c CreateOrUpdate) MarshalJSON() ([]byte, error) {
	type createOrUpdate CreateOrUpdate
	return models.MergeExtra(createOrUpdate(c), c.Extra)
}

// Verify checks attribution, authority and community policy for the
// embedded object.
func (c *CreateOrUpdate) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&c.Common, deps); err != nil {
		return err
	}

	objID := c.Object.ID()
	if objID.IsZero() {
		return models.Errorf(models.KindMalformed, "%s %s carries no object id", c.Kind, c.ID.String())
	}
	if !objID.SameAuthority(c.Actor.ID()) {
		return models.Errorf(models.KindAuthorization,
			"object %s and actor %s live on different authorities", objID.String(), c.Actor.String())
	}
	if !c.Actor.ID().Equal(c.Object.AttributedTo()) {
		return models.Errorf(models.KindAuthorization,
			"actor %s is not the author %s", c.Actor.String(), c.Object.AttributedTo().String())
	}

	if c.Object.Message != nil {
		return c.verifyMessage(ctx, deps, budget)
	}

	community, err := c.community(ctx, deps, budget)
	if err != nil {
		return err
	}
	return verifyActorAllowed(ctx, deps, c.Actor.ID(), community)
}

// verifyMessage checks the person-to-person shape: exactly one concrete
// recipient, resolvable as a person. No community policy applies.
func (c *CreateOrUpdate) verifyMessage(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	recipient := c.Object.Message.Recipient()
	if recipient.IsZero() {
		return models.Errorf(models.KindMalformed,
			"private message %s must address exactly one person", c.Object.ID().String())
	}
	if recipient.Equal(PublicAudience) {
		return models.Errorf(models.KindMalformed,
			"private message %s addresses the public collection", c.Object.ID().String())
	}
	if _, err := deps.Resolver.Person(ctx, models.NewObjectID[models.Person](recipient), budget); err != nil {
		return err
	}
	return nil
}

// Apply upserts the object, resolving whatever context it needs to be
// meaningful locally: the community for a post, the parent chain for a
// comment.
func (c *CreateOrUpdate) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	var (
		community models.URL
		kind      notify.EventKind
	)

	switch {
	case c.Object.Post != nil:
		post := *c.Object.Post
		if _, err := deps.Resolver.Community(ctx, post.Audience, budget); err != nil {
			return err
		}
		if err := deps.Store.UpsertPost(ctx, &storage.Post{Post: post}); err != nil {
			return models.WrapErr(models.KindStorage, err, "storing post")
		}
		community = post.Audience.ID()
		kind = notify.PostCreated
		if c.Kind == "Update" {
			kind = notify.PostUpdated
		}

	case c.Object.Comment != nil:
		comment := *c.Object.Comment
		parent, err := deps.Resolver.PostOrComment(ctx, comment.InReplyTo, budget)
		if err != nil {
			return err
		}
		if err := deps.Store.UpsertComment(ctx, &storage.Comment{Comment: comment}); err != nil {
			return models.WrapErr(models.KindStorage, err, "storing comment")
		}
		community, _ = communityOf(ctx, deps, parent)
		kind = notify.CommentCreated
		if c.Kind == "Update" {
			kind = notify.CommentUpdated
		}

	case c.Object.Message != nil:
		// Private messages never pass through a community, so there is
		// nothing to announce.
		msg := *c.Object.Message
		if err := deps.Store.UpsertPrivateMessage(ctx, &storage.PrivateMessage{ChatMessage: msg}); err != nil {
			return models.WrapErr(models.KindStorage, err, "storing private message")
		}
		kind = notify.MessageCreated
		if c.Kind == "Update" {
			kind = notify.MessageUpdated
		}
		deps.notify(ctx, notify.Event{Kind: kind, Entity: msg.ID, Scope: msg.Recipient()})
		return nil

	default:
		return models.Errorf(models.KindMalformed, "%s %s has no object", c.Kind, c.ID.String())
	}

	deps.notify(ctx, notify.Event{Kind: kind, Entity: c.Object.ID(), Scope: community})
	maybeAnnounce(ctx, deps, community, c)
	return nil
}

func (c *CreateOrUpdate) community(ctx context.Context, deps *Deps, budget *resolver.Budget) (models.URL, error) {
	if c.Object.Post != nil {
		if c.Object.Post.Audience.IsZero() {
			return models.URL{}, models.Errorf(models.KindMalformed,
				"post %s names no community", c.Object.Post.ID.String())
		}
		return c.Object.Post.Audience.ID(), nil
	}

	parent, err := deps.Resolver.PostOrComment(ctx, c.Object.Comment.InReplyTo, budget)
	if err != nil {
		return models.URL{}, err
	}
	return communityOf(ctx, deps, parent)
}
