package protocol

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
)

// Delete tombstones a post, comment or private message. A present
// summary marks a moderator removal; absent, the author is deleting
// their own content. The verifier enforces the matching permission for
// each form so the field can never escalate a plain self-delete.
type Delete struct {
	Common
	Object  models.ObjectID[models.PostOrComment] `json:"object"`
	Summary *string                               `json:"summary,omitempty"`
}

// deleteTarget is whatever content the delete resolved to.
type deleteTarget struct {
	content models.PostOrComment
	message *storage.PrivateMessage
}

func (t deleteTarget) id() models.URL {
	if t.message != nil {
		return t.message.ID
	}
	return t.content.ID()
}

// IsRemoval reports whether this is a moderator removal.
func (d *Delete) IsRemoval() bool {
	return d.Summary != nil
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (d *Delete) UnmarshalJSON(data []byte) error {
	type del Delete
	var raw del
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*d = Delete(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (d Delete) MarshalJSON() ([]byte, error) {
	type del Delete
	return models.MergeExtra(del(d), d.Extra)
}

// Verify checks that the target is known locally and that the actor holds
// the right permission: moderator of the community for a removal, author
// of the content for a self-delete.
func (d *Delete) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&d.Common, deps); err != nil {
		return err
	}
	if d.Object.IsZero() {
		return models.Errorf(models.KindMalformed, "delete %s has no object", d.ID.String())
	}

	target, err := d.lookupTarget(ctx, deps)
	if err != nil {
		return err
	}

	if target.message != nil {
		if d.IsRemoval() {
			return models.Errorf(models.KindAuthorization,
				"private message %s has no moderators to remove it", target.message.ID.String())
		}
		author := target.message.AttributedTo.ID()
		if !d.Actor.ID().Equal(author) {
			return models.Errorf(models.KindAuthorization,
				"actor %s cannot delete a message written by %s", d.Actor.String(), author.String())
		}
		return nil
	}

	if d.IsRemoval() {
		community, err := communityOf(ctx, deps, target.content)
		if err != nil {
			return err
		}
		mod, err := deps.Store.IsModerator(ctx, d.Actor.ID(), community)
		if err != nil {
			return models.WrapErr(models.KindStorage, err, "moderator lookup")
		}
		if !mod {
			return models.Errorf(models.KindAuthorization,
				"actor %s is not a moderator of %s", d.Actor.String(), community.String())
		}
		return nil
	}

	var author models.URL
	if target.content.Post != nil {
		author = target.content.Post.AttributedTo.ID()
	} else {
		author = target.content.Comment.AttributedTo.ID()
	}
	if !d.Actor.ID().Equal(author) {
		return models.Errorf(models.KindAuthorization,
			"actor %s cannot delete content attributed to %s", d.Actor.String(), author.String())
	}
	return nil
}

// Apply sets the deletion flag, with the moderation sub-flag for
// removals. Setting flags that are already set changes nothing.
func (d *Delete) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	target, err := d.lookupTarget(ctx, deps)
	if err != nil {
		return err
	}

	if target.message != nil {
		if err := deps.Store.SetMessageDeleted(ctx, target.message.ID, true); err != nil {
			return models.WrapErr(models.KindStorage, err, "flagging message deletion")
		}
		deps.notify(ctx, notify.Event{
			Kind:   notify.MessageDeleted,
			Entity: target.message.ID,
			Scope:  target.message.Recipient(),
		})
		return nil
	}

	if err := deps.Store.SetDeleted(ctx, target.id(), true, d.IsRemoval()); err != nil {
		return models.WrapErr(models.KindStorage, err, "flagging deletion")
	}

	kind := notify.PostDeleted
	if target.content.Comment != nil {
		kind = notify.CommentDeleted
	}
	community, _ := communityOf(ctx, deps, target.content)
	deps.notify(ctx, notify.Event{Kind: kind, Entity: target.id(), Scope: community})
	maybeAnnounce(ctx, deps, community, d)
	return nil
}

// lookupTarget finds the target in storage only. Deleting something this
// instance never saw is meaningless, and the tombstoned document cannot
// be fetched anyway; an unknown target is reported as transient so an
// out-of-order sender can retry after the create arrives.
func (d *Delete) lookupTarget(ctx context.Context, deps *Deps) (deleteTarget, error) {
	id := d.Object.ID()
	if post, err := deps.Store.Post(ctx, id); err == nil {
		return deleteTarget{content: models.PostOrComment{Post: &post.Post}}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return deleteTarget{}, models.WrapErr(models.KindStorage, err, "delete target lookup")
	}
	if comment, err := deps.Store.Comment(ctx, id); err == nil {
		return deleteTarget{content: models.PostOrComment{Comment: &comment.Comment}}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return deleteTarget{}, models.WrapErr(models.KindStorage, err, "delete target lookup")
	}
	if pm, err := deps.Store.PrivateMessage(ctx, id); err == nil {
		return deleteTarget{message: pm}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return deleteTarget{}, models.WrapErr(models.KindStorage, err, "delete target lookup")
	}
	return deleteTarget{}, models.Errorf(models.KindResolution,
		"delete target %s is unknown here", id.String())
}
