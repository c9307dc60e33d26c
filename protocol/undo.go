package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
)

// Undo reverses an embedded activity: Follow, Like, Dislike, Delete or
// Block. The embedded object arrives inline.
type Undo struct {
	Common
	Object Activity `json:"-"`
}

// UnmarshalJSON decodes the envelope and the embedded activity.
func (u *Undo) UnmarshalJSON(data []byte) error {
	type undo struct {
		Common
		Object json.RawMessage `json:"object"`
	}
	var raw undo
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Object) == 0 {
		return models.Errorf(models.KindMalformed, "undo has no object")
	}

	inner, err := decodeNested(raw.Object, "Follow", "Like", "Dislike", "Delete", "Block")
	if err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}

	u.Common = raw.Common
	u.Common.Extra = extra
	u.Object = inner
	return nil
}

// MarshalJSON re-serializes envelope, embedded activity and extension
// fields.
func (u Undo) MarshalJSON() ([]byte, error) {
	type undo struct {
		Common
		Object Activity `json:"object"`
	}
	return models.MergeExtra(undo{Common: u.Common, Object: u.Object}, u.Extra)
}

// Verify checks the envelope, re-verifies the embedded activity, and
// enforces that the undoing actor is the actor of the embedded activity.
// Nobody undoes somebody else's action.
func (u *Undo) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&u.Common, deps); err != nil {
		return err
	}
	if !u.Actor.ID().Equal(u.Object.Envelope().Actor.ID()) {
		return models.Errorf(models.KindAuthorization,
			"undo actor %s does not match embedded actor %s",
			u.Actor.String(), u.Object.Envelope().Actor.String())
	}
	return u.Object.Verify(ctx, deps, budget)
}

// Apply runs the inverse transition of the embedded activity.
func (u *Undo) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	switch inner := u.Object.(type) {
	case *Follow:
		if err := deps.Store.DeleteFollow(ctx, inner.Actor.ID(), inner.Object.ID()); err != nil {
			return models.WrapErr(models.KindStorage, err, "removing follow")
		}
		deps.notify(ctx, notify.Event{
			Kind:   notify.FollowChanged,
			Entity: inner.Actor.ID(),
			Scope:  inner.Object.ID(),
		})
		return nil

	case *Vote:
		target, err := deps.Resolver.PostOrComment(ctx, inner.Object, budget)
		if err != nil {
			return err
		}
		if err := deps.Store.DeleteVote(ctx, inner.Actor.ID(), target.ID()); err != nil {
			return models.WrapErr(models.KindStorage, err, "removing vote")
		}
		community, _ := communityOf(ctx, deps, target)
		deps.notify(ctx, notify.Event{Kind: notify.VoteChanged, Entity: target.ID(), Scope: community})
		maybeAnnounce(ctx, deps, community, u)
		return nil

	case *Delete:
		target, err := inner.lookupTarget(ctx, deps)
		if err != nil {
			return err
		}
		if target.message != nil {
			if err := deps.Store.SetMessageDeleted(ctx, target.message.ID, false); err != nil {
				return models.WrapErr(models.KindStorage, err, "clearing message deletion")
			}
			deps.notify(ctx, notify.Event{
				Kind:   notify.MessageRestored,
				Entity: target.message.ID,
				Scope:  target.message.Recipient(),
			})
			return nil
		}
		// Restoring clears both flags whichever was set.
		if err := deps.Store.SetDeleted(ctx, target.id(), false, false); err != nil {
			return models.WrapErr(models.KindStorage, err, "clearing deletion")
		}
		kind := notify.PostRestored
		if target.content.Comment != nil {
			kind = notify.CommentRestored
		}
		community, _ := communityOf(ctx, deps, target.content)
		deps.notify(ctx, notify.Event{Kind: kind, Entity: target.id(), Scope: community})
		maybeAnnounce(ctx, deps, community, u)
		return nil

	case *Block:
		if err := deps.Store.DeleteBan(ctx, inner.Object.ID(), inner.Audience.ID()); err != nil {
			return models.WrapErr(models.KindStorage, err, "lifting ban")
		}
		deps.notify(ctx, notify.Event{
			Kind:   notify.BanChanged,
			Entity: inner.Object.ID(),
			Scope:  inner.Audience.ID(),
		})
		return nil

	default:
		return models.Errorf(models.KindMalformed,
			"undo cannot reverse a %s", u.Object.Envelope().Kind)
	}
}
