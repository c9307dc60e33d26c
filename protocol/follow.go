package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
	"go.uber.org/zap"
)

// Follow subscribes the actor to the object, a local person or community.
type Follow struct {
	Common
	Object models.ObjectID[models.Actor] `json:"object"`
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (f *Follow) UnmarshalJSON(data []byte) error {
	type follow Follow
	var raw follow
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*f = Follow(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (f Follow) MarshalJSON() ([]byte, error) {
	type follow Follow
	return models.MergeExtra(follow(f), f.Extra)
}

// Verify checks the envelope and that the follow targets a local actor
// the sender is allowed to subscribe to.
func (f *Follow) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&f.Common, deps); err != nil {
		return err
	}
	if f.Object.IsZero() {
		return models.Errorf(models.KindMalformed, "follow %s has no object", f.ID.String())
	}
	if !deps.IsLocal(f.Object.ID()) {
		return models.Errorf(models.KindAuthorization,
			"follow target %s is not served here", f.Object.String())
	}
	return verifyActorAllowed(ctx, deps, f.Actor.ID(), f.Object.ID())
}

// Apply creates or refreshes the subscription edge and, for a local
// community target, answers with an Accept.
func (f *Follow) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	actor, err := deps.Resolver.Actor(ctx, f.Actor, budget)
	if err != nil {
		return err
	}

	inbox := actor.Inbox()
	if actor.Person != nil {
		inbox = actor.Person.SharedInboxOrInbox()
	}
	edge := storage.Follow{
		Follower: f.Actor.ID(),
		Target:   f.Object.ID(),
		Inbox:    inbox,
		Accepted: true,
	}
	if err := deps.Store.UpsertFollow(ctx, edge); err != nil {
		return models.WrapErr(models.KindStorage, err, "storing follow")
	}

	deps.notify(ctx, notify.Event{
		Kind:   notify.FollowChanged,
		Entity: f.Actor.ID(),
		Scope:  f.Object.ID(),
	})

	f.sendAccept(ctx, deps)
	return nil
}

// sendAccept answers the follow from the followed local actor. Failure to
// deliver is retried on the dispatch side, never surfaced to the sender.
func (f *Follow) sendAccept(ctx context.Context, deps *Deps) {
	if deps.Deliver == nil {
		return
	}

	accept := &Accept{
		Common: Common{
			ID:    deps.NewActivityID("accept"),
			Kind:  "Accept",
			Actor: models.NewObjectID[models.Actor](f.Object.ID()),
			To:    models.OneOrMany{f.Actor.ID()},
		},
		Object: *f,
	}
	if err := deps.Deliver(ctx, Outgoing{Activity: accept}); err != nil && deps.Log != nil {
		deps.Log.Warn("accept dispatch failed", zap.Error(err))
	}
}
