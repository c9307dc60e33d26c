package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
)

// Vote scores a post or comment. "Like" and "Dislike" share this shape;
// the kind carries the sign.
type Vote struct {
	Common
	Object models.ObjectID[models.PostOrComment] `json:"object"`
}

// Score maps the wire kind to the vote value.
func (v *Vote) Score() int {
	if v.Kind == "Dislike" {
		return -1
	}
	return 1
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (v *Vote) UnmarshalJSON(data []byte) error {
	type vote Vote
	var raw vote
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*v = Vote(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (v Vote) MarshalJSON() ([]byte, error) {
	type vote Vote
	return models.MergeExtra(vote(v), v.Extra)
}

// Verify resolves the target read-only and checks the actor is allowed to
// act in its community.
func (v *Vote) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&v.Common, deps); err != nil {
		return err
	}
	if v.Object.IsZero() {
		return models.Errorf(models.KindMalformed, "vote %s has no object", v.ID.String())
	}

	target, err := deps.Resolver.PostOrComment(ctx, v.Object, budget)
	if err != nil {
		return err
	}
	community, err := communityOf(ctx, deps, target)
	if err != nil {
		return err
	}
	return verifyActorAllowed(ctx, deps, v.Actor.ID(), community)
}

// Apply upserts the score record keyed by (voter, target), replacing any
// prior vote from the same voter.
func (v *Vote) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	target, err := deps.Resolver.PostOrComment(ctx, v.Object, budget)
	if err != nil {
		return err
	}

	rec := storage.Vote{
		Actor:  v.Actor.ID(),
		Target: target.ID(),
		Score:  v.Score(),
	}
	if err := deps.Store.UpsertVote(ctx, rec); err != nil {
		return models.WrapErr(models.KindStorage, err, "storing vote")
	}

	community, _ := communityOf(ctx, deps, target)
	deps.notify(ctx, notify.Event{
		Kind:   notify.VoteChanged,
		Entity: target.ID(),
		Scope:  community,
	})
	maybeAnnounce(ctx, deps, community, v)
	return nil
}
