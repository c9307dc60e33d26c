package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
)

// Accept confirms a Follow. Inbound, it means a remote actor accepted a
// follow we sent on behalf of a local user.
type Accept struct {
	Common
	Object Follow `json:"object"`
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (a *Accept) UnmarshalJSON(data []byte) error {
	type accept Accept
	var raw accept
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*a = Accept(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (a Accept) MarshalJSON() ([]byte, error) {
	type accept Accept
	return models.MergeExtra(accept(a), a.Extra)
}

// Verify requires the accepting actor to be exactly the actor the
// embedded follow was addressed to; nobody can accept on behalf of
// somebody else.
func (a *Accept) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&a.Common, deps); err != nil {
		return err
	}
	if a.Object.Object.IsZero() || a.Object.Actor.IsZero() {
		return models.Errorf(models.KindMalformed, "accept %s embeds an incomplete follow", a.ID.String())
	}
	if !a.Actor.ID().Equal(a.Object.Object.ID()) {
		return models.Errorf(models.KindAuthorization,
			"accept actor %s is not the follow target %s", a.Actor.String(), a.Object.Object.String())
	}
	return nil
}

// Apply marks the pending subscription accepted.
func (a *Accept) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	follower := a.Object.Actor.ID()
	target := a.Actor.ID()

	if err := deps.Store.AcceptFollow(ctx, follower, target); err != nil {
		return models.WrapErr(models.KindStorage, err, "accepting follow")
	}
	deps.notify(ctx, notify.Event{
		Kind:   notify.FollowChanged,
		Entity: follower,
		Scope:  target,
	})
	return nil
}
