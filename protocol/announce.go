package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/resolver"
)

// Announce is a community re-broadcasting an activity to its followers.
// Inbound, the announcing community vouches for the embedded activity;
// outbound, local communities wrap follower-bound traffic in one.
type Announce struct {
	Common
	Object Activity `json:"-"`
}

// UnmarshalJSON decodes the envelope and the embedded activity. Only the
// inline form is accepted; an announce carrying a bare id is rejected
// rather than chased.
func (a *Announce) UnmarshalJSON(data []byte) error {
	type announce struct {
		Common
		Object json.RawMessage `json:"object"`
	}
	var raw announce
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Object) == 0 {
		return models.Errorf(models.KindMalformed, "announce has no object")
	}

	inner, err := decodeNested(raw.Object,
		"Like", "Dislike", "Create", "Update", "Delete", "Undo")
	if err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}

	a.Common = raw.Common
	a.Common.Extra = extra
	a.Object = inner
	return nil
}

// MarshalJSON re-serializes envelope, embedded activity and extension
// fields.
func (a Announce) MarshalJSON() ([]byte, error) {
	type announce struct {
		Common
		Object Activity `json:"object"`
	}
	return models.MergeExtra(announce{Common: a.Common, Object: a.Object}, a.Extra)
}

// Verify requires the announcer to be a community and re-verifies the
// embedded activity under the same budget.
func (a *Announce) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&a.Common, deps); err != nil {
		return err
	}

	actor, err := deps.Resolver.Actor(ctx, a.Actor, budget)
	if err != nil {
		return err
	}
	if actor.Community == nil {
		return models.Errorf(models.KindAuthorization,
			"announce actor %s is not a community", a.Actor.String())
	}
	return a.Object.Verify(ctx, deps, budget)
}

// Apply processes the embedded activity.
func (a *Announce) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	return a.Object.Apply(ctx, deps, budget)
}
