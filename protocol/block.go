package protocol

import (
	"context"
	"encoding/json"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/notify"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
)

// Block bans a person from the community named by the audience.
type Block struct {
	Common
	Object   models.ObjectID[models.Person]    `json:"object"`
	Audience models.ObjectID[models.Community] `json:"audience"`
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (b *Block) UnmarshalJSON(data []byte) error {
	type block Block
	var raw block
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := models.CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*b = Block(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (b Block) MarshalJSON() ([]byte, error) {
	type block Block
	return models.MergeExtra(block(b), b.Extra)
}

// Verify requires a moderator of the addressed community.
func (b *Block) Verify(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	if err := verifyCommon(&b.Common, deps); err != nil {
		return err
	}
	if b.Object.IsZero() || b.Audience.IsZero() {
		return models.Errorf(models.KindMalformed, "block %s needs an object and an audience", b.ID.String())
	}

	if _, err := deps.Resolver.Community(ctx, b.Audience, budget); err != nil {
		return err
	}
	mod, err := deps.Store.IsModerator(ctx, b.Actor.ID(), b.Audience.ID())
	if err != nil {
		return models.WrapErr(models.KindStorage, err, "moderator lookup")
	}
	if !mod {
		return models.Errorf(models.KindAuthorization,
			"actor %s is not a moderator of %s", b.Actor.String(), b.Audience.String())
	}
	return nil
}

// Apply records the ban; the banned actor's subscription drops with it
// inside the same storage transaction.
func (b *Block) Apply(ctx context.Context, deps *Deps, budget *resolver.Budget) error {
	ban := storage.Ban{Actor: b.Object.ID(), Community: b.Audience.ID()}
	if err := deps.Store.RecordBan(ctx, ban); err != nil {
		return models.WrapErr(models.KindStorage, err, "storing ban")
	}

	deps.notify(ctx, notify.Event{
		Kind:   notify.BanChanged,
		Entity: b.Object.ID(),
		Scope:  b.Audience.ID(),
	})
	return nil
}
