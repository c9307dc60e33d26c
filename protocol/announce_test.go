package protocol

import (
	"context"
	"testing"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func TestAnnounceVerifyRequiresCommunityActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	inner := testVote("Like", alice.String(), post.String())
	ann := &Announce{
		Common: Common{
			ID:    models.MustURL(alice.String() + "/announce/1"),
			Kind:  "Announce",
			Actor: models.NewObjectID[models.Actor](alice),
		},
		Object: inner,
	}

	err := ann.Verify(ctx, deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestAnnounceAppliesEmbeddedActivity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	remote := seedCommunity(t, store, "https://federated.example.com/c/remote", false)
	post := seedPost(t, store, "https://federated.example.com/post/1", alice.String(), remote.String())
	deps, _ := testDeps(store, nil)

	inner := testVote("Like", alice.String(), post.String())
	ann := &Announce{
		Common: Common{
			ID:    models.MustURL(remote.String() + "/announce/1"),
			Kind:  "Announce",
			Actor: models.NewObjectID[models.Actor](remote),
		},
		Object: inner,
	}

	if err := ann.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := ann.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	v, err := store.Vote(ctx, alice, post)
	if err != nil {
		t.Fatalf("expected the embedded vote applied: %v", err)
	}
	if v.Score != 1 {
		t.Errorf("expected score 1 got %d", v.Score)
	}
}
