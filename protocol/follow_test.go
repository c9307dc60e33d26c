package protocol

import (
	"context"
	"testing"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func testFollow(actor, target string) *Follow {
	return &Follow{
		Common: Common{
			ID:    models.MustURL(actor + "/follow/1"),
			Kind:  "Follow",
			Actor: models.NewObjectID[models.Actor](models.MustURL(actor)),
		},
		Object: models.NewObjectID[models.Actor](models.MustURL(target)),
	}
}

func TestFollowApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, _ := testDeps(store, nil)

	f := testFollow(alice.String(), golang.String())
	if err := f.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.Apply(ctx, deps, budget()); err != nil {
			t.Fatalf("apply attempt %d failed: %v", i, err)
		}
	}

	following, err := store.Following(ctx, alice, golang)
	if err != nil || !following {
		t.Errorf("expected a single follow edge, following=%v err=%v", following, err)
	}
	edges, _ := store.FollowsBy(ctx, alice)
	if len(edges) != 1 {
		t.Errorf("expected exactly one edge got %d", len(edges))
	}
}

func TestFollowAnswersWithAccept(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, sink := testDeps(store, nil)

	f := testFollow(alice.String(), golang.String())
	if err := f.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	out := sink.all()
	if len(out) != 1 {
		t.Fatalf("expected one outbound activity got %d", len(out))
	}
	accept, ok := out[0].Activity.(*Accept)
	if !ok {
		t.Fatalf("expected an Accept got %T", out[0].Activity)
	}
	if !accept.Actor.ID().Equal(golang) {
		t.Errorf("accept must come from the followed actor, got %s", accept.Actor.String())
	}
	if !accept.To.Contains(alice) {
		t.Errorf("accept must address the follower, got %v", accept.To)
	}
	if !accept.Object.ID.Equal(f.ID) {
		t.Errorf("accept must embed the original follow")
	}
}

func TestFollowVerifyRejectsRemoteTarget(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	f := testFollow("https://federated.example.com/u/alice", "https://other.example.org/c/remote")
	err := f.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestFollowVerifyRejectsBannedActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	if err := store.RecordBan(ctx, storage.Ban{Actor: alice, Community: golang}); err != nil {
		t.Fatalf("could not seed ban: %v", err)
	}
	deps, _ := testDeps(store, nil)

	f := testFollow(alice.String(), golang.String())
	err := f.Verify(ctx, deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestFollowThenUndoLeavesNoEdge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, _ := testDeps(store, nil)

	f := testFollow(alice.String(), golang.String())
	if err := f.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply follow failed: %v", err)
	}

	undo := &Undo{
		Common: Common{
			ID:    models.MustURL("https://federated.example.com/u/alice/undo/1"),
			Kind:  "Undo",
			Actor: f.Actor,
		},
		Object: f,
	}
	if err := undo.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify undo failed: %v", err)
	}
	if err := undo.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply undo failed: %v", err)
	}

	following, _ := store.Following(ctx, alice, golang)
	if following {
		t.Errorf("expected no follow edge after undo")
	}

	// Undoing again changes nothing and does not fail.
	if err := undo.Apply(ctx, deps, budget()); err != nil {
		t.Errorf("repeated undo failed: %v", err)
	}
}

func TestUndoVerifyRejectsForeignActor(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	f := testFollow("https://federated.example.com/u/alice", "https://example.com/c/golang")
	undo := &Undo{
		Common: Common{
			ID:    models.MustURL("https://federated.example.com/u/mallory/undo/1"),
			Kind:  "Undo",
			Actor: models.NewObjectID[models.Actor](models.MustURL("https://federated.example.com/u/mallory")),
		},
		Object: f,
	}

	err := undo.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}
