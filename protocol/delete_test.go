package protocol

import (
	"context"
	"testing"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func testDelete(actor, target string, summary *string) *Delete {
	return &Delete{
		Common: Common{
			ID:    models.MustURL(actor + "/delete/1"),
			Kind:  "Delete",
			Actor: models.NewObjectID[models.Actor](models.MustURL(actor)),
		},
		Object:  models.NewObjectID[models.PostOrComment](models.MustURL(target)),
		Summary: summary,
	}
}

func TestSelfDeleteByAuthor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://federated.example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	del := testDelete(alice.String(), post.String(), nil)
	if err := del.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	// Apply twice: at-least-once delivery.
	for i := 0; i < 2; i++ {
		if err := del.Apply(ctx, deps, budget()); err != nil {
			t.Fatalf("apply attempt %d failed: %v", i, err)
		}
	}

	got, err := store.Post(ctx, post)
	if err != nil {
		t.Fatalf("could not fetch post: %v", err)
	}
	if !got.Deleted {
		t.Errorf("expected post deleted")
	}
	if got.Removed {
		t.Errorf("a self-delete must not set the moderation flag")
	}
}

func TestSelfDeleteRejectsNonAuthor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://federated.example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	del := testDelete("https://federated.example.com/u/mallory", post.String(), nil)
	err := del.Verify(ctx, deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestRemovalRequiresModerator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://federated.example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	reason := "spam"

	// The author is not automatically a moderator; a summary-bearing
	// delete from them is an escalation attempt.
	del := testDelete(alice.String(), post.String(), &reason)
	err := del.Verify(ctx, deps, budget())
	wantKind(t, err, models.KindAuthorization)

	mod := seedPerson(t, store, "https://federated.example.com/u/mod")
	if err := store.AddModerator(ctx, mod, golang); err != nil {
		t.Fatalf("could not seed moderator: %v", err)
	}

	removal := testDelete(mod.String(), post.String(), &reason)
	if err := removal.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("moderator removal rejected: %v", err)
	}
	if err := removal.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply removal failed: %v", err)
	}

	got, _ := store.Post(ctx, post)
	if !got.Deleted || !got.Removed {
		t.Errorf("expected removal to set both flags, got %+v", got)
	}
}

func TestDeleteUnknownTargetIsTransient(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	del := testDelete("https://federated.example.com/u/alice", "https://federated.example.com/post/ghost", nil)
	err := del.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindResolution)
}

func TestUndoDeleteRestores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://federated.example.com/post/1", alice.String(), golang.String())

	mod := seedPerson(t, store, "https://federated.example.com/u/mod")
	if err := store.AddModerator(ctx, mod, golang); err != nil {
		t.Fatalf("could not seed moderator: %v", err)
	}
	deps, _ := testDeps(store, nil)

	reason := "spam"
	removal := testDelete(mod.String(), post.String(), &reason)
	if err := removal.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply removal failed: %v", err)
	}

	undo := &Undo{
		Common: Common{
			ID:    models.MustURL(mod.String() + "/undo/1"),
			Kind:  "Undo",
			Actor: removal.Actor,
		},
		Object: removal,
	}
	if err := undo.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify undo failed: %v", err)
	}
	if err := undo.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply undo failed: %v", err)
	}

	got, _ := store.Post(ctx, post)
	if got.Deleted || got.Removed {
		t.Errorf("expected restore to clear both flags, got %+v", got)
	}
}
