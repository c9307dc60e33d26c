package protocol

import (
	"context"
	"testing"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func testVote(kind, actor, target string) *Vote {
	return &Vote{
		Common: Common{
			ID:    models.MustURL(actor + "/" + kind + "/1"),
			Kind:  kind,
			Actor: models.NewObjectID[models.Actor](models.MustURL(actor)),
		},
		Object: models.NewObjectID[models.PostOrComment](models.MustURL(target)),
	}
}

func TestVoteReplacesPriorVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	like := testVote("Like", alice.String(), post.String())
	if err := like.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify like failed: %v", err)
	}
	if err := like.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply like failed: %v", err)
	}

	dislike := testVote("Dislike", alice.String(), post.String())
	if err := dislike.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply dislike failed: %v", err)
	}

	v, err := store.Vote(ctx, alice, post)
	if err != nil {
		t.Fatalf("could not fetch vote: %v", err)
	}
	if v.Score != -1 {
		t.Errorf("expected the dislike to replace the like, score=%d", v.Score)
	}
}

func TestVoteOnCommentResolvesCommunityThroughParentChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://example.com/post/1", alice.String(), golang.String())
	c1 := seedComment(t, store, "https://example.com/comment/1", alice.String(), post.String())
	c2 := seedComment(t, store, "https://example.com/comment/2", alice.String(), c1.String())

	if err := store.RecordBan(ctx, storage.Ban{Actor: alice, Community: golang}); err != nil {
		t.Fatalf("could not seed ban: %v", err)
	}
	deps, _ := testDeps(store, nil)

	// The ban applies even when the community is two hops up the chain.
	vote := testVote("Like", alice.String(), c2.String())
	err := vote.Verify(ctx, deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestUndoVoteRemovesRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", false)
	post := seedPost(t, store, "https://example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	like := testVote("Like", alice.String(), post.String())
	if err := like.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply like failed: %v", err)
	}

	undo := &Undo{
		Common: Common{
			ID:    models.MustURL("https://federated.example.com/u/alice/undo/1"),
			Kind:  "Undo",
			Actor: like.Actor,
		},
		Object: like,
	}
	if err := undo.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply undo failed: %v", err)
	}

	if _, err := store.Vote(ctx, alice, post); err == nil {
		t.Errorf("expected vote removed after undo")
	}
}
