package protocol

import (
	"context"
	"testing"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func testCreatePost(kind, actor, postID, community, name string) *CreateOrUpdate {
	return &CreateOrUpdate{
		Common: Common{
			ID:    models.MustURL(actor + "/" + kind + "/1"),
			Kind:  kind,
			Actor: models.NewObjectID[models.Actor](models.MustURL(actor)),
		},
		Object: InlineObject{
			Post: &models.Post{
				ID:           models.MustURL(postID),
				Kind:         "Page",
				AttributedTo: models.NewObjectID[models.Person](models.MustURL(actor)),
				Audience:     models.NewObjectID[models.Community](models.MustURL(community)),
				Name:         name,
			},
		},
	}
}

func TestCreatePostStoresIt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, _ := testDeps(store, nil)

	create := testCreatePost("Create", alice.String(), "https://federated.example.com/post/1", golang.String(), "hello")
	if err := create.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := create.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	got, err := store.Post(ctx, models.MustURL("https://federated.example.com/post/1"))
	if err != nil {
		t.Fatalf("could not fetch post: %v", err)
	}
	if got.Name != "hello" {
		t.Errorf("expected stored name hello got %s", got.Name)
	}
}

func TestUpdatePostReplacesDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, _ := testDeps(store, nil)

	create := testCreatePost("Create", alice.String(), "https://federated.example.com/post/1", golang.String(), "hello")
	if err := create.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply create failed: %v", err)
	}

	update := testCreatePost("Update", alice.String(), "https://federated.example.com/post/1", golang.String(), "hello, edited")
	if err := update.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply update failed: %v", err)
	}

	got, _ := store.Post(ctx, models.MustURL("https://federated.example.com/post/1"))
	if got.Name != "hello, edited" {
		t.Errorf("expected updated name got %s", got.Name)
	}
}

func TestCreateVerifyRejectsForeignAttribution(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	create := testCreatePost("Create", "https://federated.example.com/u/mallory", "https://federated.example.com/post/1", "https://example.com/c/golang", "x")
	create.Object.Post.AttributedTo = models.NewObjectID[models.Person](models.MustURL("https://federated.example.com/u/alice"))

	err := create.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestCreateVerifyRejectsCrossAuthorityObject(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	// The object claims to live on a different instance than the actor.
	create := testCreatePost("Create", "https://federated.example.com/u/alice", "https://other.example.org/post/1", "https://example.com/c/golang", "x")
	create.Object.Post.AttributedTo = models.NewObjectID[models.Person](models.MustURL("https://federated.example.com/u/alice"))

	err := create.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestCreateCommentChasesParent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	post := seedPost(t, store, "https://example.com/post/1", alice.String(), golang.String())
	deps, _ := testDeps(store, nil)

	create := &CreateOrUpdate{
		Common: Common{
			ID:    models.MustURL(alice.String() + "/create/2"),
			Kind:  "Create",
			Actor: models.NewObjectID[models.Actor](alice),
		},
		Object: InlineObject{
			Comment: &models.Comment{
				ID:           models.MustURL("https://federated.example.com/comment/1"),
				Kind:         "Note",
				AttributedTo: models.NewObjectID[models.Person](alice),
				InReplyTo:    models.NewObjectID[models.PostOrComment](post),
				Content:      "nice post",
			},
		},
	}

	if err := create.Verify(ctx, deps, budget()); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := create.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if _, err := store.Comment(ctx, models.MustURL("https://federated.example.com/comment/1")); err != nil {
		t.Errorf("expected comment stored: %v", err)
	}
}

func TestCreateInLocalCommunityAnnounces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()
	alice := seedPerson(t, store, "https://federated.example.com/u/alice")
	golang := seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, sink := testDeps(store, nil)

	create := testCreatePost("Create", alice.String(), "https://federated.example.com/post/1", golang.String(), "hello")
	if err := create.Apply(ctx, deps, budget()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	out := sink.all()
	if len(out) != 1 {
		t.Fatalf("expected one outbound announce got %d", len(out))
	}
	ann, ok := out[0].Activity.(*Announce)
	if !ok {
		t.Fatalf("expected an Announce got %T", out[0].Activity)
	}
	if !ann.Actor.ID().Equal(golang) {
		t.Errorf("announce must come from the community, got %s", ann.Actor.String())
	}
	if !out[0].FollowersOf.Equal(golang) {
		t.Errorf("announce must fan out to the community followers")
	}
	if !ann.To.Contains(PublicAudience) {
		t.Errorf("announce must address the public audience")
	}
	if !ann.Object.Envelope().ID.Equal(create.ID) {
		t.Errorf("announce must wrap the applied activity")
	}
}
