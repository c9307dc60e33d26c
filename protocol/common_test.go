package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

func TestVerifyRejectsActorOnOtherAuthority(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	f := testFollow("https://federated.example.com/u/alice", "https://example.com/c/golang")
	f.ID = models.MustURL("https://other.example.org/a/1")

	err := f.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestVerifyRejectsFuturePublished(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)

	f := testFollow("https://federated.example.com/u/alice", "https://example.com/c/golang")
	future := time.Now().Add(time.Hour)
	f.Published = &future

	err := f.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindMalformed)
}

func TestVerifyHonorsInstanceBlocklist(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	deps, _ := testDeps(store, nil)
	deps.BlockedInstances = []string{"federated.example.com"}

	f := testFollow("https://federated.example.com/u/alice", "https://example.com/c/golang")
	err := f.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}

func TestVerifyHonorsInstanceAllowlist(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	seedCommunity(t, store, "https://example.com/c/golang", true)
	deps, _ := testDeps(store, nil)
	deps.AllowedInstances = []string{"federated.example.com"}

	f := testFollow("https://federated.example.com/u/alice", "https://example.com/c/golang")
	if err := f.Verify(context.Background(), deps, budget()); err != nil {
		t.Errorf("listed instance must pass: %v", err)
	}

	g := testFollow("https://stranger.example.org/u/bob", "https://example.com/c/golang")
	err := g.Verify(context.Background(), deps, budget())
	wantKind(t, err, models.KindAuthorization)
}
