package resolver

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/copse-social/copse/keystore"
	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
	"github.com/piprate/json-gold/ld"
	"go.uber.org/zap"
)

const maxObjectSz = 1 << 20 // 1 MB

// Resolver maps object ids to typed entities: local storage first, then a
// signed fetch against the id's own authority, caching the result back
// through storage so repeated references are cheap.
type Resolver struct {
	client     *http.Client
	keys       *keystore.Store
	keyID      string
	domain     string
	store      storage.Store
	proc       *ld.JsonLdProcessor
	opts       *ld.JsonLdOptions
	compactCtx map[string]interface{}
	log        *zap.Logger
}

// preloadedLoader serves the contexts we ship from memory and defers the
// rest to a caching HTTP loader.
type preloadedLoader struct {
	docs map[string]*ld.RemoteDocument
	next ld.DocumentLoader
}

func (l *preloadedLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.docs[u]; ok {
		return doc, nil
	}
	return l.next.LoadDocument(u)
}

// New creates a Resolver that signs its fetches with keyID. Objects under
// domain are never fetched over HTTP; they must already exist in storage.
func New(client *http.Client, keys *keystore.Store, keyID, domain string, store storage.Store, log *zap.Logger) *Resolver {
	loader := &preloadedLoader{
		docs: map[string]*ld.RemoteDocument{
			activityStreamsContextURL: {
				DocumentURL: activityStreamsContextURL,
				Document:    map[string]interface{}{"@context": activityStreamsTerms()},
			},
			securityContextURL: {
				DocumentURL: securityContextURL,
				Document:    map[string]interface{}{"@context": securityTerms()},
			},
		},
		next: ld.NewRFC7324CachingDocumentLoader(client),
	}

	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = loader

	return &Resolver{
		client:     client,
		keys:       keys,
		keyID:      keyID,
		domain:     domain,
		store:      store,
		proc:       ld.NewJsonLdProcessor(),
		opts:       opts,
		compactCtx: compactionContext(),
		log:        log,
	}
}

// Person resolves a person reference.
func (r *Resolver) Person(ctx context.Context, ref models.ObjectID[models.Person], budget *Budget) (*models.Person, error) {
	cached, err := r.store.Person(ctx, ref.ID())
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, models.WrapErr(models.KindStorage, err, "person lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return nil, err
	}
	var p models.Person
	if err := decodeInto(doc, &p); err != nil {
		return nil, err
	}
	if err := checkFetchedID(p.ID, ref.ID()); err != nil {
		return nil, err
	}
	if err := r.store.UpsertPerson(ctx, &p); err != nil {
		return nil, models.WrapErr(models.KindStorage, err, "caching person")
	}
	return &p, nil
}

// Community resolves a community reference.
func (r *Resolver) Community(ctx context.Context, ref models.ObjectID[models.Community], budget *Budget) (*storage.Community, error) {
	cached, err := r.store.Community(ctx, ref.ID())
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, models.WrapErr(models.KindStorage, err, "community lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return nil, err
	}
	var c models.Community
	if err := decodeInto(doc, &c); err != nil {
		return nil, err
	}
	if err := checkFetchedID(c.ID, ref.ID()); err != nil {
		return nil, err
	}
	rec := &storage.Community{Community: c}
	if err := r.store.UpsertCommunity(ctx, rec); err != nil {
		return nil, models.WrapErr(models.KindStorage, err, "caching community")
	}
	return rec, nil
}

// Actor resolves a reference that may be a person or a community.
func (r *Resolver) Actor(ctx context.Context, ref models.ObjectID[models.Actor], budget *Budget) (models.Actor, error) {
	if p, err := r.store.Person(ctx, ref.ID()); err == nil {
		return models.Actor{Person: p}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.Actor{}, models.WrapErr(models.KindStorage, err, "actor lookup")
	}
	if c, err := r.store.Community(ctx, ref.ID()); err == nil {
		return models.Actor{Community: &c.Community}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.Actor{}, models.WrapErr(models.KindStorage, err, "actor lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return models.Actor{}, err
	}
	var a models.Actor
	if err := decodeInto(doc, &a); err != nil {
		return models.Actor{}, err
	}
	if err := checkFetchedID(a.ID(), ref.ID()); err != nil {
		return models.Actor{}, err
	}

	switch {
	case a.Person != nil:
		err = r.store.UpsertPerson(ctx, a.Person)
	case a.Community != nil:
		err = r.store.UpsertCommunity(ctx, &storage.Community{Community: *a.Community})
	}
	if err != nil {
		return models.Actor{}, models.WrapErr(models.KindStorage, err, "caching actor")
	}
	return a, nil
}

// Post resolves a post reference. A post is only meaningful locally once
// its community resolves too, so that reference is chased on the same
// budget.
func (r *Resolver) Post(ctx context.Context, ref models.ObjectID[models.Post], budget *Budget) (*storage.Post, error) {
	cached, err := r.store.Post(ctx, ref.ID())
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, models.WrapErr(models.KindStorage, err, "post lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return nil, err
	}
	return r.postFromDoc(ctx, doc, ref.ID(), budget)
}

// Comment resolves a comment reference, chasing the reply chain up to the
// post on the same budget.
func (r *Resolver) Comment(ctx context.Context, ref models.ObjectID[models.Comment], budget *Budget) (*storage.Comment, error) {
	cached, err := r.store.Comment(ctx, ref.ID())
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, models.WrapErr(models.KindStorage, err, "comment lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return nil, err
	}
	return r.commentFromDoc(ctx, doc, ref.ID(), budget)
}

// PostOrComment resolves a reference whose concrete type is unknown until
// the document arrives.
func (r *Resolver) PostOrComment(ctx context.Context, ref models.ObjectID[models.PostOrComment], budget *Budget) (models.PostOrComment, error) {
	if p, err := r.store.Post(ctx, ref.ID()); err == nil {
		return models.PostOrComment{Post: &p.Post}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.PostOrComment{}, models.WrapErr(models.KindStorage, err, "object lookup")
	}
	if c, err := r.store.Comment(ctx, ref.ID()); err == nil {
		return models.PostOrComment{Comment: &c.Comment}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.PostOrComment{}, models.WrapErr(models.KindStorage, err, "object lookup")
	}

	doc, err := r.fetchDoc(ctx, ref.ID(), budget)
	if err != nil {
		return models.PostOrComment{}, err
	}
	switch kind, _ := doc["type"].(string); kind {
	case "Page", "Article":
		p, err := r.postFromDoc(ctx, doc, ref.ID(), budget)
		if err != nil {
			return models.PostOrComment{}, err
		}
		return models.PostOrComment{Post: &p.Post}, nil
	case "Note":
		c, err := r.commentFromDoc(ctx, doc, ref.ID(), budget)
		if err != nil {
			return models.PostOrComment{}, err
		}
		return models.PostOrComment{Comment: &c.Comment}, nil
	default:
		return models.PostOrComment{}, models.Errorf(models.KindResolution,
			"object %s has unexpected type %v", ref, doc["type"])
	}
}

// PublicKey fetches the key named by keyID and returns it together with
// the id of the actor that owns it.
func (r *Resolver) PublicKey(ctx context.Context, keyID models.URL) (*rsa.PublicKey, models.URL, error) {
	owner := keyID
	owner.Fragment = ""
	owner.RawQuery = ""

	actor, err := r.Actor(ctx, models.NewObjectID[models.Actor](owner), NewBudget(2))
	if err != nil {
		return nil, models.URL{}, err
	}

	pk := actor.PublicKey()
	if pk.PublicKeyPem == "" {
		return nil, models.URL{}, models.Errorf(models.KindAuthentication,
			"actor %s publishes no key", actor.ID())
	}
	key, err := keystore.ParsePublicKeyPem(pk.PublicKeyPem)
	if err != nil {
		return nil, models.URL{}, models.WrapErr(models.KindAuthentication, err, "parsing actor key")
	}
	return key, actor.ID(), nil
}

func (r *Resolver) postFromDoc(ctx context.Context, doc map[string]interface{}, want models.URL, budget *Budget) (*storage.Post, error) {
	var p models.Post
	if err := decodeInto(doc, &p); err != nil {
		return nil, err
	}
	if err := checkFetchedID(p.ID, want); err != nil {
		return nil, err
	}
	if p.Audience.IsZero() {
		return nil, models.Errorf(models.KindResolution, "post %s names no community", p.ID)
	}
	if _, err := r.Community(ctx, p.Audience, budget); err != nil {
		return nil, err
	}

	rec := &storage.Post{Post: p}
	if err := r.store.UpsertPost(ctx, rec); err != nil {
		return nil, models.WrapErr(models.KindStorage, err, "caching post")
	}
	return rec, nil
}

func (r *Resolver) commentFromDoc(ctx context.Context, doc map[string]interface{}, want models.URL, budget *Budget) (*storage.Comment, error) {
	var c models.Comment
	if err := decodeInto(doc, &c); err != nil {
		return nil, err
	}
	if err := checkFetchedID(c.ID, want); err != nil {
		return nil, err
	}
	if c.InReplyTo.IsZero() {
		return nil, models.Errorf(models.KindResolution, "comment %s replies to nothing", c.ID)
	}
	if _, err := r.PostOrComment(ctx, c.InReplyTo, budget); err != nil {
		return nil, err
	}

	rec := &storage.Comment{Comment: c}
	if err := r.store.UpsertComment(ctx, rec); err != nil {
		return nil, models.WrapErr(models.KindStorage, err, "caching comment")
	}
	return rec, nil
}

// fetchDoc performs one signed fetch hop and compacts the response into
// the vocabulary the typed decoders expect.
func (r *Resolver) fetchDoc(ctx context.Context, id models.URL, budget *Budget) (map[string]interface{}, error) {
	if id.Host == r.domain {
		return nil, models.Errorf(models.KindMalformed, "local object %s not found", id.String())
	}
	if err := budget.Spend(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id.String(), nil)
	if err != nil {
		return nil, models.WrapErr(models.KindMalformed, err, "building fetch request")
	}
	req.Header.Set("Accept", "application/activity+json")
	if err := keystore.SignRequest(r.keys.PrivKey(), r.keyID, req, nil); err != nil {
		return nil, models.WrapErr(models.KindResolution, err, "signing fetch request")
	}

	r.log.Debug("resolving remote object",
		zap.String("id", id.String()),
		zap.Int("budget_left", budget.Remaining()))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, models.WrapErr(models.KindResolution, err, "fetching "+id.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.Errorf(models.KindResolution,
			"fetch of %s returned status %d", id.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSz))
	if err != nil {
		return nil, models.WrapErr(models.KindResolution, err, "reading fetch response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, models.WrapErr(models.KindResolution, err, "fetched document is not json")
	}

	compacted, err := r.proc.Compact(raw, r.compactCtx, r.opts)
	if err != nil {
		return nil, models.WrapErr(models.KindResolution, err, "compacting fetched document")
	}
	return compacted, nil
}

func decodeInto(doc map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return models.WrapErr(models.KindResolution, err, "re-encoding fetched document")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return models.WrapErr(models.KindResolution, err, "decoding fetched document")
	}
	return nil
}

// checkFetchedID rejects documents claiming an id on a different
// authority than the URL they were fetched from.
func checkFetchedID(got, want models.URL) error {
	if got.IsZero() || !got.SameAuthority(want) {
		return models.Errorf(models.KindResolution,
			"fetched document id %q does not match authority of %q", got.String(), want.String())
	}
	return nil
}
