package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"
	"github.com/copse-social/copse/keystore"
	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/storage"
)

// Actor serves the instance service actor document. Remote instances
// fetch this to learn our inbox and the public key that signs every
// request leaving this instance.
type Actor struct {
	Scheme, Domain string
	Store          *keystore.Store
}

// NewActor creates a new Actor
func NewActor(scheme, domain string, store *keystore.Store) Actor {
	return Actor{
		Scheme: scheme,
		Domain: domain,
		Store:  store,
	}
}

func (a Actor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID := a.routeURL("/actor").String()
	actorData := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"type":              "Application",
		"id":                actorID,
		"preferredUsername": a.Domain,
		"inbox":             a.routeURL("/inbox").String(),
		"outbox":            a.routeURL("/outbox").String(),
		"publicKey": map[string]interface{}{
			"id":           actorID + "#main-key",
			"owner":        actorID,
			"publicKeyPem": string(a.Store.PubKeyPem()),
		},
	}

	b, err := json.Marshal(actorData)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/activity+json")
	w.Write(b)
}

func (a Actor) routeURL(path string) *url.URL {
	return &url.URL{
		Scheme: a.Scheme,
		Host:   a.Domain,
		Path:   path,
	}
}

// CommunityActor serves actor documents for communities hosted on this
// instance out of storage.
type CommunityActor struct {
	Scheme, Domain string
	Keys           *keystore.Store
	Objects        storage.Objects
}

// NewCommunityActor creates a new CommunityActor
func NewCommunityActor(scheme, domain string, keys *keystore.Store, objects storage.Objects) CommunityActor {
	return CommunityActor{
		Scheme:  scheme,
		Domain:  domain,
		Keys:    keys,
		Objects: objects,
	}
}

func (c CommunityActor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := models.URL{URL: url.URL{
		Scheme: c.Scheme,
		Host:   c.Domain,
		Path:   "/c/" + name,
	}}

	comm, err := c.Objects.Community(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !comm.Local {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	doc := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"type":              "Group",
		"id":                id.String(),
		"preferredUsername": comm.PreferredUsername,
		"name":              comm.Name,
		"inbox":             comm.Inbox.String(),
		"publicKey": map[string]interface{}{
			"id":           id.String() + "#main-key",
			"owner":        id.String(),
			"publicKeyPem": string(c.Keys.PubKeyPem()),
		},
	}
	if comm.Followers != nil {
		doc["followers"] = comm.Followers.String()
	}

	b, err := json.Marshal(doc)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/activity+json")
	w.Write(b)
}
