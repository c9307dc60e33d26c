package middleware

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/copse-social/copse/models"
	"github.com/go-fed/httpsig"
	"go.uber.org/zap"
)

const maxActivitySz = 16 * (1 << 20) // 16 MB

type contextKey int

const actorKey contextKey = iota

// InboxGuard filters out requests that cannot structurally be federation
// traffic, so the URL namespace can be shared with non-federation
// endpoints without capturing unrelated requests.
func InboxGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/") {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// VerifyDigest checks the Digest header against the actual body bytes,
// defending against tampering between signing and processing. It runs
// before any protocol decoding; a mismatch never reaches the pipeline.
func VerifyDigest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivitySz))
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		digest := r.Header.Get("Digest")
		if digest == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		algo, want, found := strings.Cut(digest, "=")
		if !found || !strings.EqualFold(algo, "SHA-256") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		sum := sha256.Sum256(body)
		got := base64.StdEncoding.EncodeToString(sum[:])
		if got != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyFetcher resolves a signature key id to the published key and the
// actor owning it.
type KeyFetcher interface {
	PublicKey(ctx context.Context, keyID models.URL) (*rsa.PublicKey, models.URL, error)
}

// VerifySignature authenticates the HTTP message signature against the
// claimed actor's published key and records the authenticated actor in
// the request context. This establishes authenticity only; protocol
// authorization happens later, against the decoded activity.
func VerifySignature(keys KeyFetcher, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verifier, err := httpsig.NewVerifier(r)
			if err != nil {
				log.Debug("unparseable signature header", zap.Error(err))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			keyID, err := models.ParseURL(verifier.KeyId())
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			pubKey, actor, err := keys.PublicKey(r.Context(), keyID)
			if err != nil {
				log.Debug("could not fetch signing key",
					zap.String("key_id", keyID.String()), zap.Error(err))
				w.WriteHeader(models.HTTPStatus(err))
				return
			}

			if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
				log.Debug("signature verification failed",
					zap.String("actor", actor.String()), zap.Error(err))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx := ContextWithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the actor authenticated by VerifySignature.
func ActorFromContext(ctx context.Context) (models.URL, bool) {
	actor, ok := ctx.Value(actorKey).(models.URL)
	return actor, ok
}

// ContextWithActor marks actor as the authenticated requester.
func ContextWithActor(ctx context.Context, actor models.URL) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}
