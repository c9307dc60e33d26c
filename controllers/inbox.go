package controllers

import (
	"io"
	"log"
	"net/http"

	"github.com/copse-social/copse/middleware"
	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/protocol"
	"github.com/copse-social/copse/resolver"
	"go.uber.org/zap"
)

const maxActivitySz = 16 * (1 << 20) // 16 MB

// Inbox receives federation traffic. By the time a request lands here
// the transport gate has checked method, content type, digest and HTTP
// signature; this controller decodes the envelope, checks that the
// signing actor is the claimed actor, and drives verify then apply.
type Inbox struct {
	deps     *protocol.Deps
	maxDepth int
	log      *zap.Logger
}

// NewInbox creates the inbox controller. maxDepth is the fetch budget
// one inbound activity's resolution chain may spend.
func NewInbox(deps *protocol.Deps, maxDepth int, logger *zap.Logger) *Inbox {
	return &Inbox{
		deps:     deps,
		maxDepth: maxDepth,
		log:      logger,
	}
}

func errorResponse(w http.ResponseWriter, statusCode int, err error) {
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write([]byte(err.Error())); writeErr != nil {
		log.Printf("error writing response: %v\n", writeErr)
	}
}

func (i *Inbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivitySz))
	if err != nil {
		errorResponse(w, http.StatusRequestEntityTooLarge,
			models.Errorf(models.KindMalformed, "could not read request body"))
		return
	}

	act, err := protocol.Decode(body)
	if err != nil {
		i.log.Debug("rejected envelope", zap.Error(err))
		errorResponse(w, models.HTTPStatus(err), err)
		return
	}
	common := act.Envelope()

	// The transport gate authenticated a signer; the envelope must be
	// attributed to that same actor or anyone could speak for anyone.
	signer, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized,
			models.Errorf(models.KindAuthentication, "request is not signed"))
		return
	}
	if !signer.Equal(common.Actor.ID()) {
		mismatch := models.Errorf(models.KindAuthentication,
			"signature by %s but activity claims actor %s", signer.String(), common.Actor.String())
		i.log.Warn("actor attribution mismatch",
			zap.String("signer", signer.String()),
			zap.String("claimed", common.Actor.String()))
		errorResponse(w, models.HTTPStatus(mismatch), mismatch)
		return
	}

	budget := resolver.NewBudget(i.maxDepth)

	if err := act.Verify(r.Context(), i.deps, budget); err != nil {
		if models.KindOf(err) == models.KindAuthorization {
			// Recorded for audit.
			i.log.Warn("authorization rejected",
				zap.String("activity", common.ID.String()),
				zap.String("actor", common.Actor.String()),
				zap.Error(err))
		} else {
			i.log.Debug("verification failed",
				zap.String("activity", common.ID.String()),
				zap.Error(err))
		}
		errorResponse(w, models.HTTPStatus(err), err)
		return
	}

	if err := act.Apply(r.Context(), i.deps, budget); err != nil {
		i.log.Error("apply failed",
			zap.String("activity", common.ID.String()),
			zap.String("type", common.Kind),
			zap.Error(err))
		errorResponse(w, models.HTTPStatus(err), err)
		return
	}

	i.log.Info("activity applied",
		zap.String("activity", common.ID.String()),
		zap.String("type", common.Kind),
		zap.String("actor", common.Actor.String()))
	w.WriteHeader(http.StatusAccepted)
}
