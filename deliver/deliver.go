package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/copse-social/copse/keystore"
	"github.com/copse-social/copse/models"
	"github.com/copse-social/copse/protocol"
	"github.com/copse-social/copse/resolver"
	"github.com/copse-social/copse/storage"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Task is one delivery of one signed payload to one inbox.
type Task struct {
	ID       string
	Inbox    models.URL
	Body     []byte
	Attempts int
}

// Deliverer signs locally originated activities and fans them out to
// remote inboxes. Destinations are independent: one slow or dead inbox
// never delays the others.
type Deliverer struct {
	client      *http.Client
	keys        *keystore.Store
	res         *resolver.Resolver
	store       storage.Store
	log         *zap.Logger
	domain      string
	maxAttempts int
	backoff     time.Duration

	sem chan struct{}
	wg  sync.WaitGroup

	deadLock sync.Mutex
	dead     []Task
}

// New builds a Deliverer. maxInflight caps concurrent outbound requests;
// backoff is the first retry delay and doubles per attempt.
func New(
	client *http.Client,
	keys *keystore.Store,
	res *resolver.Resolver,
	store storage.Store,
	domain string,
	maxAttempts int,
	backoff time.Duration,
	maxInflight int,
	log *zap.Logger,
) *Deliverer {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &Deliverer{
		client:      client,
		keys:        keys,
		res:         res,
		store:       store,
		log:         log,
		domain:      domain,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sem:         make(chan struct{}, maxInflight),
	}
}

// Deliver computes the recipient inbox set for out, dedupes it, and
// starts one bounded-concurrency delivery per destination. It returns
// once the deliveries are queued; outcomes are handled per destination.
func (d *Deliverer) Deliver(ctx context.Context, out protocol.Outgoing) error {
	act := out.Activity
	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("encoding outbound activity: %w", err)
	}

	inboxes, err := d.inboxSet(ctx, out)
	if err != nil {
		return err
	}

	keyID := act.Envelope().Actor.String() + "#main-key"

	// Deliveries outlive the inbound request that triggered them.
	bg := context.WithoutCancel(ctx)
	for _, inbox := range inboxes {
		task := Task{
			ID:    newTaskID(),
			Inbox: inbox,
			Body:  body,
		}
		d.wg.Add(1)
		go d.run(bg, task, keyID)
	}
	return nil
}

// Wait blocks until all queued deliveries finished. For shutdown and
// tests.
func (d *Deliverer) Wait() {
	d.wg.Wait()
}

// DeadLetters lists deliveries that exhausted their retries.
func (d *Deliverer) DeadLetters() []Task {
	d.deadLock.Lock()
	defer d.deadLock.Unlock()

	out := make([]Task, len(d.dead))
	copy(out, d.dead)
	return out
}

// inboxSet expands explicit recipients and follower collections into a
// deduplicated list of remote inboxes. Several followers behind one
// shared inbox collapse into a single delivery.
func (d *Deliverer) inboxSet(ctx context.Context, out protocol.Outgoing) ([]models.URL, error) {
	seen := make(map[string]bool)
	var inboxes []models.URL

	add := func(inbox models.URL) {
		if inbox.IsZero() || inbox.Host == d.domain || seen[inbox.String()] {
			return
		}
		seen[inbox.String()] = true
		inboxes = append(inboxes, inbox)
	}

	common := out.Activity.Envelope()
	recipients := append(models.OneOrMany{}, common.To...)
	recipients = append(recipients, common.Cc...)
	for _, rcpt := range recipients {
		if rcpt.Equal(protocol.PublicAudience) || rcpt.Host == d.domain {
			continue
		}
		actor, err := d.res.Actor(ctx, models.NewObjectID[models.Actor](rcpt), resolver.NewBudget(1))
		if err != nil {
			d.log.Warn("skipping unresolvable recipient",
				zap.String("recipient", rcpt.String()), zap.Error(err))
			continue
		}
		inbox := actor.Inbox()
		if actor.Person != nil {
			inbox = actor.Person.SharedInboxOrInbox()
		} else if actor.Community != nil {
			inbox = actor.Community.SharedInboxOrInbox()
		}
		add(inbox)
	}

	if !out.FollowersOf.IsZero() {
		followerInboxes, err := d.store.FollowerInboxes(ctx, out.FollowersOf)
		if err != nil {
			return nil, fmt.Errorf("listing follower inboxes: %w", err)
		}
		for _, inbox := range followerInboxes {
			add(inbox)
		}
	}
	return inboxes, nil
}

// run drives one delivery to completion: bounded attempts with doubling
// backoff for transient failures, broken-subscription marking for
// permanently gone inboxes, dead-lettering on exhaustion.
func (d *Deliverer) run(ctx context.Context, task Task, keyID string) {
	defer d.wg.Done()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	backoff := d.backoff
	for task.Attempts = 1; task.Attempts <= d.maxAttempts; task.Attempts++ {
		status, err := d.post(ctx, task, keyID)

		switch {
		case err == nil && status >= 200 && status < 300:
			d.log.Debug("delivered",
				zap.String("inbox", task.Inbox.String()),
				zap.Int("attempt", task.Attempts))
			return

		case err == nil && (status == http.StatusGone || status == http.StatusNotFound):
			// The inbox no longer exists. Stop retrying and stop
			// delivering to it in the future.
			d.log.Info("inbox gone, marking subscriptions broken",
				zap.String("inbox", task.Inbox.String()),
				zap.Int("status", status))
			if err := d.store.MarkFollowBroken(ctx, task.Inbox); err != nil {
				d.log.Error("could not mark subscription broken", zap.Error(err))
			}
			return

		case err == nil && status >= 400 && status < 500 &&
			status != http.StatusRequestTimeout && status != http.StatusTooManyRequests:
			// Permanent reject; the peer told us not to retry.
			d.log.Warn("delivery rejected",
				zap.String("inbox", task.Inbox.String()),
				zap.Int("status", status))
			return
		}

		if task.Attempts < d.maxAttempts {
			d.log.Debug("transient delivery failure, backing off",
				zap.String("inbox", task.Inbox.String()),
				zap.Int("status", status),
				zap.Error(err),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}

	d.deadLock.Lock()
	d.dead = append(d.dead, task)
	d.deadLock.Unlock()
	d.log.Error("delivery exhausted retries, dead-lettered",
		zap.String("inbox", task.Inbox.String()),
		zap.Int("attempts", d.maxAttempts))
}

func (d *Deliverer) post(ctx context.Context, task Task, keyID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.Inbox.String(), bytes.NewReader(task.Body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/activity+json")

	if err := keystore.SignRequest(d.keys.PrivKey(), keyID, req, task.Body); err != nil {
		return 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func newTaskID() string {
	id, err := uuid.NewV4()
	if err != nil {
		panic(err)
	}
	return id.String()
}
