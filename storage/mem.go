package storage

import (
	"context"
	"sync"

	"github.com/copse-social/copse/models"
)

type followKey struct {
	follower string
	target   string
}

type voteKey struct {
	actor  string
	target string
}

type banKey struct {
	actor     string
	community string
}

// MemStore is an in-memory Store for tests and single-node use.
type MemStore struct {
	persons     map[string]models.Person
	communities map[string]Community
	posts       map[string]Post
	comments    map[string]Comment
	messages    map[string]PrivateMessage
	follows     map[followKey]Follow
	votes       map[voteKey]Vote
	bans        map[banKey]Ban
	moderators  map[banKey]bool

	sync.RWMutex
}

// NewMemStore instantiates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		persons:     make(map[string]models.Person),
		communities: make(map[string]Community),
		posts:       make(map[string]Post),
		comments:    make(map[string]Comment),
		messages:    make(map[string]PrivateMessage),
		follows:     make(map[followKey]Follow),
		votes:       make(map[voteKey]Vote),
		bans:        make(map[banKey]Ban),
		moderators:  make(map[banKey]bool),
	}
}

// Person returns the cached person with the given id.
func (m *MemStore) Person(_ context.Context, id models.URL) (*models.Person, error) {
	m.RLock()
	defer m.RUnlock()

	p, ok := m.persons[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// UpsertPerson caches p keyed by its id.
func (m *MemStore) UpsertPerson(_ context.Context, p *models.Person) error {
	m.Lock()
	defer m.Unlock()

	m.persons[p.ID.String()] = *p
	return nil
}

// Community returns the cached community with the given id.
func (m *MemStore) Community(_ context.Context, id models.URL) (*Community, error) {
	m.RLock()
	defer m.RUnlock()

	c, ok := m.communities[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// UpsertCommunity caches c keyed by its id.
func (m *MemStore) UpsertCommunity(_ context.Context, c *Community) error {
	m.Lock()
	defer m.Unlock()

	m.communities[c.ID.String()] = *c
	return nil
}

// Post returns the post with the given id.
func (m *MemStore) Post(_ context.Context, id models.URL) (*Post, error) {
	m.RLock()
	defer m.RUnlock()

	p, ok := m.posts[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// UpsertPost stores p, preserving existing deletion flags on refresh so a
// re-resolved document does not resurrect removed content.
func (m *MemStore) UpsertPost(_ context.Context, p *Post) error {
	m.Lock()
	defer m.Unlock()

	if prev, ok := m.posts[p.ID.String()]; ok {
		p.Deleted = p.Deleted || prev.Deleted
		p.Removed = p.Removed || prev.Removed
	}
	m.posts[p.ID.String()] = *p
	return nil
}

// Comment returns the comment with the given id.
func (m *MemStore) Comment(_ context.Context, id models.URL) (*Comment, error) {
	m.RLock()
	defer m.RUnlock()

	c, ok := m.comments[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// UpsertComment stores c with the same flag preservation as UpsertPost.
func (m *MemStore) UpsertComment(_ context.Context, c *Comment) error {
	m.Lock()
	defer m.Unlock()

	if prev, ok := m.comments[c.ID.String()]; ok {
		c.Deleted = c.Deleted || prev.Deleted
		c.Removed = c.Removed || prev.Removed
	}
	m.comments[c.ID.String()] = *c
	return nil
}

// SetDeleted flips deletion flags on whichever of post or comment target
// names.
func (m *MemStore) SetDeleted(_ context.Context, target models.URL, deleted, removed bool) error {
	m.Lock()
	defer m.Unlock()

	key := target.String()
	if p, ok := m.posts[key]; ok {
		p.Deleted = deleted
		p.Removed = removed
		m.posts[key] = p
		return nil
	}
	if c, ok := m.comments[key]; ok {
		c.Deleted = deleted
		c.Removed = removed
		m.comments[key] = c
		return nil
	}
	return ErrNotFound
}

// PrivateMessage returns the message with the given id.
func (m *MemStore) PrivateMessage(_ context.Context, id models.URL) (*PrivateMessage, error) {
	m.RLock()
	defer m.RUnlock()

	pm, ok := m.messages[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &pm, nil
}

// UpsertPrivateMessage stores pm, preserving an existing deletion flag
// so an edit cannot resurrect a deleted message.
func (m *MemStore) UpsertPrivateMessage(_ context.Context, pm *PrivateMessage) error {
	m.Lock()
	defer m.Unlock()

	if prev, ok := m.messages[pm.ID.String()]; ok {
		pm.Deleted = pm.Deleted || prev.Deleted
	}
	m.messages[pm.ID.String()] = *pm
	return nil
}

// SetMessageDeleted flips the deletion flag on the message id names.
func (m *MemStore) SetMessageDeleted(_ context.Context, id models.URL, deleted bool) error {
	m.Lock()
	defer m.Unlock()

	pm, ok := m.messages[id.String()]
	if !ok {
		return ErrNotFound
	}
	pm.Deleted = deleted
	m.messages[id.String()] = pm
	return nil
}

// UpsertFollow creates or refreshes a subscription edge.
func (m *MemStore) UpsertFollow(_ context.Context, f Follow) error {
	m.Lock()
	defer m.Unlock()

	m.follows[followKey{f.Follower.String(), f.Target.String()}] = f
	return nil
}

// DeleteFollow removes the edge if present.
func (m *MemStore) DeleteFollow(_ context.Context, follower, target models.URL) error {
	m.Lock()
	defer m.Unlock()

	delete(m.follows, followKey{follower.String(), target.String()})
	return nil
}

// AcceptFollow marks a pending edge accepted. Missing edges are ignored:
// the Accept may arrive after the sender already unfollowed.
func (m *MemStore) AcceptFollow(_ context.Context, follower, target models.URL) error {
	m.Lock()
	defer m.Unlock()

	key := followKey{follower.String(), target.String()}
	if f, ok := m.follows[key]; ok {
		f.Accepted = true
		m.follows[key] = f
	}
	return nil
}

// Following reports whether follower has an edge to target.
func (m *MemStore) Following(_ context.Context, follower, target models.URL) (bool, error) {
	m.RLock()
	defer m.RUnlock()

	_, ok := m.follows[followKey{follower.String(), target.String()}]
	return ok, nil
}

// FollowsBy lists all edges originating at follower.
func (m *MemStore) FollowsBy(_ context.Context, follower models.URL) ([]Follow, error) {
	m.RLock()
	defer m.RUnlock()

	out := make([]Follow, 0)
	for _, f := range m.follows {
		if f.Follower.Equal(follower) {
			out = append(out, f)
		}
	}
	return out, nil
}

// FollowerInboxes lists delivery inboxes for target's followers, skipping
// broken edges.
func (m *MemStore) FollowerInboxes(_ context.Context, target models.URL) ([]models.URL, error) {
	m.RLock()
	defer m.RUnlock()

	out := make([]models.URL, 0)
	for _, f := range m.follows {
		if f.Target.Equal(target) && !f.Broken {
			out = append(out, f.Inbox)
		}
	}
	return out, nil
}

// MarkFollowBroken disables all edges delivered through inbox.
func (m *MemStore) MarkFollowBroken(_ context.Context, inbox models.URL) error {
	m.Lock()
	defer m.Unlock()

	for k, f := range m.follows {
		if f.Inbox.Equal(inbox) {
			f.Broken = true
			m.follows[k] = f
		}
	}
	return nil
}

// UpsertVote replaces any prior vote by the same actor on the same target.
func (m *MemStore) UpsertVote(_ context.Context, v Vote) error {
	m.Lock()
	defer m.Unlock()

	m.votes[voteKey{v.Actor.String(), v.Target.String()}] = v
	return nil
}

// DeleteVote removes the score record for the pair if present.
func (m *MemStore) DeleteVote(_ context.Context, actor, target models.URL) error {
	m.Lock()
	defer m.Unlock()

	delete(m.votes, voteKey{actor.String(), target.String()})
	return nil
}

// Vote returns the score record for the pair.
func (m *MemStore) Vote(_ context.Context, actor, target models.URL) (*Vote, error) {
	m.RLock()
	defer m.RUnlock()

	v, ok := m.votes[voteKey{actor.String(), target.String()}]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

// RecordBan records a community ban and drops the banned actor's follow
// under one lock, so no reader sees one without the other.
func (m *MemStore) RecordBan(_ context.Context, b Ban) error {
	m.Lock()
	defer m.Unlock()

	m.bans[banKey{b.Actor.String(), b.Community.String()}] = b
	delete(m.follows, followKey{b.Actor.String(), b.Community.String()})
	return nil
}

// DeleteBan lifts a ban if present.
func (m *MemStore) DeleteBan(_ context.Context, actor, community models.URL) error {
	m.Lock()
	defer m.Unlock()

	delete(m.bans, banKey{actor.String(), community.String()})
	return nil
}

// Banned reports whether actor is banned from community.
func (m *MemStore) Banned(_ context.Context, actor, community models.URL) (bool, error) {
	m.RLock()
	defer m.RUnlock()

	_, ok := m.bans[banKey{actor.String(), community.String()}]
	return ok, nil
}

// AddModerator records actor as a moderator of community.
func (m *MemStore) AddModerator(_ context.Context, actor, community models.URL) error {
	m.Lock()
	defer m.Unlock()

	m.moderators[banKey{actor.String(), community.String()}] = true
	return nil
}

// IsModerator reports whether actor moderates community.
func (m *MemStore) IsModerator(_ context.Context, actor, community models.URL) (bool, error) {
	m.RLock()
	defer m.RUnlock()

	return m.moderators[banKey{actor.String(), community.String()}], nil
}
