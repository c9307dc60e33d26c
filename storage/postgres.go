package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/copse-social/copse/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type personModel struct {
	ID  string `gorm:"column:id;primaryKey"`
	Doc []byte `gorm:"column:doc;type:jsonb"`
}

func (personModel) TableName() string { return "persons" }

type communityModel struct {
	ID    string `gorm:"column:id;primaryKey"`
	Doc   []byte `gorm:"column:doc;type:jsonb"`
	Local bool   `gorm:"column:local"`
}

func (communityModel) TableName() string { return "communities" }

type postModel struct {
	ID      string `gorm:"column:id;primaryKey"`
	Doc     []byte `gorm:"column:doc;type:jsonb"`
	Deleted bool   `gorm:"column:deleted"`
	Removed bool   `gorm:"column:removed"`
	Local   bool   `gorm:"column:local"`
}

func (postModel) TableName() string { return "posts" }

type commentModel struct {
	ID      string `gorm:"column:id;primaryKey"`
	Doc     []byte `gorm:"column:doc;type:jsonb"`
	Deleted bool   `gorm:"column:deleted"`
	Removed bool   `gorm:"column:removed"`
	Local   bool   `gorm:"column:local"`
}

func (commentModel) TableName() string { return "comments" }

type privateMessageModel struct {
	ID      string `gorm:"column:id;primaryKey"`
	Doc     []byte `gorm:"column:doc;type:jsonb"`
	Deleted bool   `gorm:"column:deleted"`
	Local   bool   `gorm:"column:local"`
}

func (privateMessageModel) TableName() string { return "private_messages" }

type followModel struct {
	Follower string `gorm:"column:follower;primaryKey"`
	Target   string `gorm:"column:target;primaryKey"`
	Inbox    string `gorm:"column:inbox"`
	Accepted bool   `gorm:"column:accepted"`
	Broken   bool   `gorm:"column:broken"`
}

func (followModel) TableName() string { return "follows" }

type voteModel struct {
	Actor  string `gorm:"column:actor;primaryKey"`
	Target string `gorm:"column:target;primaryKey"`
	Score  int    `gorm:"column:score"`
}

func (voteModel) TableName() string { return "votes" }

type banModel struct {
	Actor     string `gorm:"column:actor;primaryKey"`
	Community string `gorm:"column:community;primaryKey"`
}

func (banModel) TableName() string { return "bans" }

type moderatorModel struct {
	Actor     string `gorm:"column:actor;primaryKey"`
	Community string `gorm:"column:community;primaryKey"`
}

func (moderatorModel) TableName() string { return "moderators" }

// PgStore is the postgres-backed Store.
type PgStore struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the federation tables.
func OpenPostgres(dsn string) (*PgStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(
		&personModel{},
		&communityModel{},
		&postModel{},
		&commentModel{},
		&privateMessageModel{},
		&followModel{},
		&voteModel{},
		&banModel{},
		&moderatorModel{},
	)
	if err != nil {
		return nil, err
	}
	return &PgStore{db: db}, nil
}

func upsertDoc(ctx context.Context, db *gorm.DB, rec interface{}, updates []string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(rec).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Person returns the cached person with the given id.
func (s *PgStore) Person(ctx context.Context, id models.URL) (*models.Person, error) {
	var rec personModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	var p models.Person
	if err := json.Unmarshal(rec.Doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPerson caches p keyed by its id.
func (s *PgStore) UpsertPerson(ctx context.Context, p *models.Person) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return upsertDoc(ctx, s.db, &personModel{ID: p.ID.String(), Doc: doc}, []string{"doc"})
}

// Community returns the cached community with the given id.
func (s *PgStore) Community(ctx context.Context, id models.URL) (*Community, error) {
	var rec communityModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	var c Community
	if err := json.Unmarshal(rec.Doc, &c.Community); err != nil {
		return nil, err
	}
	c.Local = rec.Local
	return &c, nil
}

// UpsertCommunity caches c keyed by its id.
func (s *PgStore) UpsertCommunity(ctx context.Context, c *Community) error {
	doc, err := json.Marshal(&c.Community)
	if err != nil {
		return err
	}
	rec := communityModel{ID: c.ID.String(), Doc: doc, Local: c.Local}
	return upsertDoc(ctx, s.db, &rec, []string{"doc", "local"})
}

// Post returns the post with the given id.
func (s *PgStore) Post(ctx context.Context, id models.URL) (*Post, error) {
	var rec postModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	var p Post
	if err := json.Unmarshal(rec.Doc, &p.Post); err != nil {
		return nil, err
	}
	p.Deleted = rec.Deleted
	p.Removed = rec.Removed
	p.Local = rec.Local
	return &p, nil
}

// UpsertPost stores p. Only the document refreshes on conflict so
// deletion flags survive a re-resolve.
func (s *PgStore) UpsertPost(ctx context.Context, p *Post) error {
	doc, err := json.Marshal(&p.Post)
	if err != nil {
		return err
	}
	rec := postModel{
		ID:      p.ID.String(),
		Doc:     doc,
		Deleted: p.Deleted,
		Removed: p.Removed,
		Local:   p.Local,
	}
	return upsertDoc(ctx, s.db, &rec, []string{"doc"})
}

// Comment returns the comment with the given id.
func (s *PgStore) Comment(ctx context.Context, id models.URL) (*Comment, error) {
	var rec commentModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	var c Comment
	if err := json.Unmarshal(rec.Doc, &c.Comment); err != nil {
		return nil, err
	}
	c.Deleted = rec.Deleted
	c.Removed = rec.Removed
	c.Local = rec.Local
	return &c, nil
}

// UpsertComment stores c with the same conflict behavior as UpsertPost.
func (s *PgStore) UpsertComment(ctx context.Context, c *Comment) error {
	doc, err := json.Marshal(&c.Comment)
	if err != nil {
		return err
	}
	rec := commentModel{
		ID:      c.ID.String(),
		Doc:     doc,
		Deleted: c.Deleted,
		Removed: c.Removed,
		Local:   c.Local,
	}
	return upsertDoc(ctx, s.db, &rec, []string{"doc"})
}

// PrivateMessage returns the message with the given id.
func (s *PgStore) PrivateMessage(ctx context.Context, id models.URL) (*PrivateMessage, error) {
	var rec privateMessageModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	var pm PrivateMessage
	if err := json.Unmarshal(rec.Doc, &pm.ChatMessage); err != nil {
		return nil, err
	}
	pm.Deleted = rec.Deleted
	pm.Local = rec.Local
	return &pm, nil
}

// UpsertPrivateMessage stores pm. Only the document refreshes on
// conflict so an edit cannot resurrect a deleted message.
func (s *PgStore) UpsertPrivateMessage(ctx context.Context, pm *PrivateMessage) error {
	doc, err := json.Marshal(&pm.ChatMessage)
	if err != nil {
		return err
	}
	rec := privateMessageModel{
		ID:      pm.ID.String(),
		Doc:     doc,
		Deleted: pm.Deleted,
		Local:   pm.Local,
	}
	return upsertDoc(ctx, s.db, &rec, []string{"doc"})
}

// SetMessageDeleted flips the deletion flag on the message id names.
func (s *PgStore) SetMessageDeleted(ctx context.Context, id models.URL, deleted bool) error {
	res := s.db.WithContext(ctx).Model(&privateMessageModel{}).
		Where("id = ?", id.String()).Update("deleted", deleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDeleted flips deletion flags on the post or comment named by target.
func (s *PgStore) SetDeleted(ctx context.Context, target models.URL, deleted, removed bool) error {
	updates := map[string]interface{}{"deleted": deleted, "removed": removed}

	res := s.db.WithContext(ctx).Model(&postModel{}).
		Where("id = ?", target.String()).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	res = s.db.WithContext(ctx).Model(&commentModel{}).
		Where("id = ?", target.String()).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertFollow creates or refreshes a subscription edge.
func (s *PgStore) UpsertFollow(ctx context.Context, f Follow) error {
	rec := followModel{
		Follower: f.Follower.String(),
		Target:   f.Target.String(),
		Inbox:    f.Inbox.String(),
		Accepted: f.Accepted,
		Broken:   f.Broken,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower"}, {Name: "target"}},
		DoUpdates: clause.AssignmentColumns([]string{"inbox", "accepted", "broken"}),
	}).Create(&rec).Error
}

// DeleteFollow removes the edge if present.
func (s *PgStore) DeleteFollow(ctx context.Context, follower, target models.URL) error {
	return s.db.WithContext(ctx).
		Delete(&followModel{}, "follower = ? AND target = ?", follower.String(), target.String()).
		Error
}

// AcceptFollow marks a pending edge accepted.
func (s *PgStore) AcceptFollow(ctx context.Context, follower, target models.URL) error {
	return s.db.WithContext(ctx).Model(&followModel{}).
		Where("follower = ? AND target = ?", follower.String(), target.String()).
		Update("accepted", true).Error
}

// Following reports whether follower has an edge to target.
func (s *PgStore) Following(ctx context.Context, follower, target models.URL) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&followModel{}).
		Where("follower = ? AND target = ?", follower.String(), target.String()).
		Count(&n).Error
	return n > 0, err
}

// FollowsBy lists all edges originating at follower.
func (s *PgStore) FollowsBy(ctx context.Context, follower models.URL) ([]Follow, error) {
	var recs []followModel
	err := s.db.WithContext(ctx).
		Find(&recs, "follower = ?", follower.String()).Error
	if err != nil {
		return nil, err
	}
	out := make([]Follow, 0, len(recs))
	for _, rec := range recs {
		f, err := followFromModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// FollowerInboxes lists delivery inboxes of target's followers.
func (s *PgStore) FollowerInboxes(ctx context.Context, target models.URL) ([]models.URL, error) {
	var inboxes []string
	err := s.db.WithContext(ctx).Model(&followModel{}).
		Distinct("inbox").
		Where("target = ? AND broken = false", target.String()).
		Pluck("inbox", &inboxes).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.URL, 0, len(inboxes))
	for _, raw := range inboxes {
		u, err := models.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// MarkFollowBroken disables all edges delivered through inbox.
func (s *PgStore) MarkFollowBroken(ctx context.Context, inbox models.URL) error {
	return s.db.WithContext(ctx).Model(&followModel{}).
		Where("inbox = ?", inbox.String()).
		Update("broken", true).Error
}

// UpsertVote replaces any prior vote by the same actor on the same target.
func (s *PgStore) UpsertVote(ctx context.Context, v Vote) error {
	rec := voteModel{Actor: v.Actor.String(), Target: v.Target.String(), Score: v.Score}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor"}, {Name: "target"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&rec).Error
}

// DeleteVote removes the score record for the pair if present.
func (s *PgStore) DeleteVote(ctx context.Context, actor, target models.URL) error {
	return s.db.WithContext(ctx).
		Delete(&voteModel{}, "actor = ? AND target = ?", actor.String(), target.String()).
		Error
}

// Vote returns the score record for the pair.
func (s *PgStore) Vote(ctx context.Context, actor, target models.URL) (*Vote, error) {
	var rec voteModel
	err := s.db.WithContext(ctx).
		First(&rec, "actor = ? AND target = ?", actor.String(), target.String()).Error
	if err != nil {
		return nil, notFound(err)
	}
	actorURL, err := models.ParseURL(rec.Actor)
	if err != nil {
		return nil, err
	}
	targetURL, err := models.ParseURL(rec.Target)
	if err != nil {
		return nil, err
	}
	return &Vote{Actor: actorURL, Target: targetURL, Score: rec.Score}, nil
}

// RecordBan records a community ban and drops the banned actor's follow
// in one transaction.
func (s *PgStore) RecordBan(ctx context.Context, b Ban) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := banModel{Actor: b.Actor.String(), Community: b.Community.String()}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor"}, {Name: "community"}},
			DoNothing: true,
		}).Create(&rec).Error
		if err != nil {
			return err
		}
		return tx.
			Delete(&followModel{}, "follower = ? AND target = ?", b.Actor.String(), b.Community.String()).
			Error
	})
}

// DeleteBan lifts a ban if present.
func (s *PgStore) DeleteBan(ctx context.Context, actor, community models.URL) error {
	return s.db.WithContext(ctx).
		Delete(&banModel{}, "actor = ? AND community = ?", actor.String(), community.String()).
		Error
}

// Banned reports whether actor is banned from community.
func (s *PgStore) Banned(ctx context.Context, actor, community models.URL) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&banModel{}).
		Where("actor = ? AND community = ?", actor.String(), community.String()).
		Count(&n).Error
	return n > 0, err
}

// AddModerator records actor as a moderator of community.
func (s *PgStore) AddModerator(ctx context.Context, actor, community models.URL) error {
	rec := moderatorModel{Actor: actor.String(), Community: community.String()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor"}, {Name: "community"}},
		DoNothing: true,
	}).Create(&rec).Error
}

// IsModerator reports whether actor moderates community.
func (s *PgStore) IsModerator(ctx context.Context, actor, community models.URL) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&moderatorModel{}).
		Where("actor = ? AND community = ?", actor.String(), community.String()).
		Count(&n).Error
	return n > 0, err
}

func followFromModel(rec followModel) (Follow, error) {
	follower, err := models.ParseURL(rec.Follower)
	if err != nil {
		return Follow{}, err
	}
	target, err := models.ParseURL(rec.Target)
	if err != nil {
		return Follow{}, err
	}
	inbox, err := models.ParseURL(rec.Inbox)
	if err != nil {
		return Follow{}, err
	}
	return Follow{
		Follower: follower,
		Target:   target,
		Inbox:    inbox,
		Accepted: rec.Accepted,
		Broken:   rec.Broken,
	}, nil
}
