package models

import (
	"encoding/json"
	"time"
)

// Post is a top-level submission in a community ("Page" on the wire).
type Post struct {
	ID           URL                 `json:"id"`
	Kind         string              `json:"type"`
	AttributedTo ObjectID[Person]    `json:"attributedTo"`
	Audience     ObjectID[Community] `json:"audience"`
	To           OneOrMany           `json:"to,omitempty"`
	Name         string              `json:"name"`
	Content      string              `json:"content,omitempty"`
	Published    *time.Time          `json:"published,omitempty"`
	Updated      *time.Time          `json:"updated,omitempty"`
	Extra        Extra               `json:"-"`
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (p *Post) UnmarshalJSON(data []byte) error {
	type post Post
	var raw post
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*p = Post(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (p Post) MarshalJSON() ([]byte, error) {
	type post Post
	return MergeExtra(post(p), p.Extra)
}

// Comment is a reply to a post or another comment ("Note" on the wire).
type Comment struct {
	ID           URL                     `json:"id"`
	Kind         string                  `json:"type"`
	AttributedTo ObjectID[Person]        `json:"attributedTo"`
	To           OneOrMany               `json:"to,omitempty"`
	InReplyTo    ObjectID[PostOrComment] `json:"inReplyTo"`
	Content      string                  `json:"content"`
	Published    *time.Time              `json:"published,omitempty"`
	Updated      *time.Time              `json:"updated,omitempty"`
	Extra        Extra                   `json:"-"`
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (c *Comment) UnmarshalJSON(data []byte) error {
	type comment Comment
	var raw comment
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*c = Comment(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (c Comment) MarshalJSON() ([]byte, error) {
	type comment Comment
	return MergeExtra(comment(c), c.Extra)
}

// PostOrComment is the union a vote or reply can target.
type PostOrComment struct {
	Post    *Post
	Comment *Comment
}

// ID returns the URL of whichever side is set.
func (pc PostOrComment) ID() URL {
	if pc.Post != nil {
		return pc.Post.ID
	}
	if pc.Comment != nil {
		return pc.Comment.ID
	}
	return URL{}
}

// ChatMessage is a person-to-person private message, the Pleroma
// extension shape. Unlike a Note it carries no inReplyTo and addresses
// exactly one recipient.
type ChatMessage struct {
	ID           URL              `json:"id"`
	Kind         string           `json:"type"`
	AttributedTo ObjectID[Person] `json:"attributedTo"`
	To           OneOrMany        `json:"to"`
	Content      string           `json:"content"`
	MediaType    string           `json:"mediaType,omitempty"`
	Published    *time.Time       `json:"published,omitempty"`
	Updated      *time.Time       `json:"updated,omitempty"`
	Extra        Extra            `json:"-"`
}

// Recipient returns the single addressee, or a zero URL when the
// recipient list is not the required one-element form.
func (m *ChatMessage) Recipient() URL {
	if len(m.To) != 1 {
		return URL{}
	}
	return m.To[0]
}

// UnmarshalJSON decodes the modeled fields and captures the rest.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type chatMessage ChatMessage
	var raw chatMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := CaptureExtra(data, &raw)
	if err != nil {
		return err
	}
	raw.Extra = extra
	*m = ChatMessage(raw)
	return nil
}

// MarshalJSON re-serializes including captured extension fields.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type chatMessage ChatMessage
	return MergeExtra(chatMessage(m), m.Extra)
}

// Tombstone is the minimal shape some peers send as a Delete object.
type Tombstone struct {
	ID   URL    `json:"id"`
	Kind string `json:"type"`
}
