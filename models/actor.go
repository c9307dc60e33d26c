package models

import (
	"encoding/json"
	"fmt"
)

// PublicKey is the signing key a peer publishes on its actor document.
type PublicKey struct {
	ID           URL    `json:"id"`
	Owner        URL    `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints carries the optional shared inbox of an actor's instance.
type Endpoints struct {
	SharedInbox *URL `json:"sharedInbox,omitempty"`
}

// Person is a user actor. The Service variant (instance actors) is carried
// by the same shape.
type Person struct {
	ID                URL        `json:"id"`
	Kind              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Inbox             URL        `json:"inbox"`
	Outbox            *URL       `json:"outbox,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	PublicKey         PublicKey  `json:"publicKey"`
}

// SharedInboxOrInbox returns the instance shared inbox when advertised,
// otherwise the personal inbox. Fan-out dedupes on this value.
func (p *Person) SharedInboxOrInbox() URL {
	if p.Endpoints != nil && p.Endpoints.SharedInbox != nil {
		return *p.Endpoints.SharedInbox
	}
	return p.Inbox
}

// Community is a group actor owning posts and a follower collection.
type Community struct {
	ID                URL        `json:"id"`
	Kind              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Inbox             URL        `json:"inbox"`
	Followers         *URL       `json:"followers,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	PublicKey         PublicKey  `json:"publicKey"`
}

// SharedInboxOrInbox mirrors Person.SharedInboxOrInbox.
func (c *Community) SharedInboxOrInbox() URL {
	if c.Endpoints != nil && c.Endpoints.SharedInbox != nil {
		return *c.Endpoints.SharedInbox
	}
	return c.Inbox
}

// Actor is the person-or-community union. Exactly one side is set.
type Actor struct {
	Person    *Person
	Community *Community
}

// ID returns the actor's canonical URL.
func (a Actor) ID() URL {
	if a.Person != nil {
		return a.Person.ID
	}
	if a.Community != nil {
		return a.Community.ID
	}
	return URL{}
}

// Inbox returns the actor's inbox URL.
func (a Actor) Inbox() URL {
	if a.Person != nil {
		return a.Person.Inbox
	}
	if a.Community != nil {
		return a.Community.Inbox
	}
	return URL{}
}

// PublicKey returns the actor's published key.
func (a Actor) PublicKey() PublicKey {
	if a.Person != nil {
		return a.Person.PublicKey
	}
	if a.Community != nil {
		return a.Community.PublicKey
	}
	return PublicKey{}
}

// UnmarshalJSON dispatches on the "type" discriminator.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case "Person", "Service", "Application":
		var p Person
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		a.Person = &p
		a.Community = nil
	case "Group":
		var c Community
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		a.Community = &c
		a.Person = nil
	default:
		return fmt.Errorf("unknown actor type %q", probe.Kind)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Actor) MarshalJSON() ([]byte, error) {
	if a.Person != nil {
		return json.Marshal(a.Person)
	}
	if a.Community != nil {
		return json.Marshal(a.Community)
	}
	return nil, fmt.Errorf("empty actor")
}
