package models

import (
	"encoding/json"
	"errors"
)

// ObjectID names a remote or local entity of type T by its canonical URL.
// It never owns the entity; the resolver turns it into one. On the wire it
// accepts either a bare URL string or an inlined object carrying an "id",
// and always re-serializes as the bare URL.
type ObjectID[T any] struct {
	id URL
}

// NewObjectID wraps u as a typed reference.
func NewObjectID[T any](u URL) ObjectID[T] {
	return ObjectID[T]{id: u}
}

// ID returns the named URL.
func (o ObjectID[T]) ID() URL {
	return o.id
}

// IsZero reports whether the reference is empty.
func (o ObjectID[T]) IsZero() bool {
	return o.id.IsZero()
}

func (o ObjectID[T]) String() string {
	return o.id.String()
}

// MarshalJSON implements json.Marshaler.
func (o ObjectID[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.id)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *ObjectID[T]) UnmarshalJSON(data []byte) error {
	var u URL
	if err := json.Unmarshal(data, &u); err == nil {
		o.id = u
		return nil
	}

	var nested struct {
		ID URL `json:"id"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	if nested.ID.IsZero() {
		return errors.New("object reference carries no id")
	}
	o.id = nested.ID
	return nil
}
