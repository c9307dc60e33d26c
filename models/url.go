package models

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// URL is an absolute http(s) URL used as an object identifier on the wire.
// It marshals to and from a JSON string.
type URL struct {
	url.URL
}

// ParseURL parses s and requires an absolute http or https URL with a host.
func ParseURL(s string) (URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return URL{}, fmt.Errorf("invalid url %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return URL{}, fmt.Errorf("url %q has unsupported scheme %q", s, u.Scheme)
	}
	if u.Host == "" {
		return URL{}, fmt.Errorf("url %q has no host", s)
	}
	return URL{*u}, nil
}

// MustURL is ParseURL that panics. Only for tests and static wiring.
func MustURL(s string) URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the canonical string form. Declared on the value
// receiver so it can be called on non-addressable URL values.
func (u URL) String() string {
	return u.URL.String()
}

// IsZero reports whether u is the zero URL.
func (u URL) IsZero() bool {
	return u.URL == url.URL{}
}

// Equal compares by canonical string form.
func (u URL) Equal(o URL) bool {
	return u.String() == o.String()
}

// SameAuthority reports whether u and o share scheme and host. Several
// protocol checks require an activity id and its actor to live on the
// same instance.
func (u URL) SameAuthority(o URL) bool {
	return u.Scheme == o.Scheme && u.Host == o.Host
}

// MarshalJSON implements json.Marshaler.
func (u URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *URL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseURL(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
