package protocol

import (
	"encoding/json"
	"testing"

	"github.com/copse-social/copse/models"
)

func TestDecodeRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"id": "https://federated.example.com/a/1", "type": "Flag", "actor": "https://federated.example.com/u/alice"}`))
	wantKind(t, err, models.KindMalformed)
}

func TestDecodeRejectsBrokenEnvelopes(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name  string
		input string
	}{
		{
			"should reject a missing id",
			`{"type": "Follow", "actor": "https://federated.example.com/u/alice", "object": "https://example.com/c/golang"}`,
		},
		{
			"should reject a missing actor",
			`{"id": "https://federated.example.com/a/1", "type": "Follow", "object": "https://example.com/c/golang"}`,
		},
		{
			"should reject an empty to list",
			`{"id": "https://federated.example.com/a/1", "type": "Follow", "actor": "https://federated.example.com/u/alice", "to": [], "object": "https://example.com/c/golang"}`,
		},
		{
			"should reject an empty cc list",
			`{"id": "https://federated.example.com/a/1", "type": "Follow", "actor": "https://federated.example.com/u/alice", "cc": [], "object": "https://example.com/c/golang"}`,
		},
		{
			"should reject a non-object payload",
			`"https://federated.example.com/a/1"`,
		},
	}

	for _, tt := range tests {
		var tt = tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode([]byte(tt.input))
			wantKind(t, err, models.KindMalformed)
		})
	}
}

func TestDecodeFollowRoundTrip(t *testing.T) {
	t.Parallel()

	input := `{
		"id": "https://federated.example.com/a/1",
		"type": "Follow",
		"actor": "https://federated.example.com/u/alice",
		"to": "https://example.com/c/golang",
		"object": "https://example.com/c/golang",
		"lemmy:subscribed": true
	}`

	act, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("could not decode follow: %v", err)
	}
	f, ok := act.(*Follow)
	if !ok {
		t.Fatalf("expected *Follow got %T", act)
	}
	if len(f.To) != 1 {
		t.Errorf("expected singular to promoted to a list, got %v", f.To)
	}
	if _, ok := f.Extra["lemmy:subscribed"]; !ok {
		t.Errorf("expected extension field captured")
	}

	out, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("could not re-encode follow: %v", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(out, &all); err != nil {
		t.Fatalf("re-encoded follow is not an object: %v", err)
	}
	for _, key := range []string{"id", "type", "actor", "to", "object", "lemmy:subscribed"} {
		if _, ok := all[key]; !ok {
			t.Errorf("expected re-encoded follow to carry %q", key)
		}
	}
}

func TestDecodeLikeAndDislikeShareShape(t *testing.T) {
	t.Parallel()

	like, err := Decode([]byte(`{"id": "https://federated.example.com/a/1", "type": "Like", "actor": "https://federated.example.com/u/alice", "object": "https://example.com/post/1"}`))
	if err != nil {
		t.Fatalf("could not decode like: %v", err)
	}
	dislike, err := Decode([]byte(`{"id": "https://federated.example.com/a/2", "type": "Dislike", "actor": "https://federated.example.com/u/alice", "object": "https://example.com/post/1"}`))
	if err != nil {
		t.Fatalf("could not decode dislike: %v", err)
	}

	if like.(*Vote).Score() != 1 {
		t.Errorf("expected like score 1 got %d", like.(*Vote).Score())
	}
	if dislike.(*Vote).Score() != -1 {
		t.Errorf("expected dislike score -1 got %d", dislike.(*Vote).Score())
	}
}

func TestDecodeUndoRestrictsEmbeddedKinds(t *testing.T) {
	t.Parallel()

	input := `{
		"id": "https://federated.example.com/a/1",
		"type": "Undo",
		"actor": "https://federated.example.com/u/alice",
		"object": {
			"id": "https://federated.example.com/a/0",
			"type": "Accept",
			"actor": "https://federated.example.com/u/alice",
			"object": {"id": "https://x.example.com/a/9", "type": "Follow", "actor": "https://x.example.com/u/y", "object": "https://federated.example.com/u/alice"}
		}
	}`

	_, err := Decode([]byte(input))
	wantKind(t, err, models.KindMalformed)
}

func TestDecodeUndoRoundTrip(t *testing.T) {
	t.Parallel()

	input := `{
		"id": "https://federated.example.com/a/1",
		"type": "Undo",
		"actor": "https://federated.example.com/u/alice",
		"object": {
			"id": "https://federated.example.com/a/0",
			"type": "Like",
			"actor": "https://federated.example.com/u/alice",
			"object": "https://example.com/post/1"
		}
	}`

	act, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("could not decode undo: %v", err)
	}
	u := act.(*Undo)
	if _, ok := u.Object.(*Vote); !ok {
		t.Fatalf("expected embedded *Vote got %T", u.Object)
	}

	out, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("could not re-encode undo: %v", err)
	}

	again, err := Decode(out)
	if err != nil {
		t.Fatalf("could not decode re-encoded undo: %v", err)
	}
	if again.Envelope().Kind != "Undo" {
		t.Errorf("round trip changed the kind to %s", again.Envelope().Kind)
	}
}

func TestDecodeAnnounceRejectsBareID(t *testing.T) {
	t.Parallel()

	input := `{
		"id": "https://federated.example.com/a/1",
		"type": "Announce",
		"actor": "https://federated.example.com/c/remote",
		"object": "https://federated.example.com/a/0"
	}`

	_, err := Decode([]byte(input))
	wantKind(t, err, models.KindMalformed)
}

func TestDecodeCreateDispatchesObjectType(t *testing.T) {
	t.Parallel()

	post := `{
		"id": "https://federated.example.com/a/1",
		"type": "Create",
		"actor": "https://federated.example.com/u/alice",
		"object": {
			"id": "https://federated.example.com/post/1",
			"type": "Page",
			"attributedTo": "https://federated.example.com/u/alice",
			"audience": "https://example.com/c/golang",
			"name": "hello"
		}
	}`
	act, err := Decode([]byte(post))
	if err != nil {
		t.Fatalf("could not decode create: %v", err)
	}
	if act.(*CreateOrUpdate).Object.Post == nil {
		t.Errorf("expected a post object")
	}

	comment := `{
		"id": "https://federated.example.com/a/2",
		"type": "Create",
		"actor": "https://federated.example.com/u/alice",
		"object": {
			"id": "https://federated.example.com/comment/1",
			"type": "Note",
			"attributedTo": "https://federated.example.com/u/alice",
			"inReplyTo": "https://example.com/post/1",
			"content": "hi"
		}
	}`
	act, err = Decode([]byte(comment))
	if err != nil {
		t.Fatalf("could not decode create comment: %v", err)
	}
	if act.(*CreateOrUpdate).Object.Comment == nil {
		t.Errorf("expected a comment object")
	}

	video := `{
		"id": "https://federated.example.com/a/3",
		"type": "Create",
		"actor": "https://federated.example.com/u/alice",
		"object": {"id": "https://federated.example.com/v/1", "type": "Video"}
	}`
	_, err = Decode([]byte(video))
	wantKind(t, err, models.KindMalformed)
}
