package protocol

import (
	"encoding/json"

	"github.com/copse-social/copse/models"
)

func newByKind(kind string) (Activity, bool) {
	switch kind {
	case "Follow":
		return &Follow{}, true
	case "Accept":
		return &Accept{}, true
	case "Like", "Dislike":
		return &Vote{}, true
	case "Delete":
		return &Delete{}, true
	case "Undo":
		return &Undo{}, true
	case "Create", "Update":
		return &CreateOrUpdate{}, true
	case "Announce":
		return &Announce{}, true
	case "Block":
		return &Block{}, true
	default:
		return nil, false
	}
}

// Decode turns a wire payload into a typed activity. The kind set is
// closed: anything outside it is rejected, while unknown fields inside a
// known kind land in the extension bag.
func Decode(data []byte) (Activity, error) {
	var probe struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, models.WrapErr(models.KindMalformed, err, "payload is not an activity")
	}

	act, ok := newByKind(probe.Kind)
	if !ok {
		return nil, models.Errorf(models.KindMalformed, "unsupported activity type %q", probe.Kind)
	}
	if err := json.Unmarshal(data, act); err != nil {
		return nil, models.WrapErr(models.KindMalformed, err, "malformed "+probe.Kind+" activity")
	}
	if err := act.Envelope().validate(); err != nil {
		return nil, err
	}
	return act, nil
}

// decodeNested decodes an embedded activity, restricted to the kinds the
// surrounding activity may legally wrap.
func decodeNested(data []byte, allowed ...string) (Activity, error) {
	act, err := Decode(data)
	if err != nil {
		return nil, err
	}
	kind := act.Envelope().Kind
	for _, a := range allowed {
		if kind == a {
			return act, nil
		}
	}
	return nil, models.Errorf(models.KindMalformed, "activity type %q cannot be embedded here", kind)
}
