package domain

import "testing"

func TestChangePayloadRoundTrip(t *testing.T) {
	payload, err := NewChangePayloadFromValue(Tag{ID: "t1", Name: "important"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if !payload.Defined() || payload.IsEmpty() {
		t.Fatalf("payload should be defined and non-empty")
	}
	tag, ok := DecodeChangePayload[Tag](payload)
	if !ok {
		t.Fatalf("decode payload")
	}
	if tag.ID != "t1" || tag.Name != "important" {
		t.Fatalf("unexpected decoded tag: %+v", tag)
	}
}

func TestChangePayloadUndefined(t *testing.T) {
	payload := UndefinedChangePayload()
	if payload.Defined() {
		t.Fatalf("undefined payload reports defined")
	}
	if _, ok := DecodeChangePayload[Tag](payload); ok {
		t.Fatalf("decoding an undefined payload must fail")
	}
	if raw := payload.Raw(); raw != nil {
		t.Fatalf("expected nil raw bytes, got %s", raw)
	}
}

func TestChangePayloadMalformed(t *testing.T) {
	payload := NewChangePayload([]byte("{"))
	if _, ok := DecodeChangePayload[Tag](payload); ok {
		t.Fatalf("decoding malformed JSON must fail")
	}
}
