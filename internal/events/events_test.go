package events

import (
	"encoding/json"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestEncodeDecode(t *testing.T) {
	b, err := Encode(GatherWithTool, Gather{ResourceId: "rock-1", Action: "mine"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := Decode(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "event", env.Event, GatherWithTool)

	var g Gather
	if err := json.Unmarshal(env.Data, &g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "resourceId", g.ResourceId, "rock-1")
	testutil.AssertEqual(t, "action", g.Action, "mine")
}

func TestEncode_NilPayloadOmitsData(t *testing.T) {
	b, err := Encode(CancelGathering, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "envelope", string(b), `{"event":"cancelGathering"}`)
}

func TestDecode_RejectsMissingEvent(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for envelope without event name")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed envelope")
	}
}
