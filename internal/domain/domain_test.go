package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestCanonicalPairOrdersConsistently(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	x1, y1 := CanonicalPair(a, b)
	x2, y2 := CanonicalPair(b, a)
	if x1 != x2 || y1 != y2 {
		t.Errorf("CanonicalPair not symmetric: (%s,%s) vs (%s,%s)", x1, y1, x2, y2)
	}
	if x1.String() >= y1.String() {
		t.Errorf("pair not in canonical order: %s >= %s", x1, y1)
	}
}

func TestHasParticipant(t *testing.T) {
	a, b := CanonicalPair(uuid.New(), uuid.New())
	conv := Conversation{ID: uuid.New(), User1ID: a, User2ID: b}

	if !conv.HasParticipant(a) || !conv.HasParticipant(b) {
		t.Error("members not recognized as participants")
	}
	if conv.HasParticipant(uuid.New()) {
		t.Error("stranger recognized as participant")
	}
}

func TestStatusRankOrdering(t *testing.T) {
	if !(StatusSent.Rank() < StatusDelivered.Rank() && StatusDelivered.Rank() < StatusSeen.Rank()) {
		t.Errorf("ranks out of order: sent=%d delivered=%d seen=%d",
			StatusSent.Rank(), StatusDelivered.Rank(), StatusSeen.Rank())
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []MessageStatus{StatusSent, StatusDelivered, StatusSeen} {
		if !s.Valid() {
			t.Errorf("%s reported invalid", s)
		}
	}
	for _, s := range []MessageStatus{"", "read", "SENT"} {
		if s.Valid() {
			t.Errorf("%q reported valid", s)
		}
	}
}
