package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDocumentUUIDIsStable(t *testing.T) {
	a := DocumentUUID("posts", "hello")
	if a == uuid.Nil {
		t.Fatal("expected a non-nil uuid")
	}
	if b := DocumentUUID(" posts ", "hello"); a != b {
		t.Fatalf("expected trimmed keys to match: %s != %s", a, b)
	}
	if c := DocumentUUID("pages", "hello"); a == c {
		t.Fatal("expected collections to be part of the identity")
	}
}

func TestRunUUIDDependsOnStartTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if RunUUID("posts", now) != RunUUID("posts", now.In(time.FixedZone("x", 3600))) {
		t.Fatal("expected run ids to ignore the time zone")
	}
	if RunUUID("posts", now) == RunUUID("posts", now.Add(time.Nanosecond)) {
		t.Fatal("expected distinct runs to get distinct ids")
	}
	if UUID("  ") != uuid.Nil {
		t.Fatal("expected blank keys to map to the nil uuid")
	}
}
