package testfixtures

import (
	"testing"

	"github.com/google/uuid"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("range")

	if first, second := gen.Next(), gen.Next(); first != "range-1" || second != "range-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	gen.Reset()
	if next := gen.Next(); next != "range-1" {
		t.Fatalf("expected range-1 after reset, got %q", next)
	}
}

func TestUUIDGeneratorIsDeterministic(t *testing.T) {
	a := NewUUIDGenerator(uuid.NameSpaceURL)
	b := NewUUIDGenerator(uuid.NameSpaceURL)

	first := a.Next()
	if first != b.Next() {
		t.Fatalf("expected generators with the same namespace to agree")
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("expected a valid uuid, got %q: %v", first, err)
	}
	if parsed.Version() != 5 {
		t.Fatalf("expected version 5 uuid, got %d", parsed.Version())
	}
	if a.Next() == first {
		t.Fatalf("expected successive ids to differ")
	}
}
