package observability

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestOpID(t *testing.T) {
	if id := OpID(context.Background()); id != "" {
		t.Errorf("OpID without id = %q", id)
	}

	a := OpID(WithOpID(context.Background()))
	b := OpID(WithOpID(context.Background()))
	if a == b {
		t.Errorf("op ids should differ, both %q", a)
	}
	parsed, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("op id %q is not a uuid: %v", a, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("version = %d, want 4", parsed.Version())
	}
}
