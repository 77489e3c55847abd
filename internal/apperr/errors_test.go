package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind_Category(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Internal, "internal"},
		{InvalidInput, "invalid_input"},
		{ModelUnavailable, "model_unavailable"},
		{GenerationUnavailable, "generation_unavailable"},
		{IndexUnavailable, "index_unavailable"},
		{Canceled, "canceled"},
	}
	for _, tt := range tests {
		if got := tt.kind.Category(); got != tt.want {
			t.Errorf("Category(%d) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := New(InvalidInput, "embed", "text is empty")
	wrapped := fmt.Errorf("retrieve: %w", inner)
	err := Wrap(ModelUnavailable, "retrieve", wrapped)
	if KindOf(err) != InvalidInput {
		t.Errorf("KindOf = %v, want invalid_input", KindOf(err))
	}
}

func TestWrap_ContextErrors(t *testing.T) {
	if k := KindOf(Wrap(GenerationUnavailable, "generate", context.Canceled)); k != Canceled {
		t.Errorf("canceled: got %v", k)
	}
	if k := KindOf(Wrap(GenerationUnavailable, "generate", context.DeadlineExceeded)); k != GenerationUnavailable {
		t.Errorf("deadline: got %v", k)
	}
	if !errors.Is(Wrap(GenerationUnavailable, "generate", context.DeadlineExceeded), context.DeadlineExceeded) {
		t.Error("wrapped error should unwrap to the cause")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(Internal, "op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestKindOf_Uncategorized(t *testing.T) {
	if KindOf(errors.New("boom")) != Internal {
		t.Error("plain errors should be internal")
	}
	if Is(nil, Internal) {
		t.Error("nil error is not of any kind")
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: ModelUnavailable, Op: "embed", Message: "ollama", Err: errors.New("connection refused")}
	if got := err.Error(); got != "embed: ollama: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
