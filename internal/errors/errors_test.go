package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "Without Cause",
			err:  New(ErrNotFound, "post p1 not found"),
			want: "[NOT_FOUND] post p1 not found",
		},
		{
			name: "With Cause",
			err:  Wrap(ErrStoreUnavailable, "list posts", stderrors.New("connection refused")),
			want: "[STORE_UNAVAILABLE] list posts: connection refused",
		},
		{
			name: "Formatted",
			err:  Newf(ErrValidation, "unknown collection %q", "likes"),
			want: `[VALIDATION_ERROR] unknown collection "likes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := Wrap(ErrStoreUnavailable, "put post", cause)

	if !Is(err, ErrStoreUnavailable) {
		t.Error("Expected STORE_UNAVAILABLE")
	}
	if Is(err, ErrNotFound) {
		t.Error("Did not expect NOT_FOUND")
	}
	if !stderrors.Is(err, cause) {
		t.Error("Expected cause to be reachable through Unwrap")
	}

	wrapped := fmt.Errorf("toggle like: %w", err)
	if !Is(wrapped, ErrStoreUnavailable) {
		t.Error("Expected code to survive fmt wrapping")
	}

	nested := Wrap(ErrInternal, "outer", New(ErrValidation, "inner"))
	if !Is(nested, ErrValidation) {
		t.Error("Expected nested code to be found")
	}

	if Is(nil, ErrInternal) {
		t.Error("nil error has no code")
	}
	if Is(cause, ErrInternal) {
		t.Error("plain error has no code")
	}
}

func TestCode(t *testing.T) {
	if got := Code(New(ErrDuplicate, "username taken")); got != ErrDuplicate {
		t.Errorf("Code() = %s, want %s", got, ErrDuplicate)
	}
	if got := Code(stderrors.New("boom")); got != ErrInternal {
		t.Errorf("Code() = %s, want %s", got, ErrInternal)
	}
}
