package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "not found", err: NotFound("action"), target: ErrNotFound, want: true},
		{name: "wrapped not found", err: fmt.Errorf("complete: %w", NotFound("action")), target: ErrNotFound, want: true},
		{name: "forbidden", err: Forbidden("A specified transaction is not yours."), target: ErrForbidden, want: true},
		{name: "argument", err: Argument("transactionId", "Status not Confirmed."), target: ErrArgument, want: true},
		{name: "already in use", err: AlreadyInUse("transaction", []string{"object.transaction"}, "Already returned."), target: ErrAlreadyInUse, want: true},
		{name: "not implemented", err: NotImplemented("x"), target: ErrNotImplemented, want: true},
		{name: "kind mismatch", err: NotFound("action"), target: ErrForbidden, want: false},
		{name: "plain error", err: errors.New("boom"), target: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := AlreadyInUse("transaction", []string{"object.transaction"}, "Already returned.")
	want := "AlreadyInUse: transaction [object.transaction]: Already returned."
	if err.Error() != want {
		t.Fatalf("unexpected message %q, want %q", err.Error(), want)
	}
	if KindOf(err) != KindAlreadyInUse {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain error must have no kind")
	}
}

func TestNewActionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ActionError
	}{
		{
			name: "external error keeps name and status",
			err:  fmt.Errorf("alterTran: %w", &ExternalError{Service: "GMO", StatusCode: 400, Name: "E01", Message: "invalid access"}),
			want: ActionError{Name: "E01", Message: "invalid access", Code: "400"},
		},
		{
			name: "external error without name",
			err:  &ExternalError{Service: "Pecorino", Message: "timeout"},
			want: ActionError{Name: "PecorinoError", Message: "timeout"},
		},
		{
			name: "domain error",
			err:  NotFound("order"),
			want: ActionError{Name: "NotFound", Message: "NotFound: order: order not found", Code: "NotFound"},
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: ActionError{Name: "Error", Message: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewActionError(tt.err); got != tt.want {
				t.Errorf("NewActionError() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
