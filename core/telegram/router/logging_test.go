package router

import (
	"errors"
	"fmt"
	"testing"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "fetch failed" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "coder", err: codedErr{}, want: "FETCH_FAILED"},
		{name: "wrapped coder", err: fmt.Errorf("outer: %w", codedErr{}), want: "FETCH_FAILED"},
		{name: "pointer type", err: &plainErr{}, want: "PLAINERR"},
		{name: "errors.New", err: errors.New("x"), want: "ERRORSTRING"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveErrorCode(tc.err); got != tc.want {
				t.Fatalf("deriveErrorCode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	cases := map[string]string{
		"/Check":        "check",
		"  ":            "unknown",
		"get checklist": "get_checklist",
	}
	for in, want := range cases {
		if got := normalizeHandlerName(in); got != want {
			t.Errorf("normalizeHandlerName(%q) = %q, want %q", in, got, want)
		}
	}
}
