package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "dial", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "url wrapped dial", err: &url.Error{Op: "Get", URL: "https://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, want: true},
		{name: "deadline", err: &url.Error{Op: "Get", URL: "https://x", Err: context.DeadlineExceeded}, want: true},
		{name: "dns timeout", err: &net.DNSError{Err: "timeout", IsTimeout: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRedactToken(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:AAbb-cc_DD/deleteWebhook": dial tcp`
	got := RedactToken(in)
	want := `Post "https://api.telegram.org/bot<redacted>/deleteWebhook": dial tcp`
	if got != want {
		t.Fatalf("RedactToken = %q, want %q", got, want)
	}
}
