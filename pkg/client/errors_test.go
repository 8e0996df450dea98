package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorClass
	}{
		{200, ""},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := classifyStatus(tt.code); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
		{ErrorClassRateLimit, false},
		{ErrorClassClient, false},
		{ErrorClassDecode, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestStatusDescription(t *testing.T) {
	if got := StatusDescription(429); !strings.HasPrefix(got, "Rate Limit Exceeded") {
		t.Errorf("StatusDescription(429) = %q", got)
	}
	if got := StatusDescription(418); got != "Unknown Error" {
		t.Errorf("StatusDescription(418) = %q, want Unknown Error", got)
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection reset")
	err := fmt.Errorf("list matches: %w", &ProviderError{
		ErrorClass: ErrorClassNetwork,
		Message:    "request failed",
		Err:        inner,
	})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if got := ClassOf(err); got != ErrorClassNetwork {
		t.Errorf("ClassOf() = %q, want network", got)
	}
	if got := ClassOf(errors.New("plain")); got != "" {
		t.Errorf("ClassOf(plain) = %q, want empty", got)
	}

	msg := (&ProviderError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "Not Found"}).Error()
	if msg != "provider client error (status 404): Not Found" {
		t.Errorf("Error() = %q", msg)
	}
}
