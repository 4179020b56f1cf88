package websocket

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		header  string
		want    bool
	}{
		{"empty list allows all", nil, "https://any.example", true},
		{"empty list allows missing header", nil, "", true},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"exact match", []string{"https://app.example"}, "https://app.example", true},
		{"case insensitive", []string{"https://App.Example"}, "https://app.example", true},
		{"path ignored", []string{"https://app.example/chat"}, "https://app.example", true},
		{"other host", []string{"https://app.example"}, "https://evil.example", false},
		{"missing header with list", []string{"https://app.example"}, "", false},
		{"scheme mismatch", []string{"https://app.example"}, "http://app.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, invalid := NewOriginPolicy(tt.origins)
			assert.Empty(t, invalid)

			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.header != "" {
				r.Header.Set("Origin", tt.header)
			}
			assert.Equal(t, tt.want, policy.Allowed(r))
		})
	}
}

func TestOriginPolicy_InvalidEntries(t *testing.T) {
	policy, invalid := NewOriginPolicy([]string{"not a url", "https://ok.example"})
	assert.Equal(t, []string{"not a url"}, invalid)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://ok.example")
	assert.True(t, policy.Allowed(r))
}
