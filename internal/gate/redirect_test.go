package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRedirectTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/dashboard?tab=2", "/dashboard?tab=2"},
		{"", "/"},
		{"dashboard", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
		{"https://evil.example/x", "/"},
		{"/ok\r\nSet-Cookie: x=y", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeRedirectTarget(tt.in))
		})
	}
}

func TestWithRedirect(t *testing.T) {
	assert.Equal(t, "/login?redirectTo=%2Fdashboard", WithRedirect("/login", "/dashboard"))
	assert.Equal(t, "/login?redirectTo=%2F", WithRedirect("/login", "//evil.example"))
}
