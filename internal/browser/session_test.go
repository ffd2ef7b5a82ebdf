package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

func TestMissingCookieNames(t *testing.T) {
	current := []*network.Cookie{
		{Name: "session", Domain: ".example.com"},
		{Name: "pref", Domain: ".example.com"},
	}

	assert.Empty(t, missingCookieNames([]string{"session", "pref"}, current))
	assert.Equal(t, []string{"auth_token"},
		missingCookieNames([]string{"session", "auth_token"}, current),
		"an expired or cleared login cookie is reported")
	assert.Empty(t, missingCookieNames(nil, current))
	assert.Equal(t, []string{"session"}, missingCookieNames([]string{"session"}, nil))
}
