package browser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFragmentURL(t *testing.T) {
	assert.True(t, isFragmentURL("https://cdn.example.com/v/seg_00042.ts"))
	assert.True(t, isFragmentURL("https://cdn.example.com/v/chunk-7.TS?token=abc"))
	assert.False(t, isFragmentURL("https://cdn.example.com/v/playlist.m3u8"))
	assert.False(t, isFragmentURL("https://cdn.example.com/v/poster.jpg"))
	assert.False(t, isFragmentURL("://not a url"))
}

func TestStoredCookieParsing(t *testing.T) {
	data := []byte(`[
		{"name": "session", "value": "abc123", "domain": ".example.com",
		 "path": "/", "expires": 1924905600, "httpOnly": true, "secure": true},
		{"name": "pref", "value": "dark", "domain": ".example.com", "path": "/"}
	]`)

	var cookies []storedCookie
	require.NoError(t, json.Unmarshal(data, &cookies))
	require.Len(t, cookies, 2)

	assert.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.Equal(t, int64(1924905600), epochTime(cookies[0].Expires).Unix())
	assert.Zero(t, cookies[1].Expires, "session cookies carry no expiry")
}
