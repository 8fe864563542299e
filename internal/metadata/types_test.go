package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebsiteDataIsEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, WebsiteData{}.IsEmpty())
	require.True(t, WebsiteData{Title: "  ", Description: "\t"}.IsEmpty())
	require.True(t, WebsiteData{Icon: "https://example.com/favicon.ico"}.IsEmpty())
	require.False(t, WebsiteData{Title: "Example"}.IsEmpty())
	require.False(t, WebsiteData{Description: "A site"}.IsEmpty())
}

func TestHostname(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://example.com/page":      "example.com",
		"https://www.Example.com":       "example.com",
		"http://sub.example.cn:8080/a":  "sub.example.cn",
		"not a url":                     "",
		"https://www.bilibili.com/v/1?": "bilibili.com",
	}
	for in, want := range cases {
		require.Equal(t, want, Hostname(in), in)
	}
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateURL("https://example.com"))
	require.NoError(t, ValidateURL("http://example.com/path?q=1"))
	require.ErrorIs(t, ValidateURL("example.com"), ErrInvalidURL)
	require.ErrorIs(t, ValidateURL("ftp://example.com"), ErrInvalidURL)
	require.ErrorIs(t, ValidateURL(""), ErrInvalidURL)
	require.ErrorIs(t, ValidateURL("http://%zz"), ErrInvalidURL)
}
