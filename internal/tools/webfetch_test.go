package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebFetchTool(t *testing.T) {
	tool := NewWebFetchTool()
	ctx := context.Background()

	t.Run("extracts text from html", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><script>evil()</script></head>
<body><h1>Release Notes</h1><p>Fixed the race in the loader.</p>
<nav>home about contact</nav></body></html>`))
		}))
		defer srv.Close()

		res, err := tool.Execute(ctx, map[string]any{"url": srv.URL})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "# Release Notes")
		assert.Contains(t, res.Content, "Fixed the race in the loader.")
		assert.NotContains(t, res.Content, "evil()")
		assert.NotContains(t, res.Content, "home about contact")
	})

	t.Run("plain text passes through", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("raw body"))
		}))
		defer srv.Close()

		res, err := tool.Execute(ctx, map[string]any{"url": srv.URL})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, "raw body", res.Content)
	})

	t.Run("non-200 is an error result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		res, err := tool.Execute(ctx, map[string]any{"url": srv.URL})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "HTTP 404")
	})

	t.Run("validation", func(t *testing.T) {
		assert.Error(t, tool.Validate(map[string]any{}))
		assert.Error(t, tool.Validate(map[string]any{"url": "ftp://example.com"}))
		assert.NoError(t, tool.Validate(map[string]any{"url": "https://example.com"}))
	})

	assert.Equal(t, ClassReadOnly, tool.Classification())
}

func TestHTMLToText(t *testing.T) {
	out, err := htmlToText(`<body><h2>Usage</h2><ul><li>step one</li><li>step two</li></ul>
<p>See <a href="https://example.com/docs">the docs</a>.</p></body>`)
	require.NoError(t, err)
	assert.Contains(t, out, "## Usage")
	assert.Contains(t, out, "- step one")
	assert.Contains(t, out, "- step two")
	assert.Contains(t, out, "(https://example.com/docs)")
}
