package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownRender(t *testing.T) {
	md := NewMarkdown()

	html, err := md.Render("**Paris** is the capital.")
	require.NoError(t, err)
	assert.Equal(t, "<p><strong>Paris</strong> is the capital.</p>\n", html)

	html, err = md.Render("~~Lyon~~")
	require.NoError(t, err)
	assert.Contains(t, html, "<del>Lyon</del>")

	html, err = md.Render("")
	require.NoError(t, err)
	assert.Empty(t, html)
}
