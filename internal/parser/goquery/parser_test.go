package goqueryparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<a href="/view/1">one</a>
<a href="/view/2?ref=home">two</a>
<a href="/about">about</a>
<a href="http://example.com/view/3">absolute</a>
<a>no href</a>
<div><a href="/view/1#top">again</a></div>
</body></html>`

func TestSelectAnchorsByPrefix(t *testing.T) {
	t.Parallel()

	doc, err := New().Parse([]byte(page))
	require.NoError(t, err)

	require.Equal(t, []string{"/view/1", "/view/2?ref=home", "/view/1#top"}, doc.SelectAnchors("/view"))
	require.Equal(t, []string{"http://example.com/view/3"}, doc.SelectAnchors("http://"))
	require.Len(t, doc.SelectAnchors(""), 5)
}

func TestParseToleratesFragments(t *testing.T) {
	t.Parallel()

	doc, err := New().Parse([]byte(`<a href="/view/9">unclosed`))
	require.NoError(t, err)
	require.Equal(t, []string{"/view/9"}, doc.SelectAnchors("/view"))

	doc, err = New().Parse(nil)
	require.NoError(t, err)
	require.Empty(t, doc.SelectAnchors("/view"))
}
