package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlainPage(t *testing.T) {
	parsed, err := Parse([]byte(`<html><body><div id="content">hello</div></body></html>`), "text/html; charset=utf-8", nil)
	require.NoError(t, err)
	require.Equal(t, "hello", parsed.Doc.Find("#content").Text())
}

func TestParseDecodesWin1252(t *testing.T) {
	body := []byte{'<', 'p', '>', 'c', 'a', 'f', 0xe9, '<', '/', 'p', '>'}
	parsed, err := Parse(body, "text/html; charset=windows-1252", nil)
	require.NoError(t, err)
	require.Equal(t, "café", parsed.Doc.Find("p").Text())
}

func TestDatabaseUnavailableSniff(t *testing.T) {
	page := `<html><body class="database_error">
		<h1>Database Unavailable</h1>
		<p>The database is currently not available. Please try again later.</p>
	</body></html>`
	_, err := Parse([]byte(page), "text/html; charset=utf-8", nil)
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	require.Equal(t, ServerErrorDatabaseUnavailable, serverErr.Kind)
	require.Equal(t, "Database Unavailable", serverErr.Title)
	require.Contains(t, serverErr.Message, "try again later")
}

func TestStandardErrorSniff(t *testing.T) {
	page := `<html><body class="standarderror"><div id="content"><center>
		<h2>Error!</h2>
		<div class="standard"><div class="inner">You do not have permission to view this page.</div></div>
	</center></div></body></html>`
	_, err := Parse([]byte(page), "text/html; charset=utf-8", nil)
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	require.Equal(t, ServerErrorStandard, serverErr.Kind)
	require.Equal(t, "Error!", serverErr.Title)
	require.Equal(t, "You do not have permission to view this page.", serverErr.Message)
}

func TestOrdinaryStandardDivIsNotAnError(t *testing.T) {
	// plenty of normal pages carry a div.standard; only the error
	// body class marks a server error page
	page := `<html><body><div id="content"><center>
		<div class="standard"><div class="inner">Sorry MegaMod is a moderator/admin and you cannot ignore them.</div></div>
	</center></div></body></html>`
	_, err := Parse([]byte(page), "text/html; charset=utf-8", nil)
	require.NoError(t, err)
}

func TestBannedSniff(t *testing.T) {
	page := `<html><body class="standarderror"><div id="content"><center>
		<h2>You've Been Banned!</h2>
		<div class="standard"><div class="inner">See the rules for details.</div></div>
	</center></div></body></html>`
	_, err := Parse([]byte(page), "text/html; charset=utf-8", nil)
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	require.Equal(t, ServerErrorBanned, serverErr.Kind)
}
