package wincodec

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeAsciiUntouched(t *testing.T) {
	inputs := []string{
		"",
		"hello",
		"action=getinfo&userid=12345",
		"punctuation !\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~",
	}
	for _, s := range inputs {
		require.Equal(t, s, Escape(s))
	}
}

func TestEscapeWin1252Repertoire(t *testing.T) {
	// characters that are in windows-1252 despite being outside latin1
	require.Equal(t, "“smart quotes” — and €", Escape("“smart quotes” — and €"))
	require.Equal(t, "café", Escape("café"))
}

func TestEscapeOutOfRepertoire(t *testing.T) {
	require.Equal(t, "&#12371;&#12435;", Escape("こん"))
	require.Equal(t, "snowman &#9731;!", Escape("snowman ☃!"))
	// astral plane
	require.Equal(t, "&#128169;", Escape("\U0001f4a9"))
}

func TestEscapeNeverEmptyAndAlwaysRepresentable(t *testing.T) {
	inputs := []string{"こ", "a☃b", "\U0001f600\U0001f600", "cyrillic ж"}
	for _, s := range inputs {
		out := Escape(s)
		require.NotEmpty(t, out)
		for _, r := range out {
			require.True(t, Representable(r), "rune %q should be representable", r)
		}
	}
}

func TestEscapeValuesIndependentKeysAndValues(t *testing.T) {
	params := url.Values{
		"message":  {"post こん body"},
		"k☃y": {"plain"},
	}
	escaped := EscapeValues(params)
	require.Equal(t, url.Values{
		"message":  {"post &#12371;&#12435; body"},
		"k&#9731;y": {"plain"},
	}, escaped)
}

func TestEncodeForm(t *testing.T) {
	body, err := EncodeForm(url.Values{"title": {"café こ"}})
	require.NoError(t, err)
	// cafe-with-accent is a single 0xE9 byte in win1252; the NCR is plain ASCII
	require.Equal(t, "title=caf%E9+%26%2312371%3B", body)
}

func TestDecodeBody(t *testing.T) {
	decoded, err := DecodeBody([]byte{'c', 'a', 'f', 0xe9}, "text/html; charset=windows-1252")
	require.NoError(t, err)
	require.Equal(t, "café", string(decoded))

	// no declared charset: assume win1252
	decoded, err = DecodeBody([]byte{0x93, 'h', 'i', 0x94}, "")
	require.NoError(t, err)
	require.Equal(t, "“hi”", string(decoded))

	// utf-8 passes through
	decoded, err = DecodeBody([]byte("café"), "text/html; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "café", string(decoded))
}
