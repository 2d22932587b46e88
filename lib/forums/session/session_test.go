package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, handler http.Handler, hooks Hooks) (*Session, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := New(server.URL, nil, hooks)
	require.NoError(t, err)
	return s, server
}

func TestFetchGet(t *testing.T) {
	var starts, ends atomic.Int32
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/showthread.php", r.URL.Path)
		require.Equal(t, "123", r.URL.Query().Get("threadid"))
		require.Contains(t, r.Header.Get("User-Agent"), "forumcore")
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		io.WriteString(w, "<html><body>ok</body></html>")
	}), Hooks{
		FetchStarted: func() { starts.Add(1) },
		FetchEnded:   func() { ends.Add(1) },
	})

	res, err := s.Fetch(context.Background(), MethodGet, "showthread.php", url.Values{"threadid": {"123"}}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "ok")
	require.Equal(t, "/showthread.php", res.FinalURL.Path)
	require.Equal(t, int32(1), starts.Load())
	require.Equal(t, int32(1), ends.Load())
}

func TestFetchPostBodyIsWin1252(t *testing.T) {
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		// cafe-with-accent must arrive as the single win1252 byte,
		// the kanji as a decimal character reference
		require.Equal(t, "message=caf%E9+%26%2312371%3B", string(body))
		require.Contains(t, r.Header.Get("Content-Type"), "windows-1252")
	}), Hooks{})

	_, err := s.Fetch(context.Background(), MethodPost, "newreply.php", url.Values{"message": {"café こ"}}, nil)
	require.NoError(t, err)
}

func TestRedirectsFollowedByDefault(t *testing.T) {
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/finish", http.StatusFound)
			return
		}
		io.WriteString(w, "arrived")
	}), Hooks{})

	res, err := s.Fetch(context.Background(), MethodGet, "start", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "/finish", res.FinalURL.Path)
	require.Contains(t, string(res.Body), "arrived")
}

func TestRedirectPolicyRewrite(t *testing.T) {
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/finish?perpage=25", http.StatusFound)
		case "/finish":
			io.WriteString(w, "perpage="+r.URL.Query().Get("perpage"))
		}
	}), Hooks{})

	policy := func(req *http.Request, via []*http.Request) error {
		q := req.URL.Query()
		q.Set("perpage", "40")
		req.URL.RawQuery = q.Encode()
		return nil
	}
	res, err := s.Fetch(context.Background(), MethodGet, "start", nil, policy)
	require.NoError(t, err)
	require.Contains(t, string(res.Body), "perpage=40")
}

func TestRedirectVetoCarriesTargetURL(t *testing.T) {
	var starts, ends atomic.Int32
	s, server := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/locate" {
			http.Redirect(w, r, "/showthread.php?threadid=42&pagenumber=3&goto=post", http.StatusFound)
			return
		}
		t.Error("redirect target should never be fetched")
	}), Hooks{
		FetchStarted: func() { starts.Add(1) },
		FetchEnded:   func() { ends.Add(1) },
	})

	policy := func(req *http.Request, via []*http.Request) error {
		return ErrRedirectVetoed
	}
	_, err := s.Fetch(context.Background(), MethodGet, "locate", nil, policy)

	var vetoed *RedirectVetoedError
	require.True(t, errors.As(err, &vetoed))
	require.Equal(t, server.URL+"/showthread.php?threadid=42&pagenumber=3&goto=post", vetoed.Location.String())

	// lifecycle hooks still fire on the veto path
	require.Equal(t, int32(1), starts.Load())
	require.Equal(t, int32(1), ends.Load())
}

func TestRedirectPolicyFailureIsNotAVeto(t *testing.T) {
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		t.Error("redirect target should never be fetched")
	}), Hooks{})

	policy := func(req *http.Request, via []*http.Request) error {
		return errors.New("hop inspection went wrong")
	}
	_, err := s.Fetch(context.Background(), MethodGet, "start", nil, policy)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRedirectVetoed)

	var vetoed *RedirectVetoedError
	require.False(t, errors.As(err, &vetoed))
	require.ErrorContains(t, err, "hop inspection went wrong")
}

func TestCancellationDistinguishable(t *testing.T) {
	var ends atomic.Int32
	release := make(chan struct{})
	s, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}), Hooks{
		FetchEnded: func() { ends.Add(1) },
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := s.Fetch(ctx, MethodGet, "slow", nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, int32(1), ends.Load())
}

func TestRemoteLogoutFiresOnce(t *testing.T) {
	var logouts atomic.Int32
	var s *Session
	s, server := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html></html>")
	}), Hooks{
		RemoteLogout: func() { logouts.Add(1) },
	})

	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	// log in by planting the cookie in shared storage
	s.CookieJar().SetCookies(base, []*http.Cookie{{
		Name: LoginCookieName, Value: "12345",
		Expires: time.Now().Add(time.Hour),
	}})
	require.True(t, s.LoggedIn())

	_, err = s.Fetch(context.Background(), MethodGet, "index.php", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int32(0), logouts.Load())

	// the session is invalidated out from under us
	s.CookieJar().SetCookies(base, []*http.Cookie{{
		Name: LoginCookieName, Value: "", MaxAge: -1,
	}})
	require.False(t, s.LoggedIn())

	_, err = s.Fetch(context.Background(), MethodGet, "index.php", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), logouts.Load())

	// repeated fetches while logged out do not re-fire
	_, err = s.Fetch(context.Background(), MethodGet, "index.php", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), logouts.Load())
}

func TestLoginCookieExpiry(t *testing.T) {
	s, server := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), Hooks{})
	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	_, ok := s.LoginCookieExpiry()
	require.False(t, ok)

	expiry := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	s.CookieJar().SetCookies(base, []*http.Cookie{{
		Name: LoginCookieName, Value: "12345", Expires: expiry,
	}})

	got, ok := s.LoginCookieExpiry()
	require.True(t, ok)
	require.True(t, got.Equal(expiry))
}
