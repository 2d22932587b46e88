// Package session is the transport layer of the forum client: one
// long-lived HTTP client pinned to a base origin, sharing cookie
// storage, speaking windows-1252 form bodies, with per-fetch redirect
// interception.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"forumcore/lib/forums/wincodec"
	"forumcore/lib/telemetry"
	"forumcore/lib/util/restyutil"

	"github.com/go-resty/resty/v2"
)

// LoginCookieName is the session cookie the forum sets after a
// successful login. Its presence is the only login signal there is;
// no "am I logged in" endpoint exists.
const LoginCookieName = "bbuserid"

const userAgent = "forumcore/1.0 (scrape-and-sync client)"

// Method restricts transport verbs to the two the forum understands.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// ErrRedirectVetoed is returned (wrapped in *RedirectVetoedError) when
// a redirect policy aborts the request. Policies veto by returning an
// error that wraps this sentinel.
var ErrRedirectVetoed = errors.New("redirect was not followed")

// RedirectVetoedError carries the redirect target a policy refused to
// follow. Several operations read their whole answer out of Location.
type RedirectVetoedError struct {
	Location *url.URL
}

func (e *RedirectVetoedError) Error() string {
	return fmt.Sprintf("redirect was not followed: %s", e.Location)
}

func (e *RedirectVetoedError) Unwrap() error { return ErrRedirectVetoed }

// RedirectPolicy inspects a redirect hop before it is followed. The
// policy may mutate req to rewrite the target, return nil to follow,
// or return ErrRedirectVetoed (possibly wrapped) to abort the fetch.
type RedirectPolicy func(req *http.Request, via []*http.Request) error

// Hooks are lifecycle callbacks the UI layer hangs off the session.
// All of them may be nil.
type Hooks struct {
	// FetchStarted and FetchEnded fire exactly once per Fetch call,
	// on every path out of Fetch including errors and cancellation.
	FetchStarted func()
	FetchEnded   func()
	// RemoteLogout fires at most once per detected invalidation: a
	// fetch completed and the login cookie that used to be present
	// is gone.
	RemoteLogout func()
}

// Response is what a completed fetch hands back: the raw bytes plus
// the response metadata after all allowed redirects.
type Response struct {
	Body        []byte
	StatusCode  int
	Header      http.Header
	ContentType string
	FinalURL    *url.URL
}

// Session wraps a single resty client. Safe for concurrent use; the
// per-request redirect bookkeeping travels in the request context so
// concurrent fetches never race on shared state.
type Session struct {
	base  *url.URL
	http  *resty.Client
	jar   *observingJar
	hooks Hooks

	mu          sync.Mutex
	wasLoggedIn bool
}

// New builds a session against baseURL. jar may be nil, in which case
// a fresh in-memory cookie jar is used; passing a shared jar is how a
// login performed elsewhere becomes visible here.
func New(baseURL string, jar http.CookieJar, hooks Hooks) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q has no origin", baseURL)
	}

	ojar, err := newObservingJar(jar)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(base.String())
	client.SetCookieJar(ojar)
	client.SetHeader("User-Agent", userAgent)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(dispatchRedirect))
	telemetry.InstrumentResty(client, "forumcore/forums/session")

	s := &Session{
		base:  base,
		http:  client,
		jar:   ojar,
		hooks: hooks,
	}
	s.wasLoggedIn = s.LoggedIn()
	return s, nil
}

// BaseURL returns the configured origin.
func (s *Session) BaseURL() *url.URL { return s.base }

// CookieJar exposes the shared cookie storage. The session itself
// treats it as read-only apart from what the HTTP stack writes.
func (s *Session) CookieJar() http.CookieJar { return s.jar }

// DumpTraffic mirrors every exchange to out, for debugging scrapes
// against a live server. Call before the first Fetch.
func (s *Session) DumpTraffic(out restyutil.InstrumentOutput) {
	restyutil.DumpTraffic(s.http, out)
}

// per-request redirect state, keyed into the request context
type redirectStateKey struct{}

type redirectState struct {
	policy RedirectPolicy

	mu     sync.Mutex
	vetoed *url.URL
}

// dispatchRedirect runs as the client-wide redirect policy and fans
// out to the per-request policy carried in the context. Redirected
// requests inherit the originating request's context, which is how
// the state arrives here.
func dispatchRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	state, ok := req.Context().Value(redirectStateKey{}).(*redirectState)
	if !ok || state.policy == nil {
		return nil
	}
	if err := state.policy(req, via); err != nil {
		// only a veto records the target; other policy failures are
		// ordinary errors and must not read as vetoes
		if errors.Is(err, ErrRedirectVetoed) {
			state.mu.Lock()
			state.vetoed = cloneURL(req.URL)
			state.mu.Unlock()
		}
		return err
	}
	return nil
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Fetch performs one GET or POST against path (relative to the base
// origin) with the given parameters. A non-nil policy sees every
// redirect before it is followed.
//
// Cancellation arrives through ctx; a cancelled fetch returns an
// error satisfying errors.Is(err, context.Canceled), which callers
// are expected to absorb rather than surface.
func (s *Session) Fetch(ctx context.Context, method Method, path string, params url.Values, policy RedirectPolicy) (*Response, error) {
	if s.hooks.FetchStarted != nil {
		s.hooks.FetchStarted()
	}
	defer func() {
		if s.hooks.FetchEnded != nil {
			s.hooks.FetchEnded()
		}
	}()

	state := &redirectState{policy: policy}
	ctx = context.WithValue(ctx, redirectStateKey{}, state)

	res, err := s.perform(ctx, method, path, params)

	s.checkRemoteLogout()

	if err != nil {
		state.mu.Lock()
		vetoed := state.vetoed
		state.mu.Unlock()
		if vetoed != nil {
			return nil, &RedirectVetoedError{Location: vetoed}
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s %s: %w", method, path, ctx.Err())
		}
		return nil, fmt.Errorf("fetch %s %s: %w", method, path, err)
	}
	return res, nil
}

func (s *Session) perform(ctx context.Context, method Method, path string, params url.Values) (*Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	target := s.base.ResolveReference(ref)

	req := s.http.R().SetContext(ctx)

	encoded, err := wincodec.EncodeForm(params)
	if err != nil {
		return nil, err
	}

	var res *resty.Response
	switch method {
	case MethodGet:
		if encoded != "" {
			if target.RawQuery != "" {
				target.RawQuery += "&" + encoded
			} else {
				target.RawQuery = encoded
			}
		}
		res, err = req.Get(target.String())

	case MethodPost:
		res, err = req.
			SetHeader("Content-Type", "application/x-www-form-urlencoded; charset=windows-1252").
			SetBody(encoded).
			Post(target.String())

	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
	if err != nil {
		return nil, err
	}

	finalURL := target
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL
	}
	return &Response{
		Body:        res.Body(),
		StatusCode:  res.StatusCode(),
		Header:      res.Header(),
		ContentType: res.Header().Get("Content-Type"),
		FinalURL:    cloneURL(finalURL),
	}, nil
}

func (s *Session) checkRemoteLogout() {
	s.mu.Lock()
	now := s.loggedInLocked()
	fire := s.wasLoggedIn && !now
	s.wasLoggedIn = now
	hook := s.hooks.RemoteLogout
	s.mu.Unlock()

	if fire && hook != nil {
		hook()
	}
}
