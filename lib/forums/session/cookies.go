package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// observingJar wraps the shared cookie jar so the session can watch
// the login cookie's expiry go by. http.CookieJar strips expiry
// metadata on read, so the only chance to see it is at set time.
type observingJar struct {
	inner http.CookieJar

	mu          sync.Mutex
	loginExpiry time.Time
}

func newObservingJar(inner http.CookieJar) (*observingJar, error) {
	if inner == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		inner = jar
	}
	return &observingJar{inner: inner}, nil
}

func (j *observingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Name != LoginCookieName {
			continue
		}
		j.mu.Lock()
		if c.MaxAge < 0 {
			j.loginExpiry = time.Time{}
		} else {
			j.loginExpiry = c.Expires
		}
		j.mu.Unlock()
	}
	j.inner.SetCookies(u, cookies)
}

func (j *observingJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

func (j *observingJar) observedLoginExpiry() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loginExpiry
}

// LoggedIn reports whether the login cookie is present for the base
// origin. This is a passive, synchronous check; no request is made.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedInLocked()
}

func (s *Session) loggedInLocked() bool {
	for _, c := range s.jar.Cookies(s.base) {
		if c.Name == LoginCookieName {
			return true
		}
	}
	return false
}

// ClearLoginCookies expires the forum's login cookies in the shared
// jar, making the session appear logged out. A half-succeeded login
// (cookie set, but the server answered with an error page) leaves the
// jar in a state nothing can use; this resets it.
func (s *Session) ClearLoginCookies() {
	s.jar.SetCookies(s.base, []*http.Cookie{
		{Name: LoginCookieName, Path: "/", MaxAge: -1},
		{Name: "bbpassword", Path: "/", MaxAge: -1},
	})
	s.mu.Lock()
	s.wasLoggedIn = false
	s.mu.Unlock()
}

// LoginCookieExpiry returns when the current login session expires,
// if a login cookie is present and its expiry was observed.
func (s *Session) LoginCookieExpiry() (time.Time, bool) {
	if !s.LoggedIn() {
		return time.Time{}, false
	}
	expiry := s.jar.observedLoginExpiry()
	return expiry, !expiry.IsZero()
}
