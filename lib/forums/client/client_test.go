package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"forumcore/lib/forums/document"
	"forumcore/lib/forums/scrape"
	"forumcore/lib/forums/session"
	"forumcore/lib/forums/store"
	"forumcore/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	t.Cleanup(telemetry.SetupForTesting(t, "forums/client"))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess, err := session.New(server.URL, nil, session.Hooks{})
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bridge := store.NewBridge(st)
	t.Cleanup(bridge.Close)
	return New(sess, bridge)
}

func serveHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, body)
}

func TestLogInStoresUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/account.php", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("json"))
		require.Equal(t, "login", r.FormValue("action"))
		require.Equal(t, "frogcity", r.FormValue("username"))
		require.Equal(t, "hunter2", r.FormValue("password"))
		require.Equal(t, "/index.php?json=1", r.FormValue("next"))

		http.SetCookie(w, &http.Cookie{Name: session.LoginCookieName, Value: "55", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"user": {"userid": 55, "username": "frogcity", "receivepm": 1}, "forums": []}`)
	}))

	user, err := c.LogIn(context.Background(), "frogcity", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "55", user.ID)
	require.Equal(t, "frogcity", user.Username)
	require.True(t, user.CanReceivePMs)
	require.True(t, c.LoggedIn())

	stored, ok := c.Store().UserByName("frogcity")
	require.True(t, ok)
	require.Equal(t, user, stored)
}

func TestLogInFailureClearsCookies(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the real server drops a half-set cookie even on bad
		// credentials, then renders the login page again
		http.SetCookie(w, &http.Cookie{Name: session.LoginCookieName, Value: "0", Path: "/"})
		serveHTML(w, `<html><body><form action="account.php"></form></body></html>`)
	}))

	_, err := c.LogIn(context.Background(), "frogcity", "wrong")
	require.ErrorIs(t, err, ErrInvalidLogin)
	require.False(t, c.LoggedIn())
}

func TestLogInSurfacesServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body class="standarderror"><div id="content"><center>
			<h2>Temporarily Unavailable</h2>
			<div class="standard">The database is on fire.</div>
		</center></div></body></html>`)
	}))

	_, err := c.LogIn(context.Background(), "frogcity", "hunter2")
	var serverErr *document.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.False(t, c.LoggedIn())
}

func TestListForums(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/index.php", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("json"))
		w.Header().Set("Content-Type", "application/json")
		// ids arrive as numbers or strings depending on endpoint mood
		io.WriteString(w, `{
			"user": {"userid": "55", "username": "frogcity"},
			"forums": [
				{"id": 48, "title": "Main", "has_threads": 0, "sub_forums": [
					{"id": "273", "title": "General Discussion", "title_short": "GBS", "has_threads": 1}
				]},
				{"id": 51, "title": "Community", "has_threads": 1}
			]
		}`)
	}))

	forums, err := c.ListForums(context.Background())
	require.NoError(t, err)
	require.Len(t, forums, 3)

	require.Equal(t, "48", forums[0].ID)
	require.Equal(t, "", forums[0].ParentForumID)
	require.Equal(t, 0, forums[0].Position)

	require.Equal(t, "273", forums[1].ID)
	require.Equal(t, "General Discussion", forums[1].Name)
	require.Equal(t, "48", forums[1].ParentForumID)
	require.Equal(t, 1, forums[1].Position)

	require.Equal(t, "51", forums[2].ID)
	require.Equal(t, 2, forums[2].Position)
}

const clientPostsPage = `<html><body data-thread="42" data-forum="273">
<div class="breadcrumbs">
	<a href="forumdisplay.php?forumid=273">GBS</a>
	<a class="bclast" href="showthread.php?threadid=42">Cool thread</a>
</div>
<div class="pages"><select>
	<option value="1">1</option>
	<option value="2" selected>2</option>
	<option value="3">3</option>
</select></div>
<table class="post" id="post9001" data-idx="41">
	<tr class="seen1">
		<td class="userinfo userid-55">
			<dl class="userinfo"><dt class="author op">frogcity</dt><dd class="registered">Oct 11, 2001</dd></dl>
		</td>
		<td class="postbody">first post on page two</td>
	</tr>
	<tr><td class="postdate"><ul class="postbuttons"><li><a href="editpost.php?action=editpost&amp;postid=9001">Edit</a></li></ul>Mar 2, 2024 12:00</td></tr>
</table>
<table class="post" id="post9002" data-idx="42">
	<tr class="seen2">
		<td class="userinfo userid-77">
			<dl class="userinfo"><dt class="author">poster2</dt></dl>
		</td>
		<td class="postbody">second</td>
	</tr>
	<tr><td class="postdate">Mar 2, 2024 12:05</td></tr>
</table>
</body></html>`

func TestListPostsPinsPerPageAcrossRedirect(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/showthread.php", r.URL.Path)
		q := r.URL.Query()
		if q.Get("goto") == "newpost" {
			// the server reflects the account's 25-per-page
			// preference into the redirect target
			http.Redirect(w, r, "/showthread.php?threadid=42&pagenumber=2&perpage=25#pti2", http.StatusFound)
			return
		}
		require.Equal(t, "40", q.Get("perpage"))
		require.Equal(t, "2", q.Get("pagenumber"))
		serveHTML(w, clientPostsPage)
	}))

	page, err := c.ListPosts(context.Background(), "42", "", NextUnreadPage, true)
	require.NoError(t, err)
	require.Equal(t, 2, page.PageNumber)
	require.Equal(t, 3, page.PageCount)
	require.Equal(t, 2, page.FirstUnread)
	require.Len(t, page.Posts, 2)

	first := page.Posts[0]
	require.Equal(t, "9001", first.ID)
	require.Equal(t, 41, first.ThreadIndex)
	require.Equal(t, "42", first.ThreadID)
	require.True(t, first.Editable)
	require.Equal(t, 2, first.Page())

	// the thread context came along for free
	thread := c.Store().Thread("42")
	require.Equal(t, "Cool thread", thread.Title)
	require.Equal(t, "273", thread.ForumID)
}

func TestLocatePost(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, "post", r.URL.Query().Get("goto"))
		require.Equal(t, "123", r.URL.Query().Get("postid"))
		require.Equal(t, "1", r.URL.Query().Get("noseen"))
		http.Redirect(w, r, "/showthread.php?threadid=77&pagenumber=3&perpage=40", http.StatusFound)
	}))

	post, page, err := c.LocatePost(context.Background(), "123", false)
	require.NoError(t, err)
	require.Equal(t, "123", post.ID)
	require.Equal(t, "77", post.ThreadID)
	require.Equal(t, SpecificPage(3), page)
	// the redirect was vetoed, so the page body was never fetched
	require.Equal(t, int32(1), requests.Load())

	// the thread association was persisted, not just returned
	require.Equal(t, "77", c.Store().Post("123").ThreadID)
}

func TestLocatePostWithoutRedirectFails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body>here is a page instead</body></html>`)
	}))

	_, _, err := c.LocatePost(context.Background(), "123", false)
	require.ErrorContains(t, err, "did not redirect")
}

const replyFormPage = `<html><body>
<form name="vbform" action="newreply.php" method="post">
	<input type="hidden" name="action" value="postreply">
	<input type="hidden" name="threadid" value="42">
	<input type="hidden" name="formkey" value="key123">
	<textarea name="message"></textarea>
	<input type="submit" name="submit" value="Submit Reply">
	<input type="submit" name="preview" value="Preview Reply">
</form>
</body></html>`

func TestReply(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/newreply.php", r.URL.Path)
		if r.Method == http.MethodGet {
			require.Equal(t, "newreply", r.URL.Query().Get("action"))
			require.Equal(t, "42", r.URL.Query().Get("threadid"))
			serveHTML(w, replyFormPage)
			return
		}
		// the scraped form round-trips, hidden fields and all
		require.Equal(t, "postreply", r.FormValue("action"))
		require.Equal(t, "key123", r.FormValue("formkey"))
		require.Equal(t, "hello [b]world[/b]", r.FormValue("message"))
		require.Equal(t, "Submit Reply", r.FormValue("submit"))
		require.Empty(t, r.FormValue("preview"))
		serveHTML(w, `<html><body>
			<a href="showthread.php?goto=post&amp;postid=999">your post</a>
		</body></html>`)
	}))

	loc, err := c.Reply(context.Background(), "42", "hello [b]world[/b]")
	require.NoError(t, err)
	require.Equal(t, "999", loc.PostID)
	require.False(t, loc.LastPage)
}

func TestReplyToClosedThreadIsForbidden(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body><div id="content"><center>
			<div class="standard">This thread is closed to new posts.</div>
		</center></div></body></html>`)
	}))

	_, err := c.Reply(context.Background(), "42", "too late")
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

const ignoreListPage = `<html><body>
<form action="member2.php" method="post">
	<input type="hidden" name="action" value="updatelist">
	<input type="hidden" name="userlist" value="ignore">
	<input type="hidden" name="formkey" value="key456">
	<input type="text" name="listbits[0]" value="frogcity">
	<input type="text" name="listbits[1]" value="">
	<input type="submit" name="submit" value="Update List">
</form>
</body></html>`

func TestUpdateIgnoredUsers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/member2.php", r.URL.Path)
		if r.Method == http.MethodGet {
			serveHTML(w, ignoreListPage)
			return
		}
		require.Equal(t, "updatelist", r.FormValue("action"))
		require.Equal(t, "ignore", r.FormValue("userlist"))
		require.Equal(t, "key456", r.FormValue("formkey"))
		require.Equal(t, "frogcity", r.FormValue("listbits[0]"))
		require.Equal(t, "newbie", r.FormValue("listbits[1]"))
		serveHTML(w, `<html><body><div class="inner">Your ignore list has been updated!</div></body></html>`)
	}))

	ctx := context.Background()
	form, err := c.ListIgnoredUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"frogcity"}, form.Usernames)

	form.Add("newbie")
	require.NoError(t, c.UpdateIgnoredUsers(ctx, form))
}

func TestUpdateIgnoredUsersRejection(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			serveHTML(w, ignoreListPage)
			return
		}
		serveHTML(w, `<html><body class="standarderror"><div id="content"><center>
			<h2>Error</h2>
			<div class="standard"><div class="inner">Sorry MegaMod is a moderator/admin and you cannot ignore them.</div></div>
		</center></div></body></html>`)
	}))

	ctx := context.Background()
	form, err := c.ListIgnoredUsers(ctx)
	require.NoError(t, err)
	form.Add("MegaMod")

	err = c.UpdateIgnoredUsers(ctx, form)
	var change *scrape.IgnoreListChangeError
	require.ErrorAs(t, err, &change)
	require.Equal(t, "MegaMod", change.ProblemUsername)
}

func TestAddIgnoredUsernameAlreadyListedIsNoop(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		serveHTML(w, ignoreListPage)
	}))

	// frogcity is already on the scraped list
	require.NoError(t, c.AddIgnoredUsername(context.Background(), "frogcity"))
	require.Equal(t, int32(0), posts.Load())
}

func TestAddIgnoredUsernameSubmitsNewName(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			serveHTML(w, ignoreListPage)
			return
		}
		require.Equal(t, "frogcity", r.FormValue("listbits[0]"))
		require.Equal(t, "newbie", r.FormValue("listbits[1]"))
		serveHTML(w, `<html><body><div class="inner">Your ignore list has been updated!</div></body></html>`)
	}))

	require.NoError(t, c.AddIgnoredUsername(context.Background(), "newbie"))
}

func TestRemoveIgnoredUserMissingIsNoop(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		serveHTML(w, ignoreListPage)
	}))

	require.NoError(t, c.RemoveIgnoredUser(context.Background(), "nobody"))
	require.Equal(t, int32(0), posts.Load())
}

func TestReportToleratesErrorPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/modalert.php", r.URL.Path)
		require.Equal(t, "submit", r.FormValue("action"))
		require.Equal(t, "7777", r.FormValue("postid"))
		require.Equal(t, "yes", r.FormValue("nws"))
		require.Equal(t, "spam", r.FormValue("comments"))
		serveHTML(w, `<html><body class="standarderror"><div id="content"><center>
			<h2>Error</h2>
			<div class="standard">Something went sideways.</div>
		</center></div></body></html>`)
	}))

	// reports count even when the answer page is an error
	require.NoError(t, c.Report(context.Background(), "7777", true, "spam"))
}

func TestRemoteLogoutDetectedMidSession(t *testing.T) {
	var loggedOut atomic.Int32
	expire := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if expire {
			http.SetCookie(w, &http.Cookie{Name: session.LoginCookieName, Value: "", Path: "/", MaxAge: -1})
		} else {
			http.SetCookie(w, &http.Cookie{Name: session.LoginCookieName, Value: "55", Path: "/"})
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"user": {"userid": "55", "username": "frogcity"}, "forums": []}`)
	}))
	t.Cleanup(server.Close)

	sess, err := session.New(server.URL, nil, session.Hooks{
		RemoteLogout: func() { loggedOut.Add(1) },
	})
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	c := New(sess, store.NewBridge(st))

	ctx := context.Background()
	_, err = c.LogIn(ctx, "frogcity", "hunter2")
	require.NoError(t, err)
	require.True(t, c.LoggedIn())

	expire = true
	_, err = c.ListForums(ctx)
	require.NoError(t, err)
	require.False(t, c.LoggedIn())
	require.Equal(t, int32(1), loggedOut.Load())
}

func TestSendPrivateMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/private.php", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "dosend", r.FormValue("action"))
		require.Equal(t, "penpal", r.FormValue("touser"))
		require.Equal(t, "hello there", r.FormValue("title"))
		require.Equal(t, "0", r.FormValue("iconid"))
		require.Equal(t, "hi!", r.FormValue("message"))
		require.Equal(t, "yes", r.FormValue("savecopy"))
		require.Equal(t, "888", r.FormValue("prevmessageid"))
		require.Equal(t, "true", r.FormValue("forward"))
		serveHTML(w, `<html><body><div class="inner">Message sent!</div></body></html>`)
	}))

	err := c.SendPrivateMessage(context.Background(), "penpal", "hello there", "", "hi!",
		RelevantMessage{MessageID: "888", Forwarding: true})
	require.NoError(t, err)
}

func TestProfileWithoutUserIDFails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body><div class="mainbody">nothing useful</div></body></html>`)
	}))

	_, err := c.ProfileByID(context.Background(), "55")
	require.Error(t, err)
}

func TestListThreadsSweepsVanishedThreads(t *testing.T) {
	// page one shows threads 100 and 200; a later fetch shows only
	// 100, so 200 must fall off the cached first page
	second := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forumdisplay.php", r.URL.Path)
		require.Equal(t, "273", r.URL.Query().Get("forumid"))
		require.Equal(t, "40", r.URL.Query().Get("perpage"))
		rows := `<tr class="thread" id="thread100" data-forum="273">
			<td class="star"></td>
			<td class="title"><a class="thread_title" href="showthread.php?threadid=100">Thread one</a></td>
			<td class="author"><a href="member.php?action=getinfo&amp;userid=55">frogcity</a></td>
			<td class="replies">12</td>
		</tr>`
		if !second {
			rows += `<tr class="thread" id="thread200" data-forum="273">
				<td class="star"></td>
				<td class="title"><a class="thread_title" href="showthread.php?threadid=200">Thread two</a></td>
				<td class="author"><a href="member.php?action=getinfo&amp;userid=77">poster2</a></td>
				<td class="replies">3</td>
			</tr>`
		}
		serveHTML(w, fmt.Sprintf(`<html><body data-forum="273">
			<div class="breadcrumbs"><a class="bclast" href="forumdisplay.php?forumid=273">GBS</a></div>
			<table id="forum">%s</table>
		</body></html>`, rows))
	}))

	ctx := context.Background()
	threads, err := c.ListThreads(ctx, "273", "", 1)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	second = true
	threads, err = c.ListThreads(ctx, "273", "", 1)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Equal(t, "100", threads[0].ID)

	gone := c.Store().Thread("200")
	require.Equal(t, 0, gone.ThreadListPage)
}

func TestReturnedObjectsBelongToForeground(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body data-forum="273">
			<div class="breadcrumbs"><a class="bclast" href="forumdisplay.php?forumid=273">GBS</a></div>
			<table id="forum"><tr class="thread" id="thread100" data-forum="273">
				<td class="star"></td>
				<td class="title"><a class="thread_title" href="showthread.php?threadid=100">Thread one</a></td>
				<td class="author"><a href="member.php?action=getinfo&amp;userid=55">frogcity</a></td>
				<td class="replies">12</td>
			</tr></table>
		</body></html>`)
	}))

	threads, err := c.ListThreads(context.Background(), "273", "", 1)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	// callers get the caller-facing context's object, never the live
	// object the scrape upserts are still writing into
	require.Same(t, c.bridge.Foreground().Thread("100"), threads[0])
	require.NotSame(t, c.bridge.Background().Thread("100"), threads[0])
	require.Same(t, c.Store().Thread("100"), threads[0])
}

func TestListPostsByAuthorKeepsThreadIndex(t *testing.T) {
	// an author-filtered page numbers posts relative to the filter;
	// post 9001 is really index 41 but shows up as the author's first
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "55", r.URL.Query().Get("userid"))
		serveHTML(w, `<html><body data-thread="42" data-forum="273">
			<div class="breadcrumbs"><a class="bclast" href="showthread.php?threadid=42">Cool thread</a></div>
			<table class="post" id="post9001" data-idx="1">
				<tr class="seen1">
					<td class="userinfo userid-55"><dl class="userinfo"><dt class="author">frogcity</dt></dl></td>
					<td class="postbody">first post on page two</td>
				</tr>
				<tr><td class="postdate">Mar 2, 2024 12:00</td></tr>
			</table>
		</body></html>`)
	}))

	seeded := c.Store().Post("9001")
	seeded.ThreadID = "42"
	seeded.ThreadIndex = 41
	c.Store().Touch(seeded.Key())
	_, err := c.Store().Save()
	require.NoError(t, err)

	page, err := c.ListPosts(context.Background(), "42", "55", SpecificPage(1), false)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)

	post := c.Store().Post("9001")
	require.Equal(t, 41, post.ThreadIndex)
	require.Equal(t, 2, post.Page())
	require.Equal(t, 1, post.FilteredThreadIndex)
	require.Equal(t, 1, post.FilteredPage())
}
