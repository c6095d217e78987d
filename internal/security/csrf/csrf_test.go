package csrf

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sitegate/internal/session"
)

func TestIssueCheck(t *testing.T) {
	v := New(Config{Secret: "s3cr3t"})
	st := session.NewState("sid-a")

	tk, err := v.Issue(st)
	require.NoError(t, err)
	assert.NoError(t, v.Check(st, tk))
	assert.Equal(t, "csrf_token", v.Field())
}

func TestCheck_OtherSessionFails(t *testing.T) {
	v := New(Config{Secret: "s3cr3t"})
	tk, err := v.Issue(session.NewState("sid-a"))
	require.NoError(t, err)

	err = v.Check(session.NewState("sid-b"), tk)
	assert.ErrorIs(t, err, ErrForgeryCheckFailed)
}

func TestCheck_Failures(t *testing.T) {
	st := session.NewState("sid-a")
	v := New(Config{Secret: "s3cr3t", TTL: time.Minute})

	assert.ErrorIs(t, v.Check(st, ""), ErrForgeryCheckFailed)
	assert.ErrorIs(t, v.Check(st, "garbage"), ErrForgeryCheckFailed)

	other := New(Config{Secret: "another"})
	tk, _ := other.Issue(st)
	assert.ErrorIs(t, v.Check(st, tk), ErrForgeryCheckFailed)

	tk, _ = v.Issue(st)
	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.ErrorIs(t, v.Check(st, tk), ErrForgeryCheckFailed)
}

func TestTokenFromRequest(t *testing.T) {
	form := url.Values{"csrf_token": {"body"}}

	r := httptest.NewRequest(http.MethodPost, "/x?csrf_token=query", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "body", TokenFromRequest(r, "csrf_token", ScopePost))

	r = httptest.NewRequest(http.MethodPost, "/x?csrf_token=query", nil)
	assert.Equal(t, "", TokenFromRequest(r, "csrf_token", ScopePost), "post scope ignores query")

	r = httptest.NewRequest(http.MethodGet, "/x?csrf_token=query", nil)
	assert.Equal(t, "query", TokenFromRequest(r, "csrf_token", ScopeRequest))
}
