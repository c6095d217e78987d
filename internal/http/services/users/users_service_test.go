package users

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sitegate/internal/auth"
	"github.com/dropDatabas3/sitegate/internal/flash"
	"github.com/dropDatabas3/sitegate/internal/mailer"
	"github.com/dropDatabas3/sitegate/internal/menu"
	"github.com/dropDatabas3/sitegate/internal/redirect"
	"github.com/dropDatabas3/sitegate/internal/security/csrf"
	"github.com/dropDatabas3/sitegate/internal/session"
)

type fakeAuth struct {
	loginErr  error
	logoutErr error
	onLogin   func(st *session.State)

	loginCalls  int
	gotCreds    auth.Credentials
	gotOpts     auth.LoginOptions
	logoutCalls int
	gotLogout   auth.LogoutOptions
}

func (f *fakeAuth) Login(_ context.Context, st *session.State, c auth.Credentials, o auth.LoginOptions) error {
	f.loginCalls++
	f.gotCreds, f.gotOpts = c, o
	if f.loginErr != nil {
		return f.loginErr
	}
	_ = st.Set(session.KeyUserID, "u1")
	if f.onLogin != nil {
		f.onLogin(st)
	}
	return nil
}

func (f *fakeAuth) Logout(_ context.Context, st *session.State, _ *string, o auth.LogoutOptions) error {
	f.logoutCalls++
	f.gotLogout = o
	if f.logoutErr != nil {
		return f.logoutErr
	}
	return st.Delete(session.KeyUserID)
}

type captureSender struct {
	sent int
	to   string
	err  error
}

func (c *captureSender) Send(_ context.Context, to, _, _, _ string) error {
	c.sent++
	c.to = to
	return c.err
}

type fixture struct {
	svc    Service
	auth   *fakeAuth
	menu   *menu.StaticStore
	csrf   *csrf.Validator
	sender *captureSender
	st     *session.State
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := menu.NewStaticStore(
		menu.Item{ID: 101, Language: menu.AllLanguages, Home: true, Params: map[string]string{"logout": "102"}},
		menu.Item{ID: 102, Language: "fr"},
		menu.Item{ID: 103, Language: "*"},
		menu.Item{ID: 104, Language: "de", Home: true},
		menu.Item{ID: 105, Language: "*"},
	)
	site := redirect.MustSite("https://example.org/")
	mres := menu.NewResolver(store, nil, 0)
	v := csrf.New(csrf.Config{Secret: "test-secret"})
	fa := &fakeAuth{}
	cs := &captureSender{}
	rem, err := mailer.NewReminder(cs)
	require.NoError(t, err)
	users := auth.NewStaticUserStore(
		auth.User{Username: "alice", Email: "alice@example.org"},
		auth.User{Username: "bob", Email: "bob@example.org", Blocked: true},
	)
	s := NewService(Deps{
		Auth:     fa,
		Returns:  redirect.NewResolver(site, mres),
		Menu:     mres,
		CSRF:     v,
		Users:    users,
		Reminder: rem,
		Config:   cfg,
	})
	return &fixture{svc: s, auth: fa, menu: store, csrf: v, sender: cs, st: session.NewState("sid-1")}
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tk, err := f.csrf.Issue(f.st)
	require.NoError(t, err)
	return tk
}

// ─── Login ───

func TestLogin_SuccessInternalReturn(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.st.Set(session.KeyLoginFormData, session.LoginFormData{Return: "old"}))

	res, err := f.svc.Login(ctx, f.st, LoginInput{
		Token:    f.token(t),
		Return:   "aW5kZXguaHRtbA==",
		Username: "alice",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "index.html", res.Location)
	assert.False(t, f.st.Has(session.KeyLoginFormData))
	assert.False(t, f.st.Bool(session.KeyRememberLogin))
	assert.Nil(t, res.Message)

	assert.Equal(t, "alice", f.auth.gotCreds.Username)
	assert.Equal(t, "s3cret", f.auth.gotCreds.Password)
	assert.Equal(t, auth.LoginOptions{Remember: false, Return: "index.html"}, f.auth.gotOpts)
}

func TestLogin_DefaultsToProfileView(t *testing.T) {
	f := newFixture(t, Config{})
	for _, ret := range []string{"", redirect.Encode("https://evil.example/")} {
		res, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Return: ret, Username: "a", Password: "b"})
		require.NoError(t, err)
		assert.Equal(t, "index.php?option=com_users&view=profile", res.Location)
	}
}

func TestLogin_FailureScrubsFormData(t *testing.T) {
	f := newFixture(t, Config{})
	f.auth.loginErr = auth.ErrInvalidCredentials

	res, err := f.svc.Login(context.Background(), f.st, LoginInput{
		Token:     f.token(t),
		Return:    redirect.Encode("index.html"),
		Username:  "alice",
		Password:  "wrong",
		SecretKey: "123456",
		Remember:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "index.php?option=com_users&view=login", res.Location)

	var fd session.LoginFormData
	ok, err := f.st.Get(session.KeyLoginFormData, &fd)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.LoginFormData{Return: "index.html", Remember: 1}, fd)
	assert.False(t, f.st.Has(session.KeyRememberLogin))
	assert.Equal(t, "index.html", f.st.String(session.KeyLoginFormReturn))
}

func TestLogin_ContinueStateIsFailure(t *testing.T) {
	f := newFixture(t, Config{LoginMessage: true})
	f.auth.loginErr = auth.ErrSecretKeyRequired

	res, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Username: "carol", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "index.php?option=com_users&view=login", res.Location)
	assert.Nil(t, res.Message)
}

func TestLogin_ForgeryAbortsBeforeAnything(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: "bogus", Return: redirect.Encode("index.html")})
	assert.ErrorIs(t, err, csrf.ErrForgeryCheckFailed)
	assert.Zero(t, f.auth.loginCalls)
	assert.False(t, f.st.Has(session.KeyLoginFormReturn))
}

func TestLogin_LookupErrorAborts(t *testing.T) {
	f := newFixture(t, Config{Multilingual: true})
	_, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Return: redirect.Encode("999")})
	require.Error(t, err)
	assert.True(t, menu.IsLookupError(err))
	assert.Zero(t, f.auth.loginCalls)
	assert.False(t, f.st.Has(session.KeyLoginFormReturn))
}

func TestLogin_MenuItemReturnWithLanguage(t *testing.T) {
	f := newFixture(t, Config{Multilingual: true})
	res, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Return: redirect.Encode("102"), Username: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, "index.php?Itemid=102&lang=fr", res.Location)
}

func TestLogin_RememberAndMessage(t *testing.T) {
	f := newFixture(t, Config{LoginMessage: true})
	res, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Username: "a", Password: "b", Remember: true, Lang: "es"})
	require.NoError(t, err)
	assert.True(t, f.st.Bool(session.KeyRememberLogin))
	require.NotNil(t, res.Message)
	assert.Equal(t, "Has iniciado sesión.", res.Message.Text)

	q, err := flash.NewMessenger().Drain(f.st)
	require.NoError(t, err)
	assert.Len(t, q, 1)
}

func TestLogin_HookOverridesReturn(t *testing.T) {
	f := newFixture(t, Config{})
	f.auth.onLogin = func(st *session.State) { _ = st.Set(session.KeyLoginFormReturn, "index.php?Itemid=77") }

	res, err := f.svc.Login(context.Background(), f.st, LoginInput{Token: f.token(t), Return: redirect.Encode("index.html"), Username: "a", Password: "b"})
	require.NoError(t, err)
	assert.Equal(t, "index.php?Itemid=77", res.Location)
}

// ─── Logout ───

func TestLogout_ClientScope(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t)})
	require.NoError(t, err)
	require.NotNil(t, f.auth.gotLogout.ClientID)
	assert.Equal(t, 0, *f.auth.gotLogout.ClientID)

	f = newFixture(t, Config{SharedSession: true})
	_, err = f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t)})
	require.NoError(t, err)
	assert.Nil(t, f.auth.gotLogout.ClientID)
}

func TestLogout_DefaultsToSiteRoot(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t), Return: redirect.Encode("//evil.example/")})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/", res.Location)
}

func TestLogout_ErrorGoesToLoginWithoutResolving(t *testing.T) {
	f := newFixture(t, Config{Multilingual: true, LogoutMessage: true})
	f.auth.logoutErr = errors.New("session store down")

	// 999 no existe: si se resolviera sería LookupError
	res, err := f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t), Return: redirect.Encode("999")})
	require.NoError(t, err)
	assert.Equal(t, "index.php?option=com_users&view=login", res.Location)
	assert.Nil(t, res.Message)
}

func TestLogout_MessageOnlyWhenAnonymous(t *testing.T) {
	f := newFixture(t, Config{LogoutMessage: true})
	require.NoError(t, f.st.Set(session.KeyUserID, "u1"))
	res, err := f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t), Lang: "fr"})
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "Vous êtes maintenant déconnecté.", res.Message.Text)

	// el servicio de auth deja la sesión autenticada (otro cliente): sin mensaje
	f = newFixture(t, Config{LogoutMessage: true})
	f.auth.logoutErr = nil
	f.st = session.NewState("sid-2")
	require.NoError(t, f.st.Set(session.KeyUserID, "u1"))
	stillIn := &stickyAuth{fakeAuth: f.auth}
	svc := f.svc.(*usersService)
	svc.Auth = stillIn
	res, err = f.svc.Logout(context.Background(), f.st, LogoutInput{Token: f.token(t)})
	require.NoError(t, err)
	assert.Nil(t, res.Message)
}

type stickyAuth struct{ *fakeAuth }

func (s *stickyAuth) Logout(context.Context, *session.State, *string, auth.LogoutOptions) error {
	return nil
}

func TestLogout_ForgeryRequestScope(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Logout(context.Background(), f.st, LogoutInput{Token: ""})
	assert.ErrorIs(t, err, csrf.ErrForgeryCheckFailed)
	assert.Zero(t, f.auth.logoutCalls)
}

// ─── MenuLogout ───

func parseLogout(t *testing.T, loc string) (path string, token string, target string) {
	t.Helper()
	u, err := url.Parse(loc)
	require.NoError(t, err)
	return u.Path, u.Query().Get("csrf_token"), redirect.Decode(u.Query().Get("return"))
}

func TestMenuLogout_NoItemMonolingualTargetsRoot(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.svc.MenuLogout(context.Background(), f.st, MenuLogoutInput{})
	require.NoError(t, err)

	path, tk, target := parseLogout(t, res.Location)
	assert.Equal(t, "users/logout", path)
	assert.Equal(t, "https://example.org/", target)
	assert.NoError(t, f.csrf.Check(f.st, tk))
	assert.Zero(t, f.auth.logoutCalls, "menuLogout never logs out by itself")
}

func TestMenuLogout_Targets(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Config{})
	res, err := f.svc.MenuLogout(ctx, f.st, MenuLogoutInput{ActiveItemID: 101})
	require.NoError(t, err)
	_, _, target := parseLogout(t, res.Location)
	assert.Equal(t, "index.php?Itemid=102", target)

	f = newFixture(t, Config{Multilingual: true})
	res, err = f.svc.MenuLogout(ctx, f.st, MenuLogoutInput{ActiveItemID: 101})
	require.NoError(t, err)
	_, _, target = parseLogout(t, res.Location)
	assert.Equal(t, "index.php?Itemid=102&lang=fr", target)

	// multilingüe sin target: home del idioma de la cookie
	res, err = f.svc.MenuLogout(ctx, f.st, MenuLogoutInput{ActiveItemID: 103, LangCookie: "de"})
	require.NoError(t, err)
	_, _, target = parseLogout(t, res.Location)
	assert.Equal(t, "index.php?Itemid=104", target)

	// idioma sin home propio: home "*"
	res, err = f.svc.MenuLogout(ctx, f.st, MenuLogoutInput{LangCookie: "it"})
	require.NoError(t, err)
	_, _, target = parseLogout(t, res.Location)
	assert.Equal(t, "index.php?Itemid=101", target)

	// ítem activo inexistente = sin parámetro logout
	f = newFixture(t, Config{})
	res, err = f.svc.MenuLogout(ctx, f.st, MenuLogoutInput{ActiveItemID: 4242})
	require.NoError(t, err)
	_, _, target = parseLogout(t, res.Location)
	assert.Equal(t, "https://example.org/", target)
}

func TestMenuLogout_LookupErrorAborts(t *testing.T) {
	f := newFixture(t, Config{Multilingual: true})
	f.menu.Fail(errors.New("db down"))
	res, err := f.svc.MenuLogout(context.Background(), f.st, MenuLogoutInput{ActiveItemID: 101})
	assert.True(t, menu.IsLookupError(err))
	assert.Empty(t, res.Location)
}

// ─── Remind ───

func TestRemind(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t, Config{})
		res, err := f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: "not-an-email"})
		require.NoError(t, err)
		assert.Equal(t, "index.php?option=com_users&view=remind", res.Location)
		require.NotNil(t, res.Message)
		assert.Equal(t, flash.SeverityNotice, res.Message.Severity)
		assert.Zero(t, f.sender.sent)
	})

	t.Run("known address", func(t *testing.T) {
		f := newFixture(t, Config{SiteName: "Example"})
		res, err := f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: "alice@example.org"})
		require.NoError(t, err)
		assert.Equal(t, "index.php?option=com_users&view=login", res.Location)
		assert.Equal(t, 1, f.sender.sent)
		assert.Equal(t, "alice@example.org", f.sender.to)
	})

	t.Run("unknown and blocked look the same", func(t *testing.T) {
		for _, email := range []string{"nobody@example.org", "bob@example.org"} {
			f := newFixture(t, Config{})
			res, err := f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: email})
			require.NoError(t, err)
			assert.Equal(t, "index.php?option=com_users&view=login", res.Location)
			assert.Equal(t, flash.SeverityMessage, res.Message.Severity)
			assert.Zero(t, f.sender.sent)
		}
	})

	t.Run("mailer error", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.sender.err = errors.New("dial tcp: connection refused")
		res, err := f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: "alice@example.org"})
		require.NoError(t, err)
		assert.Equal(t, "index.php?option=com_users&view=remind", res.Location)
		assert.Equal(t, flash.SeverityError, res.Message.Severity)
		assert.NotContains(t, res.Message.Text, "refused")

		f = newFixture(t, Config{ShowErrors: true})
		f.sender.err = errors.New("dial tcp: connection refused")
		res, err = f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: "alice@example.org"})
		require.NoError(t, err)
		assert.True(t, strings.Contains(res.Message.Text, "refused"))
	})

	t.Run("forgery", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.Remind(ctx, f.st, RemindInput{Email: "alice@example.org"})
		assert.ErrorIs(t, err, csrf.ErrForgeryCheckFailed)
	})
}

// ─── Messages ───

func TestMessages_DrainsQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	msgs, err := f.svc.Messages(ctx, f.st)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for i := 0; i < flash.MaxQueue+5; i++ {
		_, err := f.svc.Remind(ctx, f.st, RemindInput{Token: f.token(t), Email: "not-an-email"})
		require.NoError(t, err)
	}

	msgs, err = f.svc.Messages(ctx, f.st)
	require.NoError(t, err)
	require.Len(t, msgs, flash.MaxQueue)
	assert.Equal(t, flash.SeverityNotice, msgs[0].Severity)
	assert.False(t, f.st.Has(session.KeyMessageQueue))

	msgs, err = f.svc.Messages(ctx, f.st)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
