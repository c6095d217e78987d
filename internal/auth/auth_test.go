package auth

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sitegate/internal/cache"
	"github.com/dropDatabas3/sitegate/internal/security/password"
	"github.com/dropDatabas3/sitegate/internal/security/totp"
	"github.com/dropDatabas3/sitegate/internal/session"
)

var testParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}

var totpSecret = []byte("12345678901234567890")

type fixture struct {
	auth     *Authenticator
	users    *StaticUserStore
	sessions *session.Manager
}

func newFixture(t *testing.T, hooks ...LoginHook) fixture {
	t.Helper()
	hash, err := password.Hash(testParams, "s3cret")
	require.NoError(t, err)
	users := NewStaticUserStore(
		User{Username: "alice", Email: "alice@example.org", PasswordHash: hash},
		User{Username: "bob", Email: "bob@example.org", PasswordHash: hash, Blocked: true},
		User{Username: "carol", Email: "carol@example.org", PasswordHash: hash,
			TOTPSecret: base32.StdEncoding.EncodeToString(totpSecret)},
	)
	sm := session.NewManager(cache.NewMemory("", time.Minute), session.Options{})
	a := NewAuthenticator(Deps{Users: users, Sessions: sm, Hooks: hooks, HashParams: testParams})
	return fixture{auth: a, users: users, sessions: sm}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := session.NewState("before")

	err := f.auth.Login(ctx, st, Credentials{Username: "alice", Password: "s3cret"}, LoginOptions{})
	require.NoError(t, err)

	alice, _ := f.users.ByUsername(ctx, "alice")
	assert.Equal(t, alice.ID, st.UserID())
	assert.NotEqual(t, "before", st.ID(), "session id rotated")
	_, visited := f.users.LastVisit(alice.ID)
	assert.True(t, visited)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		c    Credentials
		want error
	}{
		{"empty", Credentials{}, ErrInvalidCredentials},
		{"unknown user", Credentials{Username: "mallory", Password: "s3cret"}, ErrInvalidCredentials},
		{"bad password", Credentials{Username: "alice", Password: "nope"}, ErrInvalidCredentials},
		{"blocked", Credentials{Username: "bob", Password: "s3cret"}, ErrUserBlocked},
		{"missing secret key", Credentials{Username: "carol", Password: "s3cret"}, ErrSecretKeyRequired},
		{"bad secret key", Credentials{Username: "carol", Password: "s3cret", SecretKey: "000000x"}, ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := session.NewState("sid")
			err := f.auth.Login(ctx, st, tc.c, LoginOptions{})
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, st.IsAnonymous())
			assert.Equal(t, "sid", st.ID())
		})
	}
}

func TestLogin_WithSecretKey(t *testing.T) {
	f := newFixture(t)
	st := session.NewState("sid")
	code := totp.Code(totpSecret, totp.CounterAt(time.Now()))

	err := f.auth.Login(context.Background(), st, Credentials{Username: "carol", Password: "s3cret", SecretKey: code}, LoginOptions{})
	require.NoError(t, err)
	assert.False(t, st.IsAnonymous())
}

func TestLogin_HookMayOverrideReturn(t *testing.T) {
	hook := func(_ context.Context, st *session.State, u User, o LoginOptions) error {
		return st.Set(session.KeyLoginFormReturn, "index.php?Itemid=77")
	}
	failing := func(context.Context, *session.State, User, LoginOptions) error {
		return errors.New("plugin down")
	}
	f := newFixture(t, hook, failing)
	st := session.NewState("sid")
	require.NoError(t, st.Set(session.KeyLoginFormReturn, "index.html"))

	err := f.auth.Login(context.Background(), st, Credentials{Username: "alice", Password: "s3cret"}, LoginOptions{Return: "index.html"})
	require.NoError(t, err)
	assert.Equal(t, "index.php?Itemid=77", st.String(session.KeyLoginFormReturn))
}

type recordingRegistry struct {
	destroyed []*int
	err       error
}

func (r *recordingRegistry) Register(context.Context, string, int, *session.State) error { return nil }
func (r *recordingRegistry) DestroyUser(_ context.Context, _ string, clientID *int) (int, error) {
	r.destroyed = append(r.destroyed, clientID)
	return 1, r.err
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	reg := &recordingRegistry{}
	a := NewAuthenticator(Deps{Users: NewStaticUserStore(), Sessions: reg, HashParams: testParams})

	st := session.NewState("sid")
	require.NoError(t, st.Set(session.KeyUserID, "u1"))
	require.NoError(t, st.Set(session.KeyRememberLogin, true))

	require.NoError(t, a.Logout(ctx, st, nil, LogoutOptions{ClientID: ClientScope(0)}))
	assert.True(t, st.IsAnonymous())
	assert.False(t, st.Has(session.KeyRememberLogin))
	assert.NotEqual(t, "sid", st.ID())
	require.Len(t, reg.destroyed, 1)
	require.NotNil(t, reg.destroyed[0])
	assert.Equal(t, 0, *reg.destroyed[0])

	// anónimo: nada que hacer
	require.NoError(t, a.Logout(ctx, st, nil, LogoutOptions{}))
	assert.Len(t, reg.destroyed, 1)

	// otro usuario: no toca la sesión actual
	other := "u2"
	st2 := session.NewState("sid2")
	require.NoError(t, st2.Set(session.KeyUserID, "u1"))
	require.NoError(t, a.Logout(ctx, st2, &other, LogoutOptions{}))
	assert.Equal(t, "u1", st2.UserID())
	assert.Nil(t, reg.destroyed[1])

	reg.err = errors.New("redis down")
	require.NoError(t, st2.Set(session.KeyUserID, "u1"))
	assert.Error(t, a.Logout(ctx, st2, nil, LogoutOptions{}))
}

func TestLogout_DestroysRegisteredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, _ := f.sessions.Load(ctx, "")
	require.NoError(t, f.auth.Login(ctx, other, Credentials{Username: "alice", Password: "s3cret"}, LoginOptions{}))
	_, err := f.sessions.Save(ctx, other)
	require.NoError(t, err)

	st, _ := f.sessions.Load(ctx, "")
	require.NoError(t, f.auth.Login(ctx, st, Credentials{Username: "alice", Password: "s3cret"}, LoginOptions{}))
	require.NoError(t, f.auth.Logout(ctx, st, nil, LogoutOptions{}))

	got, err := f.sessions.Load(ctx, other.ID())
	require.NoError(t, err)
	assert.True(t, got.IsAnonymous())
}

func TestCredentials_Redacted(t *testing.T) {
	c := Credentials{Username: "alice", Password: "hunter2", SecretKey: "123456"}
	for _, s := range []string{fmt.Sprint(c), fmt.Sprintf("%v %+v %#v %s", c, c, c, &c)} {
		assert.NotContains(t, s, "hunter2")
		assert.NotContains(t, s, "123456")
		assert.NotContains(t, s, "alice")
	}
	c.Scrub()
	assert.Equal(t, Credentials{}, c)
}

func TestLoadStaticUserStore(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
users:
  - username: alice
    email: Alice@Example.org
    password_hash: "$argon2id$v=19$m=1024,t=1,p=1$AAAA$AAAA"
`), 0o600))
	s, err := LoadStaticUserStore(p)
	require.NoError(t, err)

	u, err := s.ByEmail(context.Background(), "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Len(t, u.ID, 36)

	again := NewStaticUserStore(User{Username: "alice"})
	a2, _ := again.ByUsername(context.Background(), "alice")
	assert.Equal(t, u.ID, a2.ID, "ids are deterministic")

	_, err = s.ByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
