package menu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/sitegate/internal/cache"
)

func testStore() *StaticStore {
	return NewStaticStore(
		Item{ID: 101, Language: AllLanguages, Home: true},
		Item{ID: 102, Language: "fr-FR", Home: true, Params: map[string]string{"logout": "101"}},
		Item{ID: 103, Language: "de-DE"},
		Item{ID: 900, ClientID: 1, Language: "en-GB"}, // admin: nunca visible
	)
}

func TestResolver_Language(t *testing.T) {
	r := NewResolver(testStore(), nil, 0)
	ctx := context.Background()

	lang, err := r.Language(ctx, 101)
	require.NoError(t, err)
	assert.True(t, lang.IsAll())

	lang, err = r.Language(ctx, 102)
	require.NoError(t, err)
	assert.Equal(t, Language("fr-FR"), lang)
}

func TestResolver_LookupErrors(t *testing.T) {
	st := testStore()
	r := NewResolver(st, nil, 0)
	ctx := context.Background()

	_, err := r.Language(ctx, 42)
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, int64(42), le.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	// ítems del administrador no se consideran
	_, err = r.Language(ctx, 900)
	assert.True(t, IsLookupError(err))

	st.Fail(errors.New("connection refused"))
	_, err = r.Language(ctx, 101)
	assert.True(t, IsLookupError(err))
	assert.NotErrorIs(t, err, ErrItemNotFound)
}

type countingStore struct {
	Store
	calls atomic.Int32
}

func (c *countingStore) ItemByID(ctx context.Context, clientID int, id int64) (Item, error) {
	c.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	return c.Store.ItemByID(ctx, clientID, id)
}

func TestResolver_CachesSuccessOnly(t *testing.T) {
	base := testStore()
	cs := &countingStore{Store: base}
	r := NewResolver(cs, cache.NewMemory("", time.Minute), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Language(ctx, 102)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), cs.calls.Load())

	// not found no se cachea
	_, _ = r.Language(ctx, 55)
	_, _ = r.Language(ctx, 55)
	assert.Equal(t, int32(3), cs.calls.Load())
}

func TestResolver_SingleflightDedup(t *testing.T) {
	cs := &countingStore{Store: testStore()}
	r := NewResolver(cs, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Language(context.Background(), 103)
		}()
	}
	wg.Wait()
	assert.Less(t, cs.calls.Load(), int32(8))
}

func TestResolver_Default(t *testing.T) {
	r := NewResolver(testStore(), nil, 0)
	ctx := context.Background()

	it, err := r.Default(ctx, "fr-FR")
	require.NoError(t, err)
	assert.Equal(t, int64(102), it.ID)

	// sin home propio cae al "*"
	it, err = r.Default(ctx, "de-DE")
	require.NoError(t, err)
	assert.Equal(t, int64(101), it.ID)

	_, err = NewResolver(NewStaticStore(), nil, 0).Default(ctx, "")
	assert.True(t, IsLookupError(err))
}

func TestItem_LogoutTarget(t *testing.T) {
	id, ok := Item{Params: map[string]string{"logout": " 101 "}}.LogoutTarget()
	assert.True(t, ok)
	assert.Equal(t, int64(101), id)

	for _, v := range []string{"", "abc", "0", "-3"} {
		_, ok := Item{Params: map[string]string{"logout": v}}.LogoutTarget()
		assert.False(t, ok, v)
	}
	_, ok = Item{}.LogoutTarget()
	assert.False(t, ok)
}

func TestLoadStaticStore(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
menu:
  - id: 7
    home: true
  - id: 8
    language: es-ES
    params:
      logout: "7"
`), 0o600))

	st, err := LoadStaticStore(p)
	require.NoError(t, err)

	it, err := st.ItemByID(context.Background(), SiteClient, 7)
	require.NoError(t, err)
	assert.Equal(t, AllLanguages, it.Language)

	it, err = st.ItemByID(context.Background(), SiteClient, 8)
	require.NoError(t, err)
	target, ok := it.LogoutTarget()
	assert.True(t, ok)
	assert.Equal(t, int64(7), target)
}

func TestLanguageCookieName(t *testing.T) {
	// md5("secretlanguage")
	assert.Len(t, LanguageCookieName("secret"), 32)
	assert.NotEqual(t, LanguageCookieName("a"), LanguageCookieName("b"))
}
