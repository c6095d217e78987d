package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/sitegate/internal/cache"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	tokens "github.com/dropDatabas3/sitegate/internal/security/token"
)

type Options struct {
	CookieName  string
	Domain      string
	SameSite    string
	Secure      bool
	TTL         time.Duration
	RememberTTL time.Duration
}

// Manager carga y persiste State en un cache.Client.
type Manager struct {
	cache cache.Client
	opt   Options
	locks *keyedMutex
}

func NewManager(c cache.Client, opt Options) *Manager {
	if opt.CookieName == "" {
		opt.CookieName = "sid"
	}
	if opt.TTL <= 0 {
		opt.TTL = 2 * time.Hour
	}
	if opt.RememberTTL <= 0 {
		opt.RememberTTL = 30 * 24 * time.Hour
	}
	return &Manager{cache: c, opt: opt, locks: newKeyedMutex()}
}

func (m *Manager) CookieName() string { return m.opt.CookieName }

func stateKey(id string) string { return "sess:" + tokens.SHA256Base64URL(id) }
func userKey(uid string) string { return "sessuser:" + uid }

// Hash es el identificador de la sesión apto para logs y claims.
func Hash(id string) string { return tokens.SHA256Base64URL(id) }

// NewID genera un session id aleatorio.
func NewID() (string, error) { return tokens.GenerateOpaqueToken(32) }

// Load lee la sesión id. Si no existe (o expiró) devuelve un State nuevo con
// otro id. Las identidades revocadas vía DestroyUser se descartan acá.
func (m *Manager) Load(ctx context.Context, id string) (*State, error) {
	if id != "" {
		raw, err := m.cache.Get(ctx, stateKey(id))
		switch {
		case err == nil:
			st, derr := loadState(id, []byte(raw))
			if derr == nil {
				if uid := st.UserID(); uid != "" && !m.indexed(ctx, uid, id) {
					_ = st.Delete(KeyUserID)
				}
				return st, nil
			}
			logger.From(ctx).Warn("discarding corrupt session", logger.SessionHash(Hash(id)), logger.Err(derr))
		case !cache.IsNotFound(err):
			return nil, fmt.Errorf("session: load: %w", err)
		}
	}
	nid, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("session: new id: %w", err)
	}
	return NewState(nid), nil
}

func (m *Manager) ttlFor(st *State) time.Duration {
	if st.Bool(KeyRememberLogin) {
		return m.opt.RememberTTL
	}
	return m.opt.TTL
}

// Save persiste st si cambió. Devuelve la cookie a emitir (nil si no hace falta).
func (m *Manager) Save(ctx context.Context, st *State) (*http.Cookie, error) {
	if !st.dirty {
		return nil, nil
	}
	b, err := st.record()
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	ttl := m.ttlFor(st)
	if err := m.cache.Set(ctx, stateKey(st.id), string(b), ttl); err != nil {
		return nil, fmt.Errorf("session: save: %w", err)
	}
	if st.rotated && st.oldID != "" {
		if err := m.cache.Delete(ctx, stateKey(st.oldID)); err != nil && !cache.IsNotFound(err) {
			logger.From(ctx).Warn("old session not deleted", logger.Err(err))
		}
	}
	st.dirty, st.isNew, st.rotated, st.oldID = false, false, false, ""

	cookieTTL := time.Duration(0)
	if st.Bool(KeyRememberLogin) {
		cookieTTL = m.opt.RememberTTL
	}
	return buildCookie(m.opt.CookieName, st.id, m.opt.Domain, m.opt.SameSite, m.opt.Secure, cookieTTL), nil
}

// ─── Índice usuario → sesiones ───

type indexEntry struct {
	Hash     string `json:"h"`
	ClientID int    `json:"c"`
}

func (m *Manager) readIndex(ctx context.Context, uid string) ([]indexEntry, error) {
	raw, err := m.cache.Get(ctx, userKey(uid))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []indexEntry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, nil
	}
	return out, nil
}

func (m *Manager) writeIndex(ctx context.Context, uid string, entries []indexEntry) error {
	if len(entries) == 0 {
		err := m.cache.Delete(ctx, userKey(uid))
		if cache.IsNotFound(err) {
			return nil
		}
		return err
	}
	b, _ := json.Marshal(entries)
	return m.cache.Set(ctx, userKey(uid), string(b), m.opt.RememberTTL)
}

func (m *Manager) indexed(ctx context.Context, uid, id string) bool {
	entries, err := m.readIndex(ctx, uid)
	if err != nil {
		// cache caído: se conserva la identidad, Load ya falló o fallará en Save
		return true
	}
	h := Hash(id)
	for _, e := range entries {
		if e.Hash == h {
			return true
		}
	}
	return false
}

// Register asocia la sesión actual de st al usuario uid para clientID.
func (m *Manager) Register(ctx context.Context, uid string, clientID int, st *State) error {
	unlock := m.locks.Lock(userKey(uid))
	defer unlock()

	entries, err := m.readIndex(ctx, uid)
	if err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	h := Hash(st.id)
	var oldHash string
	if st.rotated && st.oldID != "" {
		oldHash = Hash(st.oldID)
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Hash == h || e.Hash == oldHash {
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, indexEntry{Hash: h, ClientID: clientID})
	if err := m.writeIndex(ctx, uid, kept); err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	return nil
}

// DestroyUser elimina las sesiones registradas de uid. clientID nil borra
// todas; si no, sólo las de ese cliente. Devuelve cuántas borró.
func (m *Manager) DestroyUser(ctx context.Context, uid string, clientID *int) (int, error) {
	unlock := m.locks.Lock(userKey(uid))
	defer unlock()

	entries, err := m.readIndex(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("session: destroy user: %w", err)
	}
	var kept []indexEntry
	n := 0
	for _, e := range entries {
		if clientID != nil && e.ClientID != *clientID {
			kept = append(kept, e)
			continue
		}
		if err := m.cache.Delete(ctx, "sess:"+e.Hash); err != nil && !cache.IsNotFound(err) {
			return n, fmt.Errorf("session: destroy user: %w", err)
		}
		n++
	}
	if err := m.writeIndex(ctx, uid, kept); err != nil {
		return n, fmt.Errorf("session: destroy user: %w", err)
	}
	return n, nil
}

// ─── Middleware ───

type ctxKey struct{}

// FromContext devuelve el State del request o nil si el middleware no corrió.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(ctxKey{}).(*State)
	return st
}

// WithState inyecta st en ctx. Útil en tests de handlers.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// Middleware carga la sesión desde la cookie, serializa los requests de la
// misma sesión y persiste los cambios antes de que se escriban los headers.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.From(ctx)

			var id string
			if ck, err := r.Cookie(m.opt.CookieName); err == nil {
				id = ck.Value
			}
			if id != "" {
				unlock := m.locks.Lock(id)
				defer unlock()
			}

			st, err := m.Load(ctx, id)
			if err != nil {
				log.Error("session load failed", logger.Err(err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			sw := &saveWriter{ResponseWriter: w}
			sw.save = func() {
				ck, err := m.Save(ctx, st)
				if err != nil {
					log.Error("session save failed", logger.SessionHash(Hash(st.id)), logger.Err(err))
					return
				}
				if ck != nil {
					http.SetCookie(w, ck)
				}
			}
			next.ServeHTTP(sw, r.WithContext(WithState(ctx, st)))
			sw.flush()
		})
	}
}

// saveWriter persiste la sesión justo antes del primer byte de respuesta.
type saveWriter struct {
	http.ResponseWriter
	once sync.Once
	save func()
}

func (w *saveWriter) flush() { w.once.Do(w.save) }

func (w *saveWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *saveWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
