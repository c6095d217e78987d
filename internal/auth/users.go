package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

type User struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
	TOTPSecret   string `yaml:"totp_secret"`
	Blocked      bool   `yaml:"blocked"`
}

// UserStore busca usuarios. ByUsername/ByEmail devuelven ErrUserNotFound.
type UserStore interface {
	ByUsername(ctx context.Context, username string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	TouchLastVisit(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
}

// ─── Static ───

var userNamespace = uuid.MustParse("6f1f2a52-3c1e-4e0b-9d54-2f6a8f0c7d10")

// StaticUserStore sirve usuarios desde memoria (seed YAML o tests).
type StaticUserStore struct {
	mu    sync.RWMutex
	users []User
	visit map[string]time.Time
}

// NewStaticUserStore asigna un id determinístico (uuid v5 del username) a los
// usuarios sin id.
func NewStaticUserStore(users ...User) *StaticUserStore {
	out := make([]User, len(users))
	for i, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewSHA1(userNamespace, []byte(strings.ToLower(u.Username))).String()
		}
		out[i] = u
	}
	return &StaticUserStore{users: out, visit: map[string]time.Time{}}
}

// LoadStaticUserStore lee la sección "users" de un seed YAML.
func LoadStaticUserStore(path string) (*StaticUserStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("auth: parse seed %s: %w", path, err)
	}
	return NewStaticUserStore(seed.Users...), nil
}

func (s *StaticUserStore) find(match func(User) bool) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *StaticUserStore) ByUsername(_ context.Context, username string) (User, error) {
	return s.find(func(u User) bool { return u.Username == username })
}

func (s *StaticUserStore) ByEmail(_ context.Context, email string) (User, error) {
	return s.find(func(u User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *StaticUserStore) TouchLastVisit(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	s.visit[id] = at
	s.mu.Unlock()
	return nil
}

// LastVisit para tests.
func (s *StaticUserStore) LastVisit(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.visit[id]
	return t, ok
}

func (s *StaticUserStore) Ping(context.Context) error { return nil }

// ─── Postgres ───

type PGUserStore struct{ pool *pgxpool.Pool }

func NewPGUserStore(pool *pgxpool.Pool) *PGUserStore { return &PGUserStore{pool: pool} }

const userColumns = `id::text, username, email, name, password_hash, COALESCE(totp_secret, ''), blocked`

func (s *PGUserStore) ByUsername(ctx context.Context, username string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.pool.QueryRow(ctx, q, username))
}

func (s *PGUserStore) ByEmail(ctx context.Context, email string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, email))
}

func (s *PGUserStore) TouchLastVisit(ctx context.Context, id string, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("auth: user id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE users SET last_visit_at = $2 WHERE id = $1`, uid.String(), at.UTC())
	return err
}

func (s *PGUserStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.TOTPSecret, &u.Blocked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}
