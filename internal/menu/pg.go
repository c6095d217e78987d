package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore lee la tabla menu.
type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

const itemColumns = `id, client_id, language, home, params`

func (s *PGStore) ItemByID(ctx context.Context, clientID int, id int64) (Item, error) {
	const q = `SELECT ` + itemColumns + `
		FROM menu
		WHERE client_id = $1 AND id = $2 AND published`
	return scanItem(s.pool.QueryRow(ctx, q, clientID, id))
}

func (s *PGStore) DefaultItem(ctx context.Context, clientID int, lang Language) (Item, error) {
	const q = `SELECT ` + itemColumns + `
		FROM menu
		WHERE client_id = $1 AND home AND language = $2 AND published
		ORDER BY id
		LIMIT 1`
	return scanItem(s.pool.QueryRow(ctx, q, clientID, string(lang)))
}

func (s *PGStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func scanItem(row pgx.Row) (Item, error) {
	var (
		it     Item
		lang   string
		params []byte
	)
	if err := row.Scan(&it.ID, &it.ClientID, &lang, &it.Home, &params); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	it.Language = Language(lang)

	// Los params se guardan como JSON libre; normalizamos a string.
	if len(params) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(params, &raw); err != nil {
			return Item{}, fmt.Errorf("menu: item %d params: %w", it.ID, err)
		}
		it.Params = make(map[string]string, len(raw))
		for k, v := range raw {
			switch tv := v.(type) {
			case string:
				it.Params[k] = tv
			case float64:
				it.Params[k] = fmt.Sprintf("%.0f", tv)
			case nil:
			default:
				it.Params[k] = fmt.Sprint(tv)
			}
		}
	}
	return it, nil
}
