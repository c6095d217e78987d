package menu

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// StaticStore sirve ítems desde memoria (seed YAML o tests).
type StaticStore struct {
	mu    sync.RWMutex
	items map[int64]Item
	err   error // si != nil, todas las consultas fallan con este error
}

func NewStaticStore(items ...Item) *StaticStore {
	s := &StaticStore{items: make(map[int64]Item, len(items))}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

// LoadStaticStore lee la sección "menu" de un seed YAML:
//
//	menu:
//	  - id: 101
//	    language: "*"
//	    home: true
//	    params: {logout: "102"}
func LoadStaticStore(path string) (*StaticStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed struct {
		Menu []Item `yaml:"menu"`
	}
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("menu: parse seed %s: %w", path, err)
	}
	for i := range seed.Menu {
		if seed.Menu[i].Language == "" {
			seed.Menu[i].Language = AllLanguages
		}
	}
	return NewStaticStore(seed.Menu...), nil
}

// Fail hace que todas las consultas fallen con err (nil restaura).
func (s *StaticStore) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *StaticStore) ItemByID(_ context.Context, clientID int, id int64) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Item{}, s.err
	}
	it, ok := s.items[id]
	if !ok || it.ClientID != clientID {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (s *StaticStore) DefaultItem(_ context.Context, clientID int, lang Language) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Item{}, s.err
	}
	var found *Item
	for _, it := range s.items {
		if it.ClientID == clientID && it.Home && it.Language == lang {
			// menor id gana, igual que ORDER BY id en pg
			if found == nil || it.ID < found.ID {
				it := it
				found = &it
			}
		}
	}
	if found == nil {
		return Item{}, ErrItemNotFound
	}
	return *found, nil
}

func (s *StaticStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
