package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ConfigStore exchanges the document whole: one fetch, one replace, no
// partial writes. Concurrent replaces are last-writer-wins by design; the
// remote store this models offers no locking either.
type ConfigStore interface {
	Fetch() (NetworkConfig, error)
	Replace(cfg NetworkConfig) error
}

type sqliteStore struct {
	db     *sql.DB
	tenant string
}

func newSqliteStore(db *sql.DB, tenant string) *sqliteStore {
	if tenant == "" {
		tenant = "default"
	}
	return &sqliteStore{db: db, tenant: tenant}
}

// Fetch returns the empty document when no row exists yet; an absent
// configuration is a valid starting state, not an error.
func (s *sqliteStore) Fetch() (NetworkConfig, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM network_configuration WHERE tenant=?`, s.tenant).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return NetworkConfig{}, nil
	}
	if err != nil {
		return NetworkConfig{}, err
	}
	var cfg NetworkConfig
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return NetworkConfig{}, err
	}
	return cfg, nil
}

func (s *sqliteStore) Replace(cfg NetworkConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO network_configuration(tenant, body, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(tenant) DO UPDATE SET
			body=excluded.body,
			updated_at=excluded.updated_at`,
		s.tenant, string(body), time.Now().UTC().Format(time.RFC3339))
	return err
}
