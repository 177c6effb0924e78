package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// SQLStore keeps provider keys in the provider_credentials table.
type SQLStore struct {
	sql      infra.SQLExecutor
	provider string
}

func NewSQLStore(sql infra.SQLExecutor) *SQLStore {
	return &SQLStore{sql: sql, provider: ProviderGemini}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QEnsureProviderCredentials); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context) (string, bool, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, s.provider)
	var key string
	if err := row.Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	key = strings.TrimSpace(key)
	return key, key != "", nil
}

func (s *SQLStore) Set(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.upsert(ctx, key, nil)
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteProviderCredential, s.provider)
	return err
}

func (s *SQLStore) upsert(ctx context.Context, key string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, s.provider, key, raw)
	return err
}
