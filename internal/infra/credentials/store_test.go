package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/sqlinline"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestSQLStoreGet(t *testing.T) {
	store := NewSQLStore(&stubExecutor{token: " abc123 "})
	key, ok, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok || key != "abc123" {
		t.Fatalf("expected abc123, got %q (ok=%v)", key, ok)
	}
}

func TestSQLStoreGet_NoRows(t *testing.T) {
	store := NewSQLStore(&stubExecutor{err: pgx.ErrNoRows})
	key, ok, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok || key != "" {
		t.Fatalf("expected absent key, got %q (ok=%v)", key, ok)
	}
}

func TestSQLStoreGet_Error(t *testing.T) {
	store := NewSQLStore(&stubExecutor{err: errors.New("connection reset")})
	if _, _, err := store.Get(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLStoreSet(t *testing.T) {
	exec := &stubExecutor{}
	store := NewSQLStore(exec)
	if err := store.Set(context.Background(), " secret "); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if exec.exec.query != sqlinline.QUpsertProviderCredential {
		t.Fatalf("unexpected query: %s", exec.exec.query)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderGemini {
		t.Fatalf("expected provider argument, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestSQLStoreSetEmpty(t *testing.T) {
	exec := &stubExecutor{}
	store := NewSQLStore(exec)
	if err := store.Set(context.Background(), " "); !errors.Is(err, ErrBlankKey) {
		t.Fatalf("expected ErrBlankKey, got %v", err)
	}
	if exec.exec.query != "" {
		t.Fatal("blank key must not reach the database")
	}
}

func TestSQLStoreClear(t *testing.T) {
	exec := &stubExecutor{}
	store := NewSQLStore(exec)
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if exec.exec.query != sqlinline.QDeleteProviderCredential {
		t.Fatalf("unexpected query: %s", exec.exec.query)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Get(ctx); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "  AIza-test  "); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}

	reopened, _ := NewFileStore(path)
	key, ok, err := reopened.Get(ctx)
	if err != nil || !ok || key != "AIza-test" {
		t.Fatalf("expected persisted key, got %q ok=%v err=%v", key, ok, err)
	}

	if err := store.Set(ctx, ""); !errors.Is(err, ErrBlankKey) {
		t.Fatalf("expected ErrBlankKey, got %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Fatal("expected key to be cleared")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	store, _ := NewFileStore(path)
	if _, _, err := store.Get(context.Background()); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if ok, _ := HasKey(ctx, store); ok {
		t.Fatal("expected no key")
	}
	if err := store.Set(ctx, "\t"); !errors.Is(err, ErrBlankKey) {
		t.Fatalf("expected ErrBlankKey, got %v", err)
	}
	if err := store.Set(ctx, "k"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if ok, _ := HasKey(ctx, store); !ok {
		t.Fatal("expected key")
	}
	_ = store.Clear(ctx)
	if ok, _ := HasKey(ctx, store); ok {
		t.Fatal("expected key cleared")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindFile, "FILE": KindFile, " postgres ": KindPostgres, "memory": KindMemory} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("redis"); err == nil {
		t.Fatal("expected error for unsupported store")
	}
}
