package infra

import (
	"errors"
	"testing"

	"studio/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker(sqlinline.QSelectProviderCredential)
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "9fde5b00-fab3-4e6c-9742-23344e286546" {
		t.Fatalf("unexpected marker %q", marker)
	}
	if body == "" || body[:6] != "select" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	for _, q := range []string{"", "select 1", "--sql not-a-uuid\nselect 1", "--sql 9fde5b00-fab3-4e6c-9742-23344e286546\n"} {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("expected error for %q", q)
		}
	}
	if _, _, err := extractMarker("select 1"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
}

func TestEveryInlineQueryHasMarker(t *testing.T) {
	for _, q := range []string{
		sqlinline.QEnsureProviderCredentials,
		sqlinline.QSelectProviderCredential,
		sqlinline.QUpsertProviderCredential,
		sqlinline.QDeleteProviderCredential,
	} {
		if _, _, err := extractMarker(q); err != nil {
			t.Fatalf("query missing marker: %v\n%s", err, q)
		}
	}
}
