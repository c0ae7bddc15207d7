package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestMeiliSearchRefusesWhenUnhealthy(t *testing.T) {
	m := &Meili{}
	if _, err := m.Search(context.Background(), Query{CompanyID: "c1", Text: "x"}); !errors.Is(err, errUnhealthy) {
		t.Fatalf("expected errUnhealthy, got %v", err)
	}
}

func TestDecodeString(t *testing.T) {
	hit := meili.Hit{
		"id":    json.RawMessage(`"lead-1"`),
		"score": json.RawMessage(`42`),
	}
	if got := decodeString(hit, "id"); got != "lead-1" {
		t.Fatalf("id = %q", got)
	}
	if got := decodeString(hit, "score"); got != "" {
		t.Fatalf("non-string field decoded as %q", got)
	}
	if got := decodeString(hit, "missing"); got != "" {
		t.Fatalf("missing field decoded as %q", got)
	}
}
