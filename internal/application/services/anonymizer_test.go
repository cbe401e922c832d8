package services

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

func TestHashUserID(t *testing.T) {
	a := HashUserID("user-42")
	assert.Len(t, a, 16)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), a)
	assert.Equal(t, a, HashUserID("user-42"))
	assert.NotEqual(t, a, HashUserID("user-43"))
}

func TestMaskQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"widgets", "widgets"},
		{"0123456789", "0123456789"},
		{"01234567890", "012...[11 chars]"},
		{"blue cotton t-shirt", "blu...[19 chars]"},
		{"ñandú azul grande", "ñan...[17 chars]"},
		{"abc...[99 chars]", "abc...[16 chars]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskQuery(tt.in))
		})
	}
}

func TestAnonymize(t *testing.T) {
	in := &entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: time.Now(),
		SessionID: "s1",
		UserID:    "alice@example.com",
		Source:    entities.EventSourceAPI,
		Payload:   &entities.SearchPayload{Query: "organic green tea bags", ResultsCount: 2},
		Extra: map[string]any{
			"email":      "alice@example.com",
			"ip_address": "10.0.0.1",
			"full_name":  "Alice",
			"referrer":   "newsletter",
		},
	}

	out := Anonymize(in)

	assert.Equal(t, HashUserID("alice@example.com"), out.UserID)
	p, ok := out.Search()
	require.True(t, ok)
	assert.Equal(t, "org...[22 chars]", p.Query)
	assert.Equal(t, map[string]any{"referrer": "newsletter"}, out.Extra)

	// input untouched
	assert.Equal(t, "alice@example.com", in.UserID)
	assert.Equal(t, "organic green tea bags", in.Payload.(*entities.SearchPayload).Query)
	assert.Contains(t, in.Extra, "email")
}

func TestAnonymize_HashesLookalikeValues(t *testing.T) {
	in := &entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: time.Now(),
		SessionID: "s1",
		UserID:    "0123456789abcdef",
		Source:    entities.EventSourceAPI,
		Payload:   &entities.SearchPayload{Query: "abc...[99 chars]"},
	}

	out := Anonymize(in)

	assert.True(t, out.Anonymized)
	assert.Equal(t, HashUserID("0123456789abcdef"), out.UserID)
	assert.NotEqual(t, "0123456789abcdef", out.UserID)
	p, ok := out.Search()
	require.True(t, ok)
	assert.Equal(t, "abc...[16 chars]", p.Query)
	assert.False(t, in.Anonymized)
}

func TestAnonymize_MarkSurvivesJSON(t *testing.T) {
	out := Anonymize(&entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		SessionID: "s1",
		UserID:    "dave",
		Source:    entities.EventSourceAPI,
		Payload:   &entities.SearchPayload{Query: "wireless headphones"},
	})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded entities.Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	again := Anonymize(&decoded)
	assert.Equal(t, out.UserID, again.UserID)
	p, _ := again.Search()
	assert.Equal(t, "wir...[19 chars]", p.Query)
}

func TestAnonymize_NonSearchKeepsPayload(t *testing.T) {
	in := &entities.Event{
		Kind:      entities.EventKindGeneration,
		Timestamp: time.Now(),
		SessionID: "s1",
		Source:    entities.EventSourceAPI,
		Payload:   &entities.GenerationPayload{SKU: "a very long sku identifier", ContentType: "description"},
	}
	out := Anonymize(in)
	assert.Same(t, in.Payload, out.Payload)
	assert.Empty(t, out.UserID)
}

func TestAnonymize_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		extra := rapid.MapOf(
			rapid.SampledFrom(append([]string{"referrer", "campaign", "page"}, piiKeys...)),
			rapid.String().AsAny(),
		).Draw(t, "extra")

		e := &entities.Event{
			Kind:      entities.EventKindSearch,
			Timestamp: time.Unix(rapid.Int64Range(0, 1<<32).Draw(t, "ts"), 0),
			SessionID: "s",
			UserID:    rapid.String().Draw(t, "user"),
			Source:    entities.EventSourceAPI,
			Payload:   &entities.SearchPayload{Query: rapid.String().Draw(t, "query")},
			Extra:     extra,
		}

		once := Anonymize(e)
		twice := Anonymize(once)

		if once.UserID != twice.UserID {
			t.Fatalf("user id changed: %q -> %q", once.UserID, twice.UserID)
		}
		q1, _ := once.Search()
		q2, _ := twice.Search()
		if q1.Query != q2.Query {
			t.Fatalf("query changed: %q -> %q", q1.Query, q2.Query)
		}
		if len(once.Extra) != len(twice.Extra) {
			t.Fatalf("extra changed: %v -> %v", once.Extra, twice.Extra)
		}
		for _, k := range piiKeys {
			if _, ok := once.Extra[k]; ok {
				t.Fatalf("pii key %q survived", k)
			}
		}
		if n := len([]rune(q1.Query)); n > 10 && !strings.Contains(q1.Query, "...[") {
			t.Fatalf("long query not masked: %q", q1.Query)
		}
	})
}
