package ai_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/model"
)

func TestParseCompatibility(t *testing.T) {
	raw := "Aquí está el análisis:\n```json\n" +
		`{"compatibility_percentage": 72.4, "strengths": ["Go"], "weaknesses": [], "recommendation": "yes", "matched_keywords": ["go","sql"]}` +
		"\n```"

	c, err := ai.ParseCompatibility(raw)
	require.NoError(t, err)
	assert.Equal(t, model.Compatibility{
		Percentage:      72,
		Strengths:       []string{"Go"},
		Weaknesses:      []string{},
		Recommendation:  model.RecommendYes,
		MatchedKeywords: []string{"go", "sql"},
	}, c)
}

func TestParseCompatibility_Rejects(t *testing.T) {
	cases := map[string]string{
		"no json":            "COMPATIBILIDAD: 80%",
		"broken json":        `{"compatibility_percentage": 80,`,
		"missing field":      `{"compatibility_percentage": 80}`,
		"out of range":       `{"compatibility_percentage": 180, "recommendation": "yes"}`,
		"unknown verdict":    `{"compatibility_percentage": 80, "recommendation": "Tal vez"}`,
		"wrong type":         `{"compatibility_percentage": "80", "recommendation": "no"}`,
		"strengths not list": `{"compatibility_percentage": 10, "recommendation": "no", "strengths": "Go"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ai.ParseCompatibility(raw)
			assert.True(t, errors.Is(err, ai.ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestParseFormAnswers(t *testing.T) {
	questions := []string{"¿Disponibilidad?", "¿Renta?", "¿Inglés?"}

	got, err := ai.ParseFormAnswers(`{"answers": ["Inmediata", "  "]}`, questions)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"¿Disponibilidad?": "Inmediata",
		"¿Renta?":          ai.FormFallbackAnswer,
		"¿Inglés?":         ai.FormFallbackAnswer,
	}, got)

	_, err = ai.ParseFormAnswers(`{"answers": [1, 2]}`, questions)
	assert.ErrorIs(t, err, ai.ErrMalformedResponse)
}

func FuzzParseCompatibility(f *testing.F) {
	for _, seed := range []string{
		`{"compatibility_percentage": 50, "recommendation": "maybe"}`,
		"```json\n{\"compatibility_percentage\": 0, \"recommendation\": \"no\"}\n```",
		`}{`,
		`{"compatibility_percentage": 1e400, "recommendation": "yes"}`,
		"COMPATIBILIDAD: 80%\nRECOMENDACION: Si",
		"",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		c, err := ai.ParseCompatibility(raw)
		if err != nil {
			if !errors.Is(err, ai.ErrMalformedResponse) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if c.Percentage < 0 || c.Percentage > 100 {
			t.Fatalf("percentage out of range: %d", c.Percentage)
		}
		switch c.Recommendation {
		case model.RecommendYes, model.RecommendMaybe, model.RecommendNo:
		default:
			t.Fatalf("unexpected recommendation %q", c.Recommendation)
		}
	})
}

func FuzzParseFormAnswers(f *testing.F) {
	f.Add(`{"answers": ["a", "b"]}`)
	f.Add(`{"answers": null}`)
	f.Add(`not json`)

	questions := []string{"q1", "q2"}
	f.Fuzz(func(t *testing.T, raw string) {
		got, err := ai.ParseFormAnswers(raw, questions)
		if err != nil {
			return
		}
		if len(got) != len(questions) {
			t.Fatalf("want %d answers, got %d", len(questions), len(got))
		}
		for _, q := range questions {
			if got[q] == "" {
				t.Fatalf("blank answer for %q", q)
			}
		}
	})
}
