package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"jobmate/autoapply-service/internal/model"
)

// ErrMalformedResponse is returned when a backend response does not carry a
// JSON object matching the expected schema.
var ErrMalformedResponse = errors.New("malformed ai response")

var compatibilitySchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"compatibility_percentage", "recommendation"},
	"properties": map[string]interface{}{
		"compatibility_percentage": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
		"strengths":                map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"weaknesses":               map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"recommendation": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{model.RecommendYes, model.RecommendMaybe, model.RecommendNo},
		},
		"matched_keywords": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

var formAnswersSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"answers"},
	"properties": map[string]interface{}{
		"answers": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
}

// extractJSON returns the outermost JSON object in raw, ignoring code fences
// and any prose around it.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no json object", ErrMalformedResponse)
	}
	return s[start : end+1], nil
}

// decodeValidated extracts the JSON object from raw, validates it against
// schema and decodes it into dst.
func decodeValidated(raw string, schema map[string]interface{}, dst any) error {
	body, err := extractJSON(raw)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: validation error: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(errs, "; "))
	}

	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

type compatibilityPayload struct {
	Percentage      float64  `json:"compatibility_percentage"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendation  string   `json:"recommendation"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// ParseCompatibility decodes a compatibility analysis response.
func ParseCompatibility(raw string) (model.Compatibility, error) {
	var p compatibilityPayload
	if err := decodeValidated(raw, compatibilitySchema, &p); err != nil {
		return model.Compatibility{}, err
	}
	return model.Compatibility{
		Percentage:      int(math.Round(p.Percentage)),
		Strengths:       nonNil(p.Strengths),
		Weaknesses:      nonNil(p.Weaknesses),
		Recommendation:  p.Recommendation,
		MatchedKeywords: nonNil(p.MatchedKeywords),
	}, nil
}

// ParseFormAnswers decodes a form answers response and pairs the answers
// with questions by position. Missing or blank answers get the fallback.
func ParseFormAnswers(raw string, questions []string) (map[string]string, error) {
	var p struct {
		Answers []string `json:"answers"`
	}
	if err := decodeValidated(raw, formAnswersSchema, &p); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(questions))
	for i, q := range questions {
		answer := FormFallbackAnswer
		if i < len(p.Answers) && strings.TrimSpace(p.Answers[i]) != "" {
			answer = strings.TrimSpace(p.Answers[i])
		}
		out[q] = answer
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
