package keyword_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"jobmate/autoapply-service/internal/keyword"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     []string
	}{
		{
			name:     "case insensitive, input order kept",
			text:     "Senior Python Developer",
			keywords: []string{"python", "java", "Developer"},
			want:     []string{"python", "Developer"},
		},
		{
			name:     "substring semantics",
			text:     "Javascript engineer",
			keywords: []string{"java"},
			want:     []string{"java"},
		},
		{
			name:     "empty text",
			text:     "",
			keywords: []string{"go"},
			want:     []string{},
		},
		{
			name:     "blank keywords ignored",
			text:     "Go developer",
			keywords: []string{"", "  ", "go"},
			want:     []string{"go"},
		},
		{
			name:     "no keywords",
			text:     "anything",
			keywords: nil,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keyword.Match(tt.text, tt.keywords)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	text := "Ventas telefónicas - Call Center Santiago"
	assert.True(t, keyword.ContainsAny(text, []string{"call center"}))
	assert.True(t, keyword.ContainsAny(text, []string{"", "VENTAS"}))
	assert.False(t, keyword.ContainsAny(text, []string{"python"}))
	assert.False(t, keyword.ContainsAny(text, nil))
	assert.False(t, keyword.ContainsAny(text, []string{""}))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, keyword.Percentage(0, 0))
	assert.Equal(t, 50.0, keyword.Percentage(1, 2))
	assert.Equal(t, 100.0, keyword.Percentage(3, 3))
}

func TestCommonWords(t *testing.T) {
	cv := "Experiencia en Python, Django y SQL."
	job := "Buscamos desarrollador Python con SQL y Docker"

	got := keyword.CommonWords(cv, job)
	if diff := cmp.Diff([]string{"python", "sql", "y"}, got); diff != "" {
		t.Errorf("CommonWords() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, keyword.CommonWords("", job))
	assert.Empty(t, keyword.CommonWords(cv, ""))
	assert.Empty(t, keyword.CommonWords("alpha beta", "gamma delta"))
}

func TestNormalize(t *testing.T) {
	got := keyword.Normalize([]string{" Go ", "", "go", "Python", "  ", "PYTHON", "SQL"})
	if diff := cmp.Diff([]string{"Go", "Python", "SQL"}, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, keyword.Normalize(nil))
}
