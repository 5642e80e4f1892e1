package ai

import (
	"fmt"
	"strings"

	"jobmate/autoapply-service/internal/keyword"
	"jobmate/autoapply-service/internal/model"
)

// FormFallbackAnswer answers every form question when no generated answer
// is available.
const FormFallbackAnswer = "Información disponible en CV adjunto"

// FallbackPersonalizedCV returns the CV unchanged.
func FallbackPersonalizedCV(cv model.CVData) string {
	return cv.RawText
}

// FallbackCoverLetter is the deterministic letter used without a provider.
func FallbackCoverLetter(cv model.CVData, posting model.JobPosting) string {
	greeting := "Estimados Sres.,"
	if posting.Company != "" {
		greeting = fmt.Sprintf("Estimados Sres. de %s,", posting.Company)
	}
	var b strings.Builder
	b.WriteString(greeting)
	fmt.Fprintf(&b, "\n\nTengo gran interés en el cargo de %s. ", posting.Title)
	b.WriteString("Mi experiencia profesional me permite contribuir efectivamente al equipo. ")
	b.WriteString("Adjunto mi CV para su revisión.\n\nSaludos cordiales,")
	if name := cv.CandidateName(); name != "" {
		b.WriteString("\n" + name)
	}
	return b.String()
}

// FallbackFormResponses answers every question with FormFallbackAnswer.
func FallbackFormResponses(questions []string) map[string]string {
	out := make(map[string]string, len(questions))
	for _, q := range questions {
		out[q] = FormFallbackAnswer
	}
	return out
}

// FallbackCompatibility scores the CV against the posting by shared words:
// ten points per common word, capped at 100.
func FallbackCompatibility(cv model.CVData, posting model.JobPosting) model.Compatibility {
	postingText := posting.Description + " " + strings.Join(posting.Requirements, " ")
	common := keyword.CommonWords(cv.RawText, postingText)

	pct := min(10*len(common), 100)
	rec := model.RecommendNo
	if pct > 30 {
		rec = model.RecommendMaybe
	}
	matched := common
	if len(matched) > 5 {
		matched = matched[:5]
	}
	return model.Compatibility{
		Percentage:      pct,
		Strengths:       []string{"Experiencia profesional relevante", "Perfil completo", "Interés en el sector"},
		Weaknesses:      []string{"Revisar requisitos específicos", "Validar experiencia técnica"},
		Recommendation:  rec,
		MatchedKeywords: matched,
	}
}
