package ai

import (
	"fmt"
	"strings"

	"jobmate/autoapply-service/internal/model"
)

const systemBase = `Eres un especialista en recursos humanos y redacción de documentos laborales para el mercado chileno.
Personalizas CVs y cartas de presentación, respondes formularios de postulación y analizas la compatibilidad entre candidatos y ofertas.

Reglas:
- %s
- Usa terminología del mercado laboral chileno y responde en español de Chile.
- Basa todo únicamente en los datos del CV; nunca inventes experiencias o habilidades.`

// systemMessage selects the tone instruction for the configured style.
func systemMessage(style string) string {
	var tone string
	switch style {
	case model.StyleFriendly:
		tone = "Usa un tono amigable pero profesional, mostrando entusiasmo y personalidad."
	case model.StyleFormal:
		tone = "Usa un tono muy formal y conservador, con lenguaje corporativo tradicional."
	default:
		tone = "Usa un tono profesional y directo, enfocado en logros y resultados cuantificables."
	}
	return fmt.Sprintf(systemBase, tone)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func personalizePrompt(cv model.CVData, p model.JobPosting) string {
	return fmt.Sprintf(`Personaliza este CV para la oferta indicada.

DATOS DEL CV:
Nombre: %s
Experiencia: %v
Habilidades: %s
Educación: %v

OFERTA LABORAL:
Empresa: %s
Cargo: %s
Descripción: %s
Requisitos: %s

Resalta la experiencia más relevante, ordena primero las habilidades que coinciden con los requisitos
y usa las palabras clave de la oferta. Devuelve solo el CV personalizado en texto plano.`,
		cv.CandidateName(), cv.Experience, strings.Join(cv.Skills, ", "), cv.Education,
		p.Company, p.Title, clip(p.Description, 2000), strings.Join(p.Requirements, "; "))
}

func coverLetterPrompt(cv model.CVData, p model.JobPosting) string {
	return fmt.Sprintf(`Escribe una carta de presentación para esta postulación.

CANDIDATO:
Nombre: %s
Experiencia principal: %v
Habilidades clave: %s

OFERTA:
Empresa: %s
Cargo: %s
Descripción: %s

Máximo tres párrafos: interés en el cargo, experiencia relevante y cierre con disponibilidad.
Dirígete a la empresa por su nombre. Devuelve solo el texto de la carta.`,
		cv.CandidateName(), firstN(cv.Experience, 2), strings.Join(firstN(cv.Skills, 5), ", "),
		p.Company, p.Title, clip(p.Description, 500))
}

func formResponsesPrompt(cv model.CVData, questions []string) string {
	var qs strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&qs, "%d. %s\n", i+1, q)
	}
	return fmt.Sprintf(`Responde las preguntas de un formulario de postulación usando solo la información del CV.

CV:
%s

PREGUNTAS:
%s
Respuestas de máximo dos líneas. Si el CV no tiene la información, responde "Ver CV adjunto".
Responde solo con JSON, sin texto adicional, con esta forma:
{"answers": ["respuesta a la pregunta 1", "respuesta a la pregunta 2"]}`,
		clip(cv.RawText, 4000), qs.String())
}

func compatibilityPrompt(cv model.CVData, p model.JobPosting) string {
	return fmt.Sprintf(`Analiza la compatibilidad entre este CV y la oferta laboral.

CV:
Experiencia: %v
Habilidades: %s
Educación: %v

OFERTA:
Cargo: %s
Requisitos: %s
Descripción: %s

Responde solo con JSON, sin texto adicional, con esta forma:
{"compatibility_percentage": 0-100, "strengths": ["máximo 3"], "weaknesses": ["máximo 3"],
 "recommendation": "yes" | "maybe" | "no", "matched_keywords": ["..."]}`,
		cv.Experience, strings.Join(cv.Skills, ", "), cv.Education,
		p.Title, strings.Join(p.Requirements, "; "), clip(p.Description, 2000))
}
