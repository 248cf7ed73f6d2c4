package analysis

import (
	"fmt"
	"strings"
)

const quizSystemPrompt = "You are an expert educator who writes clear, accurate assessment questions. Reply with a single JSON object and nothing else."

const factCheckSystemPrompt = "You are a meticulous academic fact-checker. Reply with a single JSON object and nothing else."

const explainSystemPrompt = "You are a distinguished university professor known for rigorous, well-sourced teaching."

const sourcesSystemPrompt = "You are an academic librarian. Reply with a single JSON object and nothing else."

func modeHint(m LearningMode) string {
	switch m {
	case ModeAudio:
		return "audio learning"
	case ModeVisual:
		return "visual learning"
	default:
		return "standard learning"
	}
}

func quizPrompt(text string, mode LearningMode) string {
	return fmt.Sprintf(`Create an educational quiz from this content: %q

Requirements:
- 5-7 questions of varying difficulty (easy, medium, hard)
- each question has exactly 4 options
- include an explanation for every correct answer
- Make it suitable for %s

Respond with JSON in this shape:
{"title": string, "description": string, "questions": [{"question": string, "options": [string, string, string, string], "correctAnswer": <index 0-3>, "explanation": string, "difficulty": "easy"|"medium"|"hard"}]}`,
		text, modeHint(mode))
}

func factCheckPrompt(text string) string {
	return fmt.Sprintf(`Fact-check this educational content: %q

Identify the factual statements it makes and judge each one.

Respond with JSON in this shape:
{"results": [{"originalText": string, "status": "verified"|"questionable"|"false", "correction": string, "sources": [string], "confidence": <0-1>}]}`,
		text)
}

func explainPrompt(req ExplainRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As a world-class professor in %s, provide a comprehensive, university-level explanation of %q suitable for %s students.\n\n",
		req.Subject, req.Topic, req.Level)
	b.WriteString("Requirements:\n")
	b.WriteString("- start with a precise definition\n")
	b.WriteString("- cover the underlying principles and key theories\n")
	b.WriteString("- give concrete real-world examples and applications\n")
	b.WriteString("- mention current research directions and open debates\n")
	b.WriteString("- point out common misconceptions\n")
	if req.Language != "" && req.Language != "en" {
		fmt.Fprintf(&b, "- write the explanation in the language with code %q\n", req.Language)
	}
	return b.String()
}

func sourcesPrompt(req ExplainRequest) string {
	return fmt.Sprintf(`List 5-7 authoritative academic sources on %q in %s.

Respond with JSON in this shape:
{"sources": [{"title": string, "type": "textbook"|"journal"|"paper"|"encyclopedia", "year": string}]}`,
		req.Topic, req.Subject)
}
