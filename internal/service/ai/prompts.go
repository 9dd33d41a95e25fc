package ai

import "fmt"

// interpretDirective fixes the structure the interpretation markdown follows.
const interpretDirective = `You are a dream psychologist specializing in Jungian analysis. Analyze the following dream transcript. Provide a structured interpretation in Markdown format.
- Start with a title: '# Dream Interpretation'.
- Create a section: '## Core Emotional Theme' summarizing the primary feeling.
- Create a main section: '## Jungian Analysis'. Under it, create two subsections:
    - '### Key Symbols & Archetypes': List 3-5 major symbols and their potential Jungian meanings.
    - '### Potential Meaning': Offer a holistic view from a Jungian perspective.`

func interpretQuery(transcription string) string {
	return fmt.Sprintf(`Here is the dream: "%s"`, transcription)
}

func imagePrompt(transcription string) string {
	return fmt.Sprintf(`Generate a surrealist and fantastical painting that captures the essence of this dream: "%s". The image should be rich in symbolism and dream-like logic, but with recognizable figures and scenes. Aim for a visually compelling and imaginative style that is neither overly dark nor pessimistic, reflecting the nuanced emotions of the dream.`, transcription)
}

func narrationPrompt(text string) string {
	return "Read the following dream interpretation aloud in a calm, warm voice:\n\n" + text
}

// BuildConversationDirective scopes a follow-up conversation to one dream and
// its interpretation.
func BuildConversationDirective(transcription, interpretation string) string {
	return fmt.Sprintf(`You are a dream analysis assistant. The user has just had the following dream: "%s". The initial interpretation is: "%s". Your role is to answer follow-up questions about specific symbols, feelings, or parts of the dream. Be helpful, insightful, and maintain the persona of a dream expert. Keep your answers concise and focused on the user's question.`, transcription, interpretation)
}
