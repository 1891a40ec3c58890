package tour

import (
	"fmt"
	"strings"

	"github.com/wanderloop/wanderloop/cache"
	"github.com/wanderloop/wanderloop/providers/llm"
)

const candidateSystemPrompt = `You are a local tour designer. You design self-guided walking tours ` +
	`built only from the numbered places provided. Refer to places strictly by their number.`

const candidateSchema = `Respond with a JSON array only, no prose. Each element:
{"id": string, "title": string, "description": string, "theme": string,
"duration_minutes": number, "stop_refs": [place numbers in walking order]}`

// candidatePrompt lays out the area context and the numbered place list the
// model must reference. Place numbers are zero-based so they double as
// indexes into the collected list.
func candidatePrompt(area string, summary *cache.AreaSummary, placeList []cache.Place, durationMinutes, maxCandidates int) llm.Prompt {
	var user strings.Builder

	fmt.Fprintf(&user, "Design %d distinct walking tours of about %d minutes", maxCandidates, durationMinutes)
	if area != "" {
		fmt.Fprintf(&user, " in %s", area)
	}
	user.WriteString(".\n")

	if summary != nil && summary.SummaryText != "" {
		fmt.Fprintf(&user, "\nAbout the area: %s\n", summary.SummaryText)
		for _, fact := range summary.KeyFacts {
			fmt.Fprintf(&user, "- %s\n", fact)
		}
	}

	user.WriteString("\nPlaces (number: name [categories]):\n")
	for i, place := range placeList {
		fmt.Fprintf(&user, "%d: %s [%s]\n", i, place.Name, strings.Join(place.Types, ", "))
	}

	return llm.Prompt{
		System: candidateSystemPrompt,
		User:   user.String(),
		Schema: candidateSchema,
	}
}

const scriptSystemPrompt = `You are an audioguide narrator. Write warm, spoken-word narration ` +
	`meant to be listened to while standing at the location. No headings, no lists, no stage directions.`

// introPrompt asks for the tour's opening narration.
func introPrompt(candidate *Candidate, language string) llm.Prompt {
	return llm.Prompt{
		System: scriptSystemPrompt,
		User: fmt.Sprintf(
			"Write the introduction for the walking tour %q in language %q.\nTour description: %s\nAround 120 words.",
			candidate.Title, language, candidate.Description),
	}
}

// stopPrompt asks for one stop's narration, anchored in the tour's theme so
// consecutive stops feel like one guide speaking.
func stopPrompt(candidate *Candidate, stop Stop, position, total int, language string) llm.Prompt {
	return llm.Prompt{
		System: scriptSystemPrompt,
		User: fmt.Sprintf(
			"Write the narration for stop %d of %d on the tour %q: %s.\nLanguage: %q. Tour theme: %s.\nAround 150 words.",
			position, total, candidate.Title, stop.Name, language, candidate.Theme),
	}
}

// areaDisplayName renders the area context finest-component-first, the way a
// person would say it.
func areaDisplayName(country, city, neighborhood string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{neighborhood, city, country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
