package generate

import "strings"

// recordPrompt instructs the backend to return one JSON object matching the
// StructuredRecord shape with no surrounding prose. The backend is not
// trusted to comply; Normalize handles fenced or noisy responses.
const recordPrompt = `You are a news rewrite assistant. Return ONLY a single JSON object with no code fences, no explanations, and no comments.

Required JSON shape (all fields are MANDATORY and must match exactly):
{
  "title": "string",
  "summary": "string",
  "bullets": ["string", "string", "string"],
  "facts": [{"text":"string","evidence_url":"string"}],
  "talks": {
    "general": "string",
    "entrepreneur": "string",
    "politician": "string",
    "investor": "string"
  }
}

Rules:
- Strictly adhere to the exact JSON shape above. Any deviation (e.g., comments, code blocks, explanations) will result in rejection.
- Detect the category (politics, economy, society, tech, military, etc.) from the content and tailor the analysis.
- Use available sources (one or more). Cite at least 1 item in "facts" with evidence_url chosen from the given Sources list. Be specific with entities (companies, products, laws).
- Tone: cautious and factual. No guarantees or advice. Use phrases like "consider", "possible idea".
- "talks" must be a conversational paragraph (2-4 sentences each) that naturally weaves together an action suggestion, the underlying assumption, a risk to watch, and a practical alternative.
- Avoid financial or policy advice; keep it interpretive and neutral.

Sources:
%SOURCES%
`

// BuildPrompt renders the generation prompt for a set of source lines.
func BuildPrompt(sourceLines []string) string {
	return strings.Replace(recordPrompt, "%SOURCES%", strings.Join(sourceLines, "\n"), 1)
}
