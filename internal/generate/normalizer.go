package generate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Seci84/ITriggr/internal/core"
)

// NormalizationError reports that no extraction layer could produce a
// structurally valid record from backend output.
type NormalizationError struct {
	Reason string
	Head   string // First bytes of the offending output, for logs
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed: %s (head=%q)", e.Reason, e.Head)
}

var fenceRegexp = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\n?|\n?```$")

// Normalize extracts a StructuredRecord from raw backend output. The
// backend is prompted for bare JSON but may wrap it in code fences, prose,
// or trailing commentary, so extraction is layered:
//
//  1. parse the text verbatim
//  2. strip leading/trailing triple-backtick fences and parse
//  3. parse the span from the first '{' to the last '}'
//
// The first layer that yields a JSON object wins; the object is then
// validated against the required shape. Any failure returns a
// *NormalizationError so the caller can fall back to template synthesis.
func Normalize(raw string) (core.StructuredRecord, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return core.StructuredRecord{}, err
	}
	return validateRecord(obj, raw)
}

func extractObject(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)

	// Layer 1: verbatim.
	if obj, ok := tryParse(trimmed); ok {
		return obj, nil
	}

	// Layer 2: strip code fences.
	unfenced := strings.TrimSpace(fenceRegexp.ReplaceAllString(trimmed, ""))
	if obj, ok := tryParse(unfenced); ok {
		return obj, nil
	}

	// Layer 3: greedy first-{ to last-} span.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if obj, ok := tryParse(raw[start : end+1]); ok {
			return obj, nil
		}
	}

	return nil, &NormalizationError{Reason: "no parseable JSON object", Head: head(raw)}
}

func tryParse(text string) (map[string]any, bool) {
	if text == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// validateRecord checks the parsed object against the required shape:
// title and summary strings, exactly three string bullets, facts with text
// and evidence_url, and a talks object. Missing reader-type keys inside
// talks are tolerated and filled with empty strings; anything else missing
// or mistyped is a normalization failure.
func validateRecord(obj map[string]any, raw string) (core.StructuredRecord, error) {
	fail := func(reason string) (core.StructuredRecord, error) {
		return core.StructuredRecord{}, &NormalizationError{Reason: reason, Head: head(raw)}
	}

	title, ok := obj["title"].(string)
	if !ok {
		return fail("missing or non-string title")
	}
	summary, ok := obj["summary"].(string)
	if !ok {
		return fail("missing or non-string summary")
	}

	rawBullets, ok := obj["bullets"].([]any)
	if !ok {
		return fail("missing or non-array bullets")
	}
	if len(rawBullets) != 3 {
		return fail(fmt.Sprintf("expected 3 bullets, got %d", len(rawBullets)))
	}
	bullets := make([]string, 0, 3)
	for _, b := range rawBullets {
		s, ok := b.(string)
		if !ok {
			return fail("non-string bullet")
		}
		bullets = append(bullets, s)
	}

	rawFacts, ok := obj["facts"].([]any)
	if !ok {
		return fail("missing or non-array facts")
	}
	facts := make([]core.Fact, 0, len(rawFacts))
	for _, f := range rawFacts {
		fm, ok := f.(map[string]any)
		if !ok {
			return fail("non-object fact")
		}
		text, ok := fm["text"].(string)
		if !ok {
			return fail("fact missing text")
		}
		evidenceURL, ok := fm["evidence_url"].(string)
		if !ok {
			return fail("fact missing evidence_url")
		}
		facts = append(facts, core.Fact{Text: text, EvidenceURL: evidenceURL})
	}

	rawTalks, ok := obj["talks"].(map[string]any)
	if !ok {
		return fail("missing or non-object talks")
	}
	talks := core.Talks{}
	for _, readerType := range core.ReaderTypes {
		value := rawTalks[readerType]
		text, _ := value.(string) // tolerant reader: missing key stays ""
		switch readerType {
		case "general":
			talks.General = text
		case "entrepreneur":
			talks.Entrepreneur = text
		case "politician":
			talks.Politician = text
		case "investor":
			talks.Investor = text
		}
	}

	return core.StructuredRecord{
		Title:   title,
		Summary: summary,
		Bullets: bullets,
		Facts:   facts,
		Talks:   talks,
	}, nil
}

func head(raw string) string {
	const n = 120
	if len(raw) > n {
		return raw[:n]
	}
	return raw
}
