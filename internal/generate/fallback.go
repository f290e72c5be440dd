package generate

import (
	"fmt"

	"github.com/Seci84/ITriggr/internal/core"
)

// TemplateModel marks articles produced without the generation backend.
const TemplateModel = "template"

// Synthesize builds a deterministic, structurally valid record from a
// cluster's raw items alone. It is the backstop behind every backend
// failure mode: disabled backend, timeout, error response, or output that
// fails normalization. No cluster is ever skipped for lack of a working
// backend.
func Synthesize(items []core.RawItem) core.StructuredRecord {
	n := len(items)

	plural := ""
	if n != 1 {
		plural = "s"
	}
	title := fmt.Sprintf("[Auto] %d source%s on same event", n, plural)

	summary := "A single source reported this event. (Template summary: generation backend disabled)"
	if n > 1 {
		summary = "Multiple outlets reported a similar event. (Template summary: generation backend disabled)"
	}

	var facts []core.Fact
	if n > 0 {
		facts = []core.Fact{{Text: items[0].Title, EvidenceURL: items[0].URL}}
	}

	return core.StructuredRecord{
		Title:   title,
		Summary: summary,
		Bullets: []string{"Key point 1", "Key point 2", "Key point 3"},
		Facts:   facts,
		Talks: core.Talks{
			General:      "This story touches everyday life. Rather than jumping to conclusions, consider gathering a few perspectives and letting the situation settle. Keep some distance from heated claims and start with small practical steps.",
			Entrepreneur: "Market reactions may swing, so consider validating with customer interviews and small experiments before bold moves. Keeping risk exposure low while learning through pilots or alternate channels is a possible idea.",
			Politician:   "Verifying the facts first and hearing a broad range of stakeholders would be prudent. If the issue could turn partisan, staged recommendations are a safer path than sweeping positions.",
			Investor:     "Fundamentals and cash flow deserve a look before the headlines do. Volatility can be managed through diversification and position sizing, and waiting for more information remains an option.",
		},
	}
}
