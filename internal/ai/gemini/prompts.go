package gemini

import (
	"fmt"
	"strings"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
)

// buildVerdictPrompt creates the adjudication prompt for a citizen drainage report
func buildVerdictPrompt(rc ai.ReportContext) string {
	var b strings.Builder

	b.WriteString(`You are reviewing a citizen-submitted photo report of a drainage hazard in Ho Chi Minh City. Decide whether the photo genuinely shows a drainage problem (flooding, blocked drain, broken drain cover, overflowing canal, standing water, collapsed drainage infrastructure).

Report context:
`)
	fmt.Fprintf(&b, "- Location: %s (%.6f, %.6f)\n", rc.LocationTitle, rc.Latitude, rc.Longitude)
	fmt.Fprintf(&b, "- Submitted at: %s\n", rc.SubmittedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Reporter description: %s\n", rc.Description)
	fmt.Fprintf(&b, "- Reporter severity claim: %s\n", rc.UserSeverity)
	fmt.Fprintf(&b, "- Reporter traffic impact claim: %s\n", rc.TrafficImpact)

	b.WriteString(`
Judge the photo first and the description second. A report is invalid if the
photo shows no drainage issue, is unrelated to the described location type,
is a screenshot or a photo of a screen, or is too dark/blurry to assess.

Rate severity from 1 (cosmetic, no risk) to 5 (dangerous flooding or
structural failure). Rate your confidence from 0.0 to 1.0.

Respond with ONLY a JSON object, no markdown, no commentary:

{
  "is_valid": true,
  "confidence": 0.0,
  "detected_issue": "short description of what the photo shows",
  "severity": 1,
  "reasons": ["short reason", "short reason"]
}`)

	return b.String()
}
