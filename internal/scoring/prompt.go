package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"realtycrm/api/internal/store"
)

const systemPrompt = "You are a lead scoring AI. Always respond with valid JSON only."

// promptProperties is how many of the sampled properties are shown to the
// model for budget matching.
const promptProperties = 5

// Signals is everything the scorer looks at for one lead.
type Signals struct {
	Lead       store.Lead
	FollowUps  []store.FollowUp
	SiteVisits []store.SiteVisit
	Messages   int
	Properties []store.PropertySample
}

func (s Signals) completedFollowUps() int {
	n := 0
	for _, f := range s.FollowUps {
		if f.Status == "completed" {
			n++
		}
	}
	return n
}

func (s Signals) completedVisits() int {
	n := 0
	for _, v := range s.SiteVisits {
		if v.Status == "completed" {
			n++
		}
	}
	return n
}

// BuildPrompt renders the scoring request with the five-part rubric.
func BuildPrompt(s Signals) (string, error) {
	props := s.Properties
	if len(props) > promptProperties {
		props = props[:promptProperties]
	}
	if props == nil {
		props = []store.PropertySample{}
	}
	propsJSON, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}

	l := s.Lead
	var b strings.Builder
	b.WriteString("You are a real estate lead scoring AI. Analyze this lead and provide a score from 0-100.\n\n")
	b.WriteString("Lead Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", l.Name)
	fmt.Fprintf(&b, "- Phone: %s\n", l.Phone)
	fmt.Fprintf(&b, "- Email: %s\n", orDefault(l.Email, "Not provided"))
	fmt.Fprintf(&b, "- Budget: %s\n", orDefault(l.Budget, "Not specified"))
	fmt.Fprintf(&b, "- Location Preference: %s\n", orDefault(l.Location, "Not specified"))
	fmt.Fprintf(&b, "- Property Type: %s\n", orDefault(l.PropertyType, "Not specified"))
	fmt.Fprintf(&b, "- Source: %s\n", orDefault(l.Source, "Unknown"))
	fmt.Fprintf(&b, "- Current Stage: %s\n", l.Stage)
	fmt.Fprintf(&b, "- Created: %s\n", l.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Last Contact: %s\n\n", l.LastContact.UTC().Format(time.RFC3339))

	b.WriteString("Engagement Data:\n")
	fmt.Fprintf(&b, "- Follow-ups scheduled: %d\n", len(s.FollowUps))
	fmt.Fprintf(&b, "- Completed follow-ups: %d\n", s.completedFollowUps())
	fmt.Fprintf(&b, "- Site visits: %d\n", len(s.SiteVisits))
	fmt.Fprintf(&b, "- Completed site visits: %d\n", s.completedVisits())
	fmt.Fprintf(&b, "- Messages exchanged: %d\n\n", s.Messages)

	b.WriteString("Available Properties (for budget matching):\n")
	b.Write(propsJSON)
	b.WriteString("\n\n")

	b.WriteString(`Scoring Criteria:
1. Budget Match (0-25 points): Does their budget align with available properties?
2. Engagement Level (0-25 points): Follow-ups completed, site visits, messages
3. Lead Stage (0-25 points): Further in pipeline = higher score
4. Contact Recency (0-15 points): Recent contact = higher score
5. Profile Completeness (0-10 points): Email, location, property type filled

Respond in this exact JSON format:
{
  "score": <number 0-100>,
  "reasoning": "<2-3 sentence explanation of the score>"
}`)
	return b.String(), nil
}

func orDefault(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}
