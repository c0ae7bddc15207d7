package scoring

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Outcome tells a model-produced score apart from the neutral default.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeFallback Outcome = "fallback"
)

const (
	FallbackScore      = 50
	FallbackReasoning  = "Unable to calculate score"
	DefaultReasoning   = "Score calculated based on lead data"
	MinScore, MaxScore = 0, 100
)

type Result struct {
	Score     int     `json:"score"`
	Reasoning string  `json:"reasoning"`
	Outcome   Outcome `json:"outcome"`
}

// ExtractJSON returns the first well-formed JSON object embedded in text.
func ExtractJSON(text string) (json.RawMessage, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && bytes.HasPrefix(raw, []byte("{")) {
			return raw, true
		}
	}
	return nil, false
}

// Interpret turns a model response into a result. Anything without a
// numeric score falls back to the neutral default.
func Interpret(content string) Result {
	fallback := Result{Score: FallbackScore, Reasoning: FallbackReasoning, Outcome: OutcomeFallback}

	raw, ok := ExtractJSON(content)
	if !ok {
		return fallback
	}
	var body struct {
		Score     json.RawMessage `json:"score"`
		Reasoning any             `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return fallback
	}
	score, ok := parseScore(body.Score)
	if !ok {
		return fallback
	}

	reasoning, _ := body.Reasoning.(string)
	reasoning = strings.TrimSpace(reasoning)
	if reasoning == "" {
		reasoning = DefaultReasoning
	}
	return Result{Score: Clamp(score), Reasoning: reasoning, Outcome: OutcomeParsed}
}

func parseScore(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// Clamp rounds to the nearest integer and bounds it to [0,100].
func Clamp(score float64) int {
	if math.IsNaN(score) {
		return FallbackScore
	}
	rounded := math.Round(score)
	if rounded < MinScore {
		return MinScore
	}
	if rounded > MaxScore {
		return MaxScore
	}
	return int(rounded)
}
