package pipeline

// Metadata records provenance and timings for one verification run. It is
// returned alongside the response body and mirrored into the execution log.
type Metadata struct {
	RequestID      string   `json:"requestId"`
	GeneratorModel string   `json:"generatorModel,omitempty"`
	ValidatorModel string   `json:"validatorModel,omitempty"`
	GeneratorMs    int64    `json:"generatorMs"`
	ValidatorMs    *int64   `json:"validatorMs,omitempty"`
	LookupMs       int64    `json:"lookupMs,omitempty"`
	TotalMs        int64    `json:"totalMs"`
	WasValidated   bool     `json:"wasValidated"`
	Corrections    []string `json:"corrections"`
	CacheHit       bool     `json:"cacheHit"`
	CacheKey       string   `json:"cacheKey,omitempty"`
}

// DefaultModifiedDelta is the character-length delta at which a validator
// rewrite is reported as a content modification rather than a minor
// correction.
const DefaultModifiedDelta = 256

// classifyCorrection compares the draft and validated text and returns a
// human-readable correction note, or "" when the validator returned the
// draft unchanged.
func classifyCorrection(draft, validated string, modifiedDelta int) string {
	if draft == validated {
		return ""
	}
	delta := len(validated) - len(draft)
	if delta < 0 {
		delta = -delta
	}
	if delta >= modifiedDelta {
		return "validator modified the draft content"
	}
	return "validator made minor corrections"
}
