package recipe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platewise/platewise/llm"
)

// ErrUnparseable is the terminal parse failure: the text could not be
// parsed even after one repair pass. It is not retried further.
var ErrUnparseable = errors.New("unparseable model output")

// Parse converts raw model text into a structured Response of the given
// kind. The first attempt is a strict parse (JSON field-name matching is
// case-insensitive); on failure the repair chain runs once and the strict
// parse is retried. A second failure is terminal.
func Parse(text string, kind Kind) (*Response, error) {
	extracted := llm.ExtractJSON(text)
	if extracted == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}

	resp, err := strictParse(extracted, kind)
	if err == nil {
		return resp, nil
	}

	repaired := llm.RepairJSON(extracted)
	resp, rerr := strictParse(repaired, kind)
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v (after repair: %v)", ErrUnparseable, err, rerr)
	}
	return resp, nil
}

// strictParse unmarshals into the variant matching kind.
func strictParse(text string, kind Kind) (*Response, error) {
	resp := &Response{Kind: kind}

	switch kind {
	case KindRecipe:
		var r Recipe
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, err
		}
		resp.Recipe = &r
	case KindRecommendations:
		var s RecommendationSet
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, err
		}
		resp.Recommendations = &s
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	resp.ensureDefaults()
	return resp, nil
}
