// Package recipe defines the structured artifacts the verification pipeline
// produces, and the strict-parse-with-repair path from raw model text to
// those artifacts.
package recipe

// Kind identifies which artifact variant a response carries. It also scopes
// cache keys so the two kinds can never collide.
type Kind string

const (
	// KindRecipe is a cooking recipe built from on-hand inventory.
	KindRecipe Kind = "recipe"

	// KindRecommendations is a set of purchase recommendations.
	KindRecommendations Kind = "product-recommendations"
)

// IsValid reports whether k names a known artifact kind.
func (k Kind) IsValid() bool {
	return k == KindRecipe || k == KindRecommendations
}

// Recipe is the structured recipe artifact.
// Every list field is non-nil after parsing.
type Recipe struct {
	Name               string   `json:"name"`
	Ingredients        []string `json:"ingredients"`
	MissingIngredients []string `json:"missingIngredients"`
	Steps              []string `json:"steps"`
	PrepTime           string   `json:"prepTime"`
	CookTime           string   `json:"cookTime"`
	Servings           int      `json:"servings"`
	SourceURL          string   `json:"sourceUrl,omitempty"`
}

// Recommendation is one purchase suggestion.
type Recommendation struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
	Notes  string `json:"notes,omitempty"`
	URL    string `json:"url,omitempty"`
}

// RecommendationSet is the structured purchase-recommendation artifact.
type RecommendationSet struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// Response is the tagged variant over the two artifact kinds.
// Exactly one of Recipe or Recommendations is non-nil, matching Kind.
type Response struct {
	Kind            Kind               `json:"kind"`
	Recipe          *Recipe            `json:"recipe,omitempty"`
	Recommendations *RecommendationSet `json:"recommendations,omitempty"`
}

// ensureDefaults replaces nil list fields with empty slices so callers
// never see a null-shaped success.
func (r *Response) ensureDefaults() {
	switch {
	case r.Recipe != nil:
		if r.Recipe.Ingredients == nil {
			r.Recipe.Ingredients = []string{}
		}
		if r.Recipe.MissingIngredients == nil {
			r.Recipe.MissingIngredients = []string{}
		}
		if r.Recipe.Steps == nil {
			r.Recipe.Steps = []string{}
		}
	case r.Recommendations != nil:
		if r.Recommendations.Recommendations == nil {
			r.Recommendations.Recommendations = []Recommendation{}
		}
	}
}
