package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StrictRecipe(t *testing.T) {
	text := `{
		"name": "Tomato Soup",
		"ingredients": ["2 tomatoes", "1 onion"],
		"missingIngredients": ["garlic"],
		"steps": ["Chop", "Simmer"],
		"prepTime": "10 min",
		"cookTime": "25 min",
		"servings": 4
	}`

	resp, err := Parse(text, KindRecipe)
	require.NoError(t, err)
	require.NotNil(t, resp.Recipe)
	assert.Nil(t, resp.Recommendations)
	assert.Equal(t, "Tomato Soup", resp.Recipe.Name)
	assert.Equal(t, []string{"garlic"}, resp.Recipe.MissingIngredients)
	assert.Equal(t, 4, resp.Recipe.Servings)
}

func TestParse_CaseInsensitiveFieldNames(t *testing.T) {
	text := `{"NAME": "Soup", "Ingredients": ["tomato"], "SERVINGS": 2}`

	resp, err := Parse(text, KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, "Soup", resp.Recipe.Name)
	assert.Equal(t, []string{"tomato"}, resp.Recipe.Ingredients)
	assert.Equal(t, 2, resp.Recipe.Servings)
}

func TestParse_ListFieldsNeverNil(t *testing.T) {
	resp, err := Parse(`{"name": "Bare"}`, KindRecipe)
	require.NoError(t, err)
	assert.NotNil(t, resp.Recipe.Ingredients)
	assert.NotNil(t, resp.Recipe.MissingIngredients)
	assert.NotNil(t, resp.Recipe.Steps)
	assert.Empty(t, resp.Recipe.Ingredients)

	resp, err = Parse(`{}`, KindRecommendations)
	require.NoError(t, err)
	assert.NotNil(t, resp.Recommendations.Recommendations)
}

func TestParse_RepairsTrailingComma(t *testing.T) {
	resp, err := Parse(`{"name": "Soup", "steps": ["chop", "boil",],}`, KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, []string{"chop", "boil"}, resp.Recipe.Steps)
}

func TestParse_RepairsTruncatedOutput(t *testing.T) {
	resp, err := Parse(`{"name": "Soup", "ingredients": ["tomato", "onion"`, KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, "Soup", resp.Recipe.Name)
	assert.Equal(t, []string{"tomato", "onion"}, resp.Recipe.Ingredients)
}

func TestParse_MarkdownFencedOutput(t *testing.T) {
	text := "Here is your recipe:\n```json\n{\"name\": \"Soup\"}\n```\nEnjoy!"
	resp, err := Parse(text, KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, "Soup", resp.Recipe.Name)
}

func TestParse_UnparseableIsTerminal(t *testing.T) {
	_, err := Parse("no json here at all", KindRecipe)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseable))
}

func TestParse_Recommendations(t *testing.T) {
	text := `{"recommendations": [{"item": "olive oil", "reason": "pantry staple"}]}`
	resp, err := Parse(text, KindRecommendations)
	require.NoError(t, err)
	require.Len(t, resp.Recommendations.Recommendations, 1)
	assert.Equal(t, "olive oil", resp.Recommendations.Recommendations[0].Item)
}
