package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/platewise/platewise/llm"
	"github.com/platewise/platewise/model"
	"github.com/platewise/platewise/normalize"
	"github.com/platewise/platewise/recipe"
)

// Generator produces a draft artifact as raw text. It must respect the
// caller's deadline and is never retried internally.
type Generator interface {
	GenerateDraft(ctx context.Context, req *normalize.Request, kind recipe.Kind) (string, error)
	Model() string
}

// Validator reviews a draft against the normalized inputs and returns
// either the original text unchanged or a corrected version in the same
// shape. Fallback on failure is the orchestrator's decision, not this
// component's.
type Validator interface {
	ValidateAndCorrect(ctx context.Context, draft string, req *normalize.Request, kind recipe.Kind) (string, error)
	Model() string
}

// completer is the slice of llm.Client the adapters need. Satisfied by
// *llm.Client and the test mock.
type completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// zeroTemp pins adapter calls to deterministic output.
var zeroTemp = 0.0

// LLMGenerator is the fast-model Generator implementation.
type LLMGenerator struct {
	client    completer
	modelName string
}

// NewLLMGenerator resolves the generate-capability model once and returns
// the adapter.
func NewLLMGenerator(client completer, registry *model.Registry) (*LLMGenerator, error) {
	name := registry.Resolve(model.CapabilityGenerate)
	if name == "" {
		return nil, fmt.Errorf("no model configured for capability %s", model.CapabilityGenerate)
	}
	return &LLMGenerator{client: client, modelName: name}, nil
}

// Model returns the resolved model name.
func (g *LLMGenerator) Model() string {
	return g.modelName
}

// GenerateDraft sends one completion request and returns the raw textual
// response unmodified. No parsing happens here.
func (g *LLMGenerator) GenerateDraft(ctx context.Context, req *normalize.Request, kind recipe.Kind) (string, error) {
	resp, err := g.client.Complete(ctx, llm.Request{
		Model:       g.modelName,
		Temperature: &zeroTemp,
		Messages: []llm.Message{
			{Role: "system", Content: generatorSystemPrompt(kind)},
			{Role: "user", Content: generatorUserPrompt(req, kind)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// LLMValidator is the careful-model Validator implementation. Exactly one
// backing model is selected at construction from the registry's validate
// preference order; implementations are never raced.
type LLMValidator struct {
	client    completer
	modelName string
}

// NewLLMValidator resolves the validate-capability model once and returns
// the adapter.
func NewLLMValidator(client completer, registry *model.Registry) (*LLMValidator, error) {
	name := registry.Resolve(model.CapabilityValidate)
	if name == "" {
		return nil, fmt.Errorf("no model configured for capability %s", model.CapabilityValidate)
	}
	return &LLMValidator{client: client, modelName: name}, nil
}

// Model returns the resolved model name.
func (v *LLMValidator) Model() string {
	return v.modelName
}

// ValidateAndCorrect sends the draft for review and returns the reviewed
// text.
func (v *LLMValidator) ValidateAndCorrect(ctx context.Context, draft string, req *normalize.Request, kind recipe.Kind) (string, error) {
	resp, err := v.client.Complete(ctx, llm.Request{
		Model:       v.modelName,
		Temperature: &zeroTemp,
		Messages: []llm.Message{
			{Role: "system", Content: validatorSystemPrompt(kind)},
			{Role: "user", Content: validatorUserPrompt(draft, req)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// recipeShape is the target output shape embedded in prompts.
const recipeShape = `{"name": string, "ingredients": [string], "missingIngredients": [string], "steps": [string], "prepTime": string, "cookTime": string, "servings": number}`

// recommendationShape is the purchase-recommendation output shape.
const recommendationShape = `{"recommendations": [{"item": string, "reason": string, "notes": string}]}`

func shapeFor(kind recipe.Kind) string {
	if kind == recipe.KindRecommendations {
		return recommendationShape
	}
	return recipeShape
}

func generatorSystemPrompt(kind recipe.Kind) string {
	if kind == recipe.KindRecommendations {
		return "You are a grocery shopping assistant. Respond with a single JSON object and nothing else."
	}
	return "You are a recipe assistant. Respond with a single JSON object and nothing else."
}

func generatorUserPrompt(req *normalize.Request, kind recipe.Kind) string {
	var b strings.Builder

	if kind == recipe.KindRecommendations {
		b.WriteString("Suggest useful purchases based on this shopping list:\n")
	} else {
		b.WriteString("Create a recipe using these on-hand ingredients:\n")
	}
	for _, item := range req.Items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}

	if req.TypeHint != "" {
		b.WriteString("\nRequested type: ")
		b.WriteString(req.TypeHint)
		b.WriteString("\n")
	}

	if kind == recipe.KindRecipe {
		b.WriteString("\nList any ingredient the recipe needs but the list above lacks under missingIngredients.\n")
	}
	b.WriteString("\nRespond with exactly this JSON shape:\n")
	b.WriteString(shapeFor(kind))
	return b.String()
}

func validatorSystemPrompt(kind recipe.Kind) string {
	return "You carefully review a draft produced by another model. " +
		"Check it against the checklist and return either the original JSON unchanged " +
		"or a corrected version in exactly the same shape. Respond with JSON only."
}

func validatorUserPrompt(draft string, req *normalize.Request) string {
	var b strings.Builder
	b.WriteString("Available items:\n")
	for _, item := range req.Items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\nChecklist:\n")
	b.WriteString("- every used ingredient is either in the list above or declared missing\n")
	b.WriteString("- quantities are realistic\n")
	b.WriteString("- steps are in a workable order\n")
	b.WriteString("- nothing is fabricated\n")
	b.WriteString("\nDraft:\n")
	b.WriteString(draft)
	return b.String()
}
