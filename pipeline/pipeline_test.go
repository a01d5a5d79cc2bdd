package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/platewise/cache"
	"github.com/platewise/platewise/events"
	"github.com/platewise/platewise/execlog"
	"github.com/platewise/platewise/llm"
	"github.com/platewise/platewise/llm/testutil"
	"github.com/platewise/platewise/model"
	"github.com/platewise/platewise/normalize"
	"github.com/platewise/platewise/pricing"
	"github.com/platewise/platewise/recipe"
)

const draftRecipeJSON = `{
  "name": "Tomato Pasta",
  "ingredients": ["tomato", "pasta", "olive oil"],
  "missingIngredients": ["garlic"],
  "steps": ["Boil pasta.", "Simmer tomatoes.", "Combine."],
  "prepTime": "10 minutes",
  "cookTime": "20 minutes",
  "servings": 2
}`

// stubGenerator and stubValidator let tests drive each stage directly.
type stubGenerator struct {
	text  string
	err   error
	calls atomic.Int32
}

func (g *stubGenerator) GenerateDraft(ctx context.Context, req *normalize.Request, kind recipe.Kind) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.text, nil
}

func (g *stubGenerator) Model() string { return "stub-generator" }

type stubValidator struct {
	transform func(draft string) string
	err       error
	calls     atomic.Int32
}

func (v *stubValidator) ValidateAndCorrect(ctx context.Context, draft string, req *normalize.Request, kind recipe.Kind) (string, error) {
	v.calls.Add(1)
	if v.err != nil {
		return "", v.err
	}
	if v.transform != nil {
		return v.transform(draft), nil
	}
	return draft, nil
}

func (v *stubValidator) Model() string { return "stub-validator" }

type stubSearcher struct {
	calls atomic.Int32
}

func (s *stubSearcher) Search(ctx context.Context, item string) ([]pricing.Product, error) {
	s.calls.Add(1)
	return []pricing.Product{
		{ID: "p1", Name: item, Price: 1.99, Merchant: "TestMart"},
	}, nil
}

func TestRun_FullFlow(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}
	val := &stubValidator{}
	searcher := &stubSearcher{}
	pub := events.NewPublisher()
	logs := execlog.NewStore()
	store := cache.NewStore(cache.NewMemory(0, 0))

	p := New(gen,
		WithValidator(val),
		WithCache(store),
		WithLookup(pricing.NewLookup(searcher)),
		WithEvents(pub),
		WithExecLog(logs),
	)

	requestID := "req-full-flow"
	ch, cancel := pub.Subscribe(requestID)
	defer cancel()

	result, err := p.Run(context.Background(), RunRequest{
		RequestID:  requestID,
		Items:      []string{"Tomato", "Pasta", "Olive Oil"},
		Kind:       recipe.KindRecipe,
		WithPrices: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	require.NotNil(t, result.Response.Recipe)

	assert.Equal(t, "Tomato Pasta", result.Response.Recipe.Name)
	assert.True(t, result.Metadata.WasValidated)
	assert.Empty(t, result.Metadata.Corrections)
	assert.False(t, result.Metadata.CacheHit)
	assert.Equal(t, "stub-generator", result.Metadata.GeneratorModel)
	assert.Equal(t, "stub-validator", result.Metadata.ValidatorModel)
	require.NotNil(t, result.Metadata.ValidatorMs)

	// Exactly one result key per missing ingredient.
	require.Len(t, result.Prices, 1)
	require.Len(t, result.Prices["garlic"], 1)
	assert.Equal(t, "TestMart", result.Prices["garlic"][0].Merchant)

	// Events arrive in stage order and end with exactly one terminal event.
	var stages []events.Stage
	terminals := 0
	deadline := time.After(2 * time.Second)
	for terminals == 0 {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("stream closed before terminal event")
			}
			stages = append(stages, ev.Stage)
			if ev.Terminal() {
				terminals++
			}
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []events.Stage{
		events.StageStarted,
		events.StageGenerating,
		events.StageValidating,
		events.StageParsing,
		events.StageSanitizing,
		events.StageCaching,
		events.StagePricing,
		events.StageDone,
	}, stages)

	entry, ok := logs.Get(requestID)
	require.True(t, ok)
	assert.True(t, entry.Success)
	assert.Equal(t, draftRecipeJSON, entry.DraftText)
	assert.False(t, entry.CompletedAt.IsZero())
}

func TestRun_ValidatorFailureFallsBackToDraft(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}
	val := &stubValidator{err: llm.NewTransientError(errors.New("model overloaded"))}
	logs := execlog.NewStore()

	p := New(gen, WithValidator(val), WithExecLog(logs))

	result, err := p.Run(context.Background(), RunRequest{
		Items: []string{"tomato", "pasta"},
		Kind:  recipe.KindRecipe,
	})
	require.NoError(t, err, "validator failure must not fail the run")

	assert.False(t, result.Metadata.WasValidated)
	require.Len(t, result.Metadata.Corrections, 1)
	assert.Contains(t, result.Metadata.Corrections[0], "unvalidated draft")
	assert.Equal(t, "Tomato Pasta", result.Response.Recipe.Name)

	entry, ok := logs.Get(result.Metadata.RequestID)
	require.True(t, ok)
	assert.True(t, entry.Success)
	assert.Equal(t, entry.Corrections, result.Metadata.Corrections)
}

func TestRun_ValidatorTimeoutFallsBackToDraft(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}

	p := New(gen,
		WithValidator(&timeoutValidator{}),
		WithValidatorTimeout(10*time.Millisecond),
	)

	result, err := p.Run(context.Background(), RunRequest{
		Items: []string{"tomato", "pasta"},
	})
	require.NoError(t, err)
	assert.False(t, result.Metadata.WasValidated)
	require.Len(t, result.Metadata.Corrections, 1)
	assert.Contains(t, result.Metadata.Corrections[0], "validator unavailable")
}

// timeoutValidator blocks until the stage deadline fires.
type timeoutValidator struct{}

func (v *timeoutValidator) ValidateAndCorrect(ctx context.Context, draft string, req *normalize.Request, kind recipe.Kind) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (v *timeoutValidator) Model() string { return "timeout-validator" }

func TestRun_GeneratorFailureIsFatal(t *testing.T) {
	gen := &stubGenerator{err: llm.NewFatalError(errors.New("invalid api key"))}
	pub := events.NewPublisher()
	logs := execlog.NewStore()

	p := New(gen, WithEvents(pub), WithExecLog(logs))

	requestID := "req-gen-fail"
	ch, cancel := pub.Subscribe(requestID)
	defer cancel()

	_, err := p.Run(context.Background(), RunRequest{
		RequestID: requestID,
		Items:     []string{"tomato"},
	})
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))

	var last events.Event
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, events.StageFailed, last.Stage)
	assert.True(t, last.Error)

	entry, ok := logs.Get(requestID)
	require.True(t, ok)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.Error, "invalid api key")
}

func TestRun_UnparseableOutputIsFatal(t *testing.T) {
	gen := &stubGenerator{text: "I'm sorry, I can't produce a recipe right now."}
	logs := execlog.NewStore()

	p := New(gen, WithExecLog(logs))

	_, err := p.Run(context.Background(), RunRequest{Items: []string{"tomato"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, recipe.ErrUnparseable)
}

func TestRun_CacheHitShortCircuits(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}
	val := &stubValidator{}
	store := cache.NewStore(cache.NewMemory(0, 0))

	p := New(gen, WithValidator(val), WithCache(store))

	req := RunRequest{
		Items:    []string{"Tomato", "Pasta", "Olive Oil"},
		TypeHint: "dinner",
		Kind:     recipe.KindRecipe,
	}

	first, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Metadata.CacheHit)

	// Different order and casing, same cache identity.
	req.Items = []string{"olive oil", "PASTA", "tomato"}
	second, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, int32(1), gen.calls.Load(), "cache hit must not invoke the generator")
	assert.Equal(t, int32(1), val.calls.Load())
	assert.Equal(t, first.Metadata.CacheKey, second.Metadata.CacheKey)
}

func TestRun_FallbackResultIsNotCached(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}
	val := &stubValidator{err: errors.New("validator down")}
	store := cache.NewStore(cache.NewMemory(0, 0))

	p := New(gen, WithValidator(val), WithCache(store))

	req := RunRequest{Items: []string{"tomato", "pasta"}}
	first, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Metadata.WasValidated)

	// The unvalidated draft must not satisfy the next request.
	second, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Metadata.CacheHit)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestRun_CorrectionClassification(t *testing.T) {
	tests := []struct {
		name      string
		transform func(string) string
		want      string
	}{
		{
			name:      "unchanged draft yields no note",
			transform: func(d string) string { return d },
			want:      "",
		},
		{
			name: "small edit is a minor correction",
			transform: func(d string) string {
				return d[:len(d)-1] + " " + "}"
			},
			want: "minor",
		},
		{
			name: "large rewrite is a content modification",
			transform: func(d string) string {
				pad := ""
				for i := 0; i < 40; i++ {
					pad += fmt.Sprintf(`"Step %d as written was unsafe.",`, i)
				}
				return `{"name":"Tomato Pasta","ingredients":["tomato","pasta"],"missingIngredients":[],"steps":[` + pad + `"Serve."],"servings":2}`
			},
			want: "modified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{text: draftRecipeJSON}
			val := &stubValidator{transform: tt.transform}
			p := New(gen, WithValidator(val))

			result, err := p.Run(context.Background(), RunRequest{Items: []string{"tomato", "pasta"}})
			require.NoError(t, err)
			assert.True(t, result.Metadata.WasValidated)

			if tt.want == "" {
				assert.Empty(t, result.Metadata.Corrections)
				return
			}
			require.Len(t, result.Metadata.Corrections, 1)
			assert.Contains(t, result.Metadata.Corrections[0], tt.want)
		})
	}
}

func TestRun_NoMissingIngredientsSkipsFanOut(t *testing.T) {
	complete := `{"name":"Tomato Salad","ingredients":["tomato"],"missingIngredients":[],"steps":["Slice."],"servings":1}`
	gen := &stubGenerator{text: complete}
	searcher := &stubSearcher{}

	p := New(gen, WithLookup(pricing.NewLookup(searcher)))

	result, err := p.Run(context.Background(), RunRequest{
		Items:      []string{"tomato"},
		WithPrices: true,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Prices)
	assert.Equal(t, int32(0), searcher.calls.Load())
}

func TestRun_InvalidInputRejectedBeforeAnyCall(t *testing.T) {
	gen := &stubGenerator{text: draftRecipeJSON}
	logs := execlog.NewStore()
	p := New(gen, WithExecLog(logs))

	_, err := p.Run(context.Background(), RunRequest{Items: []string{}})
	require.Error(t, err)

	var normErr *normalize.Error
	assert.ErrorAs(t, err, &normErr)
	assert.Equal(t, int32(0), gen.calls.Load())
	assert.Equal(t, 0, logs.Len(), "rejected input must leave no audit entry")
}

func TestRun_RecommendationsKind(t *testing.T) {
	recs := `{"recommendations":[{"item":"garlic press","reason":"you cook with garlic often","notes":"stainless"}]}`
	gen := &stubGenerator{text: recs}
	p := New(gen)

	result, err := p.Run(context.Background(), RunRequest{
		Items: []string{"garlic", "tomato"},
		Kind:  recipe.KindRecommendations,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Response.Recommendations)
	require.Len(t, result.Response.Recommendations.Recommendations, 1)
	assert.Equal(t, "garlic press", result.Response.Recommendations.Recommendations[0].Item)
}

func TestRun_UnknownKind(t *testing.T) {
	p := New(&stubGenerator{text: draftRecipeJSON})
	_, err := p.Run(context.Background(), RunRequest{
		Items: []string{"tomato"},
		Kind:  recipe.Kind("poem"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact kind")
}

func TestLLMAdapters_PromptConstruction(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{
			{Content: draftRecipeJSON, Model: "gpt-4o-mini"},
		},
	}
	registry := model.NewDefaultRegistry()

	gen, err := NewLLMGenerator(mock, registry)
	require.NoError(t, err)
	assert.Equal(t, "gpt-mini", gen.Model())

	norm, err := normalize.Normalize([]string{"tomato", "basil"}, "italian", normalize.DefaultOptions())
	require.NoError(t, err)

	draft, err := gen.GenerateDraft(context.Background(), norm, recipe.KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, draftRecipeJSON, draft)

	prompts := mock.GetCapturedPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "- tomato")
	assert.Contains(t, prompts[1], "- basil")
	assert.Contains(t, prompts[1], "italian")
	assert.Contains(t, prompts[1], "missingIngredients")
}

func TestLLMValidator_ResolvedOnceAtConstruction(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{Content: draftRecipeJSON}},
	}
	registry := model.NewDefaultRegistry()

	val, err := NewLLMValidator(mock, registry)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", val.Model())

	// Registry changes after construction must not affect the adapter.
	registry.SetCapability(model.CapabilityValidate, &model.CapabilityConfig{
		Preferred: []string{"gpt-full"},
	})
	assert.Equal(t, "claude-sonnet", val.Model())

	norm, err := normalize.Normalize([]string{"tomato"}, "", normalize.DefaultOptions())
	require.NoError(t, err)
	out, err := val.ValidateAndCorrect(context.Background(), draftRecipeJSON, norm, recipe.KindRecipe)
	require.NoError(t, err)
	assert.Equal(t, draftRecipeJSON, out)
}
