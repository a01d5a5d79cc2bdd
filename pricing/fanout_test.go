package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSearcher returns canned results or errors per item.
type stubSearcher struct {
	results map[string][]Product
	errs    map[string]error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *stubSearcher) Search(ctx context.Context, item string) ([]Product, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err, ok := s.errs[item]; ok {
		return nil, err
	}
	return s.results[item], nil
}

func TestLookupMany_OneKeyPerItem(t *testing.T) {
	s := &stubSearcher{
		results: map[string][]Product{
			"garlic": {{ID: "1", Name: "Garlic bulb", Price: 0.99}},
		},
		errs: map[string]error{
			"saffron": errors.New("provider error"),
		},
	}

	l := NewLookup(s)
	got := l.LookupMany(context.Background(), []string{"garlic", "saffron", "unknown"})

	require.Len(t, got, 3)
	assert.Len(t, got["garlic"], 1)
	assert.Empty(t, got["saffron"])
	assert.Empty(t, got["unknown"])
	// Failed entries are empty lists, never nil.
	assert.NotNil(t, got["saffron"])
}

func TestLookupMany_TimeoutDegradesSingleItem(t *testing.T) {
	s := &stubSearcher{
		delay: 200 * time.Millisecond,
		results: map[string][]Product{
			"garlic": {{ID: "1", Name: "Garlic"}},
		},
	}

	l := NewLookup(s, WithPerItemTimeout(20*time.Millisecond))
	got := l.LookupMany(context.Background(), []string{"garlic"})

	require.Len(t, got, 1)
	assert.Empty(t, got["garlic"])
}

func TestLookupMany_TruncatesToTopN(t *testing.T) {
	many := make([]Product, 10)
	for i := range many {
		many[i] = Product{ID: string(rune('a' + i))}
	}
	s := &stubSearcher{results: map[string][]Product{"flour": many}}

	l := NewLookup(s, WithTopN(3))
	got := l.LookupMany(context.Background(), []string{"flour"})

	assert.Len(t, got["flour"], 3)
}

func TestLookupMany_DeduplicatesItems(t *testing.T) {
	s := &stubSearcher{results: map[string][]Product{"egg": {{ID: "1"}}}}

	l := NewLookup(s)
	got := l.LookupMany(context.Background(), []string{"egg", "egg", "egg"})

	require.Len(t, got, 1)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestLookupMany_CancelledParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &stubSearcher{results: map[string][]Product{"egg": {{ID: "1"}}}}
	l := NewLookup(s)
	got := l.LookupMany(ctx, []string{"egg", "milk"})

	// The barrier still yields one entry per item.
	require.Len(t, got, 2)
}

func TestHTTPClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "garlic", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "default", r.URL.Query().Get("sort"))

		json.NewEncoder(w).Encode(searchResponse{Products: []Product{
			{ID: "p1", Name: "Garlic bulb", Brand: "FreshCo", Price: 0.99, Merchant: "GrocerOne"},
			{ID: "p2", Name: "Garlic jar", Price: 2.49},
		}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	products, err := client.Search(context.Background(), "garlic")

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Garlic bulb", products[0].Name)
	assert.Equal(t, 0.99, products[0].Price)
}

func TestHTTPClient_Search_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.Search(context.Background(), "garlic")
	require.Error(t, err)
}
