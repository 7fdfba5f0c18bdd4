package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/config"
)

func TestGazetteerExtract(t *testing.T) {
	g, err := NewGazetteerExtractor()
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
		want []Entity
	}{
		{"empty", "", []Entity{}},
		{"none", "A rare disorder of deglycosylation.", []Entity{}},
		{"adjacent", "Spain, France", []Entity{{"Spain", KindGPE}, {"France", KindGPE}}},
		{"longest wins", "Patients in Mexico City and Mexico.", []Entity{{"Mexico City", KindGPE}, {"Mexico", KindGPE}}},
		{"accented", "Un caso en España y Perú.", []Entity{{"España", KindGPE}, {"Perú", KindGPE}}},
		{"word boundary", "Spaniards and Francesca", []Entity{}},
		{"case sensitive", "france", []Entity{}},
		{"region kind", "Across Europe", []Entity{{"Europe", KindLOC}}},
		{"punctuation", "(U.S.)", []Entity{{"U.S.", KindGPE}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Extract(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGazetteerFromList(t *testing.T) {
	g, err := NewGazetteerExtractorFromList("# comment\n\nAtlantis\nLemuria\tLOC\n")
	require.NoError(t, err)

	got, err := g.Extract(context.Background(), "From Atlantis to Lemuria")
	require.NoError(t, err)
	assert.Equal(t, []Entity{{"Atlantis", KindGPE}, {"Lemuria", KindLOC}}, got)

	_, err = NewGazetteerExtractorFromList("# nothing\n")
	assert.Error(t, err)
}

func TestServiceExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Clinic in Utah", body.Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entities":[{"text":"Utah","label":"GPE"}]}`))
	}))
	defer srv.Close()

	s := NewServiceExtractor(srv.URL, testLogger)
	defer s.Close()

	got, err := s.Extract(context.Background(), "Clinic in Utah")
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Text: "Utah", Kind: "GPE"}}, got)

	got, err = s.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestServiceExtractorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewServiceExtractor(srv.URL, testLogger)
	_, err := s.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLLMExtractorOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": "Sure! {\"entities\": [{\"text\": \"Chile\", \"label\": \"gpe\"}, {\"text\": \" \", \"label\": \"GPE\"}]} done",
		})
	}))
	defer srv.Close()

	client := NewLLMClient(config.LLMConfig{Provider: ProviderOllama, Endpoint: srv.URL, Model: "llama3"}, testLogger)
	l := NewLLMExtractor(client, testLogger)
	defer l.Close()

	got, err := l.Extract(context.Background(), "Familias en Chile")
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Text: "Chile", Kind: "GPE"}}, got)
}

func TestLLMExtractorOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"entities\":[{\"text\":\"Japan\",\"label\":\"GPE\"}]}"}}]}`))
	}))
	defer srv.Close()

	client := NewLLMClient(config.LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, APIKey: "secret"}, testLogger)
	got, err := NewLLMExtractor(client, testLogger).Extract(context.Background(), "Japan")
	require.NoError(t, err)
	assert.Equal(t, []Entity{{Text: "Japan", Kind: "GPE"}}, got)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, "{}", extractJSON("no json here"))
	assert.Equal(t, `{"a":{"b":1}}`, extractJSON(`prefix {"a":{"b":1}} suffix`))
	assert.Equal(t, `{"a":"}"}`, extractJSON(`{"a":"}"}`))
	assert.Equal(t, "{}", extractJSON(`{"unterminated":`))
}

func TestCachedExtractor(t *testing.T) {
	inner := &fakeExtractor{fn: func(_ context.Context, _ string) ([]Entity, error) {
		return []Entity{{Text: "Spain", Kind: KindGPE}}, nil
	}}
	cache := NewMemoryCache()
	c := NewCachedExtractor(inner, cache, testLogger)
	defer c.Close()

	for i := 0; i < 3; i++ {
		got, err := c.Extract(context.Background(), "in Spain")
		require.NoError(t, err)
		assert.Equal(t, []Entity{{Text: "Spain", Kind: KindGPE}}, got)
	}
	_, err := c.Extract(context.Background(), "elsewhere")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount())
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, "fake", c.Name())
}

func TestCachedExtractorDoesNotCacheErrors(t *testing.T) {
	fail := true
	inner := &fakeExtractor{fn: func(_ context.Context, _ string) ([]Entity, error) {
		if fail {
			return nil, assert.AnError
		}
		return []Entity{}, nil
	}}
	c := NewCachedExtractor(inner, NewMemoryCache(), testLogger)

	_, err := c.Extract(context.Background(), "text")
	require.ErrorIs(t, err, assert.AnError)

	fail = false
	_, err = c.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount())
}

func TestNewExtractorFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Enricher
	ext, err := NewExtractor(cfg, testLogger)
	require.NoError(t, err)
	defer ext.Close()
	assert.Equal(t, "gazetteer", ext.Name())
	assert.IsType(t, &CachedExtractor{}, ext)

	cfg.Provider = "oracle"
	_, err = NewExtractor(cfg, testLogger)
	assert.Error(t, err)
}
