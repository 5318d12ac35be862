package hada_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hada"
)

type fakeResolver struct {
	records atomic.Int32
}

func (f *fakeResolver) ResolveRecord(_ context.Context, ingredient string) (hada.Record, error) {
	f.records.Add(1)
	if ingredient == "Broken" {
		return hada.Record{}, errors.New("upstream unavailable")
	}
	return hada.Record{
		Chemical:        "ignored",
		Description:     "From the fake resolver.",
		Source:          "fake",
		Fragrance:       "No",
		Acneogenic:      1,
		SensitivityRisk: "Low",
	}, nil
}

func (f *fakeResolver) ResolveAssessment(_ context.Context, _ string, concern hada.Concern) (hada.Assessment, error) {
	if concern == "eco" {
		return hada.Assessment{Safe: "maybe"}, nil
	}
	return hada.Assessment{Safe: "Not Safe", Reason: "comedogenic"}, nil
}

type analyzeResult struct {
	Data struct {
		Results []struct {
			Chemical    string         `json:"Chemical"`
			Source      string         `json:"Source"`
			Acneogenic  json.Number    `json:"Acneogenic"`
			ConcernNote []string       `json:"Concern_Note"`
			Assessments map[string]any `json:"Assessments"`
		} `json:"results"`
	} `json:"data"`
}

func newApp(t *testing.T, opts ...hada.Option) *hada.App {
	t.Helper()
	t.Setenv("HADA_RATE_LIMIT_ENABLED", "false")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HADA_RESOLVER_MODE", "live")

	app, err := hada.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func post(t *testing.T, h http.Handler, body string) (int, analyzeResult) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body)))
	var out analyzeResult
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestNewRequiresCredentialWithoutResolver(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HADA_RESOLVER_MODE", "live")
	t.Setenv("HADA_STORE_PATH", filepath.Join(t.TempDir(), "data.json"))

	_, err := hada.New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestAppWithExternalResolver(t *testing.T) {
	res := &fakeResolver{}
	app := newApp(t,
		hada.WithResolver(res),
		hada.WithStore("flat", filepath.Join(t.TempDir(), "data.json")),
		hada.WithVersion("1.2.3"),
	)

	code, out := post(t, app.Handler(), `{"ingredients": ["Lanolin", "Broken", "lanolin"], "concerns": ["acne"]}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out.Data.Results, 3)

	assert.Equal(t, "Lanolin", out.Data.Results[0].Chemical, "the requested name wins over the resolver's")
	assert.Equal(t, "fake", out.Data.Results[0].Source)
	assert.Equal(t, json.Number("1"), out.Data.Results[0].Acneogenic)
	assert.Len(t, out.Data.Results[0].ConcernNote, 1)

	assert.Equal(t, "API Error", out.Data.Results[1].Source)
	assert.Equal(t, "Broken", out.Data.Results[1].Chemical)
	assert.Equal(t, int32(2), res.records.Load())

	// Second call: Lanolin is cached, Broken was not persisted and is retried.
	code, _ = post(t, app.Handler(), `{"ingredients": ["LANOLIN", "Broken"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int32(3), res.records.Load())
}

func TestAppDimensionalStoreWithExternalResolver(t *testing.T) {
	app := newApp(t,
		hada.WithResolver(&fakeResolver{}),
		hada.WithStore("dimensional", filepath.Join(t.TempDir(), "ingredients.csv")),
	)

	code, out := post(t, app.Handler(), `{"ingredients": ["Lanolin"], "concerns": ["acne", "eco"]}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out.Data.Results, 1)

	assessments := out.Data.Results[0].Assessments
	require.Contains(t, assessments, "acne")
	require.Contains(t, assessments, "eco")
	assert.Equal(t, "not safe", assessments["acne"].(map[string]any)["safe"])
	assert.Equal(t, "unknown", assessments["eco"].(map[string]any)["safe"], "unrecognized verdicts degrade")
}

func TestAppMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) hada.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	app := newApp(t,
		hada.WithResolver(&fakeResolver{}),
		hada.WithStore("sqlite", filepath.Join(t.TempDir(), "hada.db")),
		hada.WithMiddleware(mw("outer")),
		hada.WithMiddleware(mw("inner")),
	)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Contains(t, rec.Body.String(), `"resolver_mode":"external"`)
}

func TestAppServesOpenAPISpec(t *testing.T) {
	app := newApp(t,
		hada.WithResolver(&fakeResolver{}),
		hada.WithStore("flat", filepath.Join(t.TempDir(), "data.json")),
	)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/v1/analyze")
}
