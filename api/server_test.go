package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rorkai/21st-sub000/analyzer"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

func newTestServer(t *testing.T, pub graph.Publisher) *httptest.Server {
	t.Helper()
	store := catalog.NewMemory(&catalog.Node{
		Ref:         catalog.Ref{Owner: "acme", Slug: "spinner", Category: "ui"},
		Code:        "export function Spinner() { return null }",
		LibraryDeps: ast.LibraryDeps{"motion": ast.LatestTag},
	})

	reg := prometheus.NewRegistry()
	resolver := graph.NewResolver(store, graph.Config{}, graph.WithMetrics(graph.NewMetrics(reg)))
	classifier := ts.NewClassifier(ts.DefaultClassifierConfig())

	opts := Options{
		Analyzer:   analyzer.New(ts.DefaultClassifierConfig(), nil),
		Classifier: classifier,
		Resolver:   resolver,
		Builder:    bundle.NewBuilder(resolver, classifier, bundle.DefaultConfig(), nil),
		Gatherer:   reg,
	}
	if pub != nil {
		opts.Publisher = pub
	}
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
}

func TestExports(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/exports", SourceRequest{
		Code: "export function Button() {}\nexport { Button as default }",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[ExportsResponse](t, resp)
	assert.Equal(t, []string{"Button"}, got.Exports)
	assert.False(t, got.HasErrors)

	resp = post(t, srv, "/api/v1/exports", SourceRequest{
		Code: "export function ButtonDemo() { return null }",
		Kind: ast.KindDemo,
	})
	got = decodeBody[ExportsResponse](t, resp)
	assert.Equal(t, "ButtonDemo", got.DemoEntry)
}

func TestExports_ParseFailure(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/exports", SourceRequest{Code: "export \x00"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "parse_failure", decodeBody[ErrorResponse](t, resp).Code)
}

func TestImports(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/imports", SourceRequest{
		Code: "import { motion } from \"motion/react\"\nimport { Card } from \"@/components/ui/card\"",
		Kind: ast.KindDemo,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[ImportsResponse](t, resp)
	assert.Len(t, got.Edges, 2)
	assert.Equal(t, ast.LibraryDeps{"motion": ast.LatestTag}, got.Dependencies.Libraries)
	require.Len(t, got.Dependencies.Ambiguous, 1)
	assert.True(t, got.Dependencies.Ambiguous[0].IsDemoDependency)
}

func TestStrip(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/strip", StripRequest{
		Demo:      "import { Button } from \"@/components/ui/button\"\nexport function Demo(){ return <Button/> }",
		SelfNames: []string{"Button"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[ts.StripResult](t, resp)
	assert.Equal(t, "export function Demo(){ return <Button/> }", got.ModifiedText)
}

func TestAnalyzeAndPromote(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/analyze", analyzer.Submission{
		Self:      catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component: "import { Spinner } from \"@/components/ui/spinner\"\nexport function Button() { return <Spinner /> }",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[analyzer.Report](t, resp)
	require.Len(t, report.AmbiguousDeps, 1)

	resp = post(t, srv, "/api/v1/promote", PromoteRequest{
		Report:     report,
		Dependency: report.AmbiguousDeps[0],
		URL:        "https://21st.dev/acme/spinner",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	promoted := decodeBody[analyzer.Report](t, resp)
	assert.Empty(t, promoted.AmbiguousDeps)
	assert.Equal(t, []catalog.Ref{{Owner: "acme", Slug: "spinner", Category: "ui"}}, promoted.DirectDeps)
}

func TestPromote_InvalidURL(t *testing.T) {
	srv := newTestServer(t, nil)

	dep := ast.UnknownDependency{SlugWithOwnerMissing: "spinner", Category: "ui"}
	resp := post(t, srv, "/api/v1/promote", PromoteRequest{
		Report:     analyzer.Report{AmbiguousDeps: []ast.UnknownDependency{dep}},
		Dependency: dep,
		URL:        "ftp://21st.dev/acme/spinner",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResolve(t *testing.T) {
	pub := &recordingPublisher{}
	srv := newTestServer(t, pub)

	resp := post(t, srv, "/api/v1/resolve", ResolveRequest{
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}, {Owner: "acme", Slug: "missing"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g struct {
		Files  map[string]string `json:"files"`
		Order  []string          `json:"order"`
		Broken []struct {
			To catalog.Ref `json:"to"`
		} `json:"broken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.Equal(t, []string{"acme/spinner"}, g.Order)
	assert.Contains(t, g.Files, "/components/acme/spinner.tsx")
	require.Len(t, g.Broken, 1)
	assert.Equal(t, "missing", g.Broken[0].To.Slug)

	assert.Equal(t, []string{graph.ResolvedSubject}, pub.subjects)
}

func TestResolve_PublishFailureDoesNotFailRequest(t *testing.T) {
	srv := newTestServer(t, &recordingPublisher{err: errors.New("nats down")})

	resp := post(t, srv, "/api/v1/resolve", ResolveRequest{
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResolve_AmbiguousConflict(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/resolve", ResolveRequest{
		Dependencies: []catalog.Ref{{Slug: "card", Category: "ui"}},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	got := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "ambiguous_dependencies", got.Code)
	assert.Equal(t, []ast.UnknownDependency{{SlugWithOwnerMissing: "card", Category: "ui"}}, got.Pending)
}

func TestBundle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/bundle", bundle.BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component:    "export function Button() { return null }",
		Demo:         "export function ButtonDemo() { return <Button /> }",
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decodeBody[bundle.Manifest](t, resp)
	assert.Equal(t, "/App.tsx", m.Entry)
	assert.Contains(t, m.Files, "/components/ui/button.tsx")
	assert.Equal(t, ast.LatestTag, m.Dependencies["motion"])
}

func TestBundle_NoDemoEntry(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := post(t, srv, "/api/v1/bundle", bundle.BuildInput{
		Self:      catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component: "export function Button() { return null }",
		Demo:      "export const demo = 1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBadRequestBody(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/analyze", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	store := catalog.NewMemory()
	srv := httptest.NewServer(New(Options{
		Analyzer:     analyzer.New(ts.DefaultClassifierConfig(), nil),
		Resolver:     graph.NewResolver(store, graph.Config{}),
		MaxBodyBytes: 16,
		Gatherer:     prometheus.NewRegistry(),
	}).Handler())
	defer srv.Close()

	body, _ := json.Marshal(StripRequest{Demo: strings.Repeat("x", 64)})
	resp, err := http.Post(srv.URL+"/api/v1/strip", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	// No builder, no bundle route.
	resp2, err := http.Post(srv.URL+"/api/v1/bundle", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	post(t, srv, "/api/v1/resolve", ResolveRequest{
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "regscan_resolver_fetches_total")
}
