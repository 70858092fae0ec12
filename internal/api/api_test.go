package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/lookup"
	"github.com/opensource-finance/underwriter/internal/metrics"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

type testEnv struct {
	server *Server
	store  *settings.Store
	bus    *bus.ChannelBus
}

// createTestServer wires the API over a temp SQLite repository.
func createTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	registry := rules.NewDefaultRegistry()
	m := metrics.New(nil)
	evaluator := rules.NewEvaluator(registry, rules.WithLogger(logger), rules.WithRecorder(m))
	store := settings.NewStore(settings.NewRepositorySource(repo), registry, settings.WithLogger(logger))
	scorer := decision.NewService(evaluator, store, lookup.FromRepository(repo),
		decision.WithStore(repo), decision.WithObserver(m), decision.WithLogger(logger))

	server := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Repo:     repo,
		Bus:      eventBus,
		Scorer:   scorer,
		Settings: store,
		Registry: registry,
		Metrics:  m,
		Logger:   logger,
		Version:  "test-v1",
		Workers:  true,
	})
	return &testEnv{server: server, store: store, bus: eventBus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

var alfa = domain.BankSettings{
	Name:           "Альфа-Банк",
	Enabled:        true,
	UseCommonRules: true,
	Rules: []domain.RuleConfig{
		domain.NewRuleConfig("FieldEqualScoring", map[string]any{
			"field": "request.interval", "operation": "<=", "value": 1140,
		}),
	},
}

func TestHealthAndReady(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	health := decode[map[string]any](t, rr)
	if health["status"] != "healthy" || health["version"] != "test-v1" {
		t.Errorf("unexpected health %v", health)
	}

	if rr := env.do(t, http.MethodGet, "/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before first load, got %d", rr.Code)
	}
	if err := env.store.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if rr := env.do(t, http.MethodGet, "/ready", nil); rr.Code != http.StatusOK {
		t.Errorf("expected 200 after load, got %d", rr.Code)
	}
}

func TestBankSettings(t *testing.T) {
	env := createTestServer(t)

	t.Run("put and get", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/banks/alfa", alfa)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		saved := decode[domain.BankSettings](t, rr)
		if saved.Code != "alfa" || len(saved.Rules) != 1 || saved.UpdatedAt.IsZero() {
			t.Errorf("unexpected saved bank %+v", saved)
		}

		rr = env.do(t, http.MethodGet, "/banks/alfa", nil)
		if rr.Code != http.StatusOK || decode[domain.BankSettings](t, rr).Name != "Альфа-Банк" {
			t.Errorf("unexpected get response %d: %s", rr.Code, rr.Body.String())
		}

		rr = env.do(t, http.MethodGet, "/banks", nil)
		if got := decode[map[string]any](t, rr)["count"]; got != float64(1) {
			t.Errorf("expected 1 bank, got %v", got)
		}
	})

	t.Run("invalid rules rejected", func(t *testing.T) {
		bad := map[string]any{
			"enabled": true,
			"rules":   []any{map[string]any{"class": "FieldEqualScoring", "field": "request.interval", "operation": "LIKE"}},
		}
		rr := env.do(t, http.MethodPut, "/banks/bad", bad)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d: %s", rr.Code, rr.Body.String())
		}
		if rr := env.do(t, http.MethodGet, "/banks/bad", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected invalid bank not to be stored, got %d", rr.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		env.do(t, http.MethodPut, "/banks/tmp", alfa)
		if rr := env.do(t, http.MethodDelete, "/banks/tmp", nil); rr.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodDelete, "/banks/tmp", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected 404 on second delete, got %d", rr.Code)
		}
	})
}

func TestCheckEndpoint(t *testing.T) {
	env := createTestServer(t)
	env.do(t, http.MethodPut, "/banks/alfa", alfa)

	t.Run("eligible", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/check", CheckRequest{
			BankCode: "alfa",
			Request:  &domain.Request{ID: "req-001", Kind: domain.KindGuarantee, Interval: 365},
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[domain.EvaluationResponse](t, rr)
		if resp.Status != domain.StatusEligible || resp.EvaluationID == "" {
			t.Errorf("unexpected response %+v", resp)
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace id header")
		}

		rr = env.do(t, http.MethodGet, "/evaluations/"+resp.EvaluationID, nil)
		if rr.Code != http.StatusOK || decode[domain.EvaluationResponse](t, rr).RequestID != "req-001" {
			t.Errorf("expected stored evaluation, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("rejected with reason", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/check", CheckRequest{
			Request: &domain.Request{ID: "req-002", BankCode: "alfa", Interval: 2000},
		})
		resp := decode[domain.EvaluationResponse](t, rr)
		if resp.Status != domain.StatusIneligible {
			t.Fatalf("expected INELIGIBLE, got %+v", resp)
		}
		if want := "Поле request.interval не удовлетворяет условию <= 1140"; resp.Reasons["alfa"] != want {
			t.Errorf("expected reason %q, got %q", want, resp.Reasons["alfa"])
		}

		rr = env.do(t, http.MethodGet, "/requests/req-002/evaluations", nil)
		if got := decode[map[string]any](t, rr)["count"]; got != float64(1) {
			t.Errorf("expected one evaluation for request, got %v", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			body any
			want int
		}{
			{"invalid json", "{", http.StatusBadRequest},
			{"missing request", CheckRequest{BankCode: "alfa"}, http.StatusBadRequest},
			{"missing bank", CheckRequest{Request: &domain.Request{}}, http.StatusBadRequest},
			{"unknown bank", CheckRequest{BankCode: "nope", Request: &domain.Request{}}, http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if rr := env.do(t, http.MethodPost, "/check", tt.body); rr.Code != tt.want {
					t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
				}
			})
		}
	})

	if rr := env.do(t, http.MethodGet, "/evaluations/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing evaluation, got %d", rr.Code)
	}
}

func TestEligibilityAndKillSwitch(t *testing.T) {
	env := createTestServer(t)
	env.do(t, http.MethodPut, "/banks/alfa", alfa)

	strictBank := alfa
	strictBank.Rules = []domain.RuleConfig{domain.NewRuleConfig("AlwaysFailScoring", nil)}
	env.do(t, http.MethodPut, "/banks/vtb", strictBank)

	body := CheckRequest{Request: &domain.Request{Interval: 100}}

	resp := decode[domain.EvaluationResponse](t, env.do(t, http.MethodPost, "/eligibility", body))
	if len(resp.Banks) != 2 || len(resp.Allowed) != 1 || resp.Allowed[0] != "alfa" {
		t.Errorf("expected only alfa allowed, got %+v", resp)
	}

	rr := env.do(t, http.MethodPut, "/settings/global", domain.GlobalSettings{Enabled: false})
	if rr.Code != http.StatusOK {
		t.Fatalf("put global: %d %s", rr.Code, rr.Body.String())
	}
	if decode[domain.GlobalSettings](t, env.do(t, http.MethodGet, "/settings/global", nil)).Enabled {
		t.Fatal("expected global switch off")
	}

	resp = decode[domain.EvaluationResponse](t, env.do(t, http.MethodPost, "/eligibility", body))
	if len(resp.Allowed) != 2 {
		t.Errorf("expected every bank to pass with the global switch off, got %v", resp.Allowed)
	}
	for _, b := range resp.Banks {
		if !b.Bypassed {
			t.Errorf("expected %s to be bypassed", b.BankCode)
		}
	}
}

func TestCatalogAndValidate(t *testing.T) {
	env := createTestServer(t)

	catalog := decode[map[string]any](t, env.do(t, http.MethodGet, "/catalog", nil))
	if catalog["count"] != float64(len(rules.Builtins())) {
		t.Errorf("unexpected catalog count %v", catalog["count"])
	}

	rr := env.do(t, http.MethodPost, "/rules/validate", `[{"class": "AlwaysPassScoring"}]`)
	if rr.Code != http.StatusOK {
		t.Errorf("expected valid rules, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/rules/validate", `[{"class": "NoSuchScoring"}]`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown rule, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/rules/validate", `[{"field": "x"}]`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for rule without class, got %d", rr.Code)
	}
}

func TestSubmit(t *testing.T) {
	env := createTestServer(t)

	received := make(chan domain.SubmittedRequest, 1)
	env.bus.Subscribe(context.Background(), domain.TopicRequestSubmitted, func(ctx context.Context, msg *domain.Message) error {
		var s domain.SubmittedRequest
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return err
		}
		received <- s
		return nil
	})

	rr := env.do(t, http.MethodPost, "/requests", CheckRequest{Request: &domain.Request{Interval: 10}})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	id := decode[map[string]string](t, rr)["requestId"]

	select {
	case s := <-received:
		if s.Request.ID != id {
			t.Errorf("expected request id %q, got %q", id, s.Request.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for submitted request")
	}
}

func TestSubmitWithoutWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	t.Cleanup(func() { eventBus.Close() })

	published := make(chan struct{}, 1)
	eventBus.Subscribe(context.Background(), domain.TopicRequestSubmitted, func(context.Context, *domain.Message) error {
		published <- struct{}{}
		return nil
	})

	server := NewServer(domain.ServerConfig{}, Deps{
		Bus:    eventBus,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	env := &testEnv{server: server, bus: eventBus}

	rr := env.do(t, http.MethodPost, "/requests", CheckRequest{Request: &domain.Request{Interval: 10}})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a worker, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "no scoring worker running") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}

	select {
	case <-published:
		t.Error("request was queued with no worker to consume it")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReload(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodPost, "/settings/reload", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := decode[map[string]any](t, rr)["source"]; got != "repository" {
		t.Errorf("expected repository source, got %v", got)
	}
}

func TestReadOnlySettings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alfa.yaml"), []byte("name: Альфа\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := rules.NewDefaultRegistry()
	store := settings.NewStore(settings.NewFileSource(dir), registry, settings.WithLogger(logger))
	server := NewServer(domain.ServerConfig{}, Deps{
		Settings: store,
		Registry: registry,
		Scorer:   decision.NewService(rules.NewEvaluator(registry), store, domain.Lookups{}),
		Logger:   logger,
	})
	env := &testEnv{server: server, store: store}

	if rr := env.do(t, http.MethodPost, "/settings/reload", nil); rr.Code != http.StatusOK {
		t.Fatalf("reload: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/banks/alfa", alfa); rr.Code != http.StatusConflict {
		t.Errorf("expected 409 for read-only source, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/evaluations/x", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without repository, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/requests", CheckRequest{Request: &domain.Request{}}); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without bus, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := createTestServer(t)
	env.do(t, http.MethodGet, "/health", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `underwriter_http_requests_total{method="GET",route="/health",status="2xx"} 1`) {
		t.Errorf("expected health request counter in:\n%s", rr.Body.String())
	}
}
