package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"moneta/internal/cloud"
	"moneta/internal/cloud/memory"
	"moneta/internal/log"
	"moneta/internal/services"
	"moneta/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneta.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	defaults, err := storage.LoadDefaultCategories("")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.EnsureSeed(ctx, defaults); err != nil {
		t.Fatal(err)
	}

	logger := log.New(log.Config{Component: log.ComponentHTTP, Output: io.Discard})
	store := memory.New()
	engine := services.NewEngine(repo, cloud.NewGateway(store, logger), cloud.NewRemote(store, store),
		services.DefaultEngineConfig(), logger)
	processor := services.NewSyncProcessor(repo, engine, services.DefaultSyncProcessorConfig(), logger)
	settings := services.NewSettingsService(repo, processor, logger)

	srv := NewServer(":0", services.NewExpenseService(repo), settings, processor, logger)
	srv.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndHeaders(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get(log.RequestIDHeader) == "" {
			t.Errorf("%s: missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}

	if rr := do(t, srv, http.MethodGet, "/api/sync", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/sync status=%d, want 405", rr.Code)
	}
}

func TestCategoriesAPI(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/categories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	seeded := decode[[]categoryJSON](t, rr)
	if len(seeded) == 0 || !seeded[0].IsDefault {
		t.Fatalf("expected seeded default categories, got %+v", seeded)
	}

	rr = do(t, srv, http.MethodPost, "/api/categories", categoryRequest{Name: "Pets", Icon: "paw", Color: "#AA00AA"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[categoryJSON](t, rr)
	if created.ID == "" || created.IsDefault {
		t.Fatalf("unexpected category %+v", created)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"rename custom", http.MethodPut, "/api/categories/" + created.ID, categoryRequest{Name: "Animals", Icon: "paw", Color: "#AA00AA"}, http.StatusOK},
		{"invalid color", http.MethodPost, "/api/categories", categoryRequest{Name: "X", Icon: "x", Color: "red"}, http.StatusUnprocessableEntity},
		{"default immutable", http.MethodPut, "/api/categories/" + seeded[0].ID, categoryRequest{Name: "X", Icon: "x", Color: "#000000"}, http.StatusConflict},
		{"unknown field", http.MethodPost, "/api/categories", map[string]string{"title": "x"}, http.StatusBadRequest},
		{"delete custom", http.MethodDelete, "/api/categories/" + created.ID, nil, http.StatusNoContent},
		{"delete missing", http.MethodDelete, "/api/categories/" + created.ID, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Errorf("status=%d, want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestExpensesAPI(t *testing.T) {
	srv := newTestServer(t)
	cats := decode[[]categoryJSON](t, do(t, srv, http.MethodGet, "/api/categories", nil))
	catID := cats[0].ID

	tests := []struct {
		name string
		req  expenseRequest
		want int
	}{
		{"valid", expenseRequest{Amount: "12,50", Date: "2024-03-05", Title: "Lunch", CategoryID: catID}, http.StatusCreated},
		{"bad amount", expenseRequest{Amount: "1.234", Date: "2024-03-05", CategoryID: catID}, http.StatusUnprocessableEntity},
		{"bad date", expenseRequest{Amount: "1", Date: "05/03/2024", CategoryID: catID}, http.StatusUnprocessableEntity},
		{"unknown category", expenseRequest{Amount: "1", Date: "2024-03-05", CategoryID: "nope"}, http.StatusUnprocessableEntity},
	}
	var created expenseJSON
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.req)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if rr.Code == http.StatusCreated {
				created = decode[expenseJSON](t, rr)
			}
		})
	}
	if created.AmountCents != 1250 || created.Amount != "12.50" || created.Date != "2024-03-05" {
		t.Fatalf("unexpected expense %+v", created)
	}

	// Default month comes from the server clock (March 2024).
	list := decode[[]expenseJSON](t, do(t, srv, http.MethodGet, "/api/expenses", nil))
	if len(list) != 1 || list[0].CategoryName == "" {
		t.Fatalf("unexpected list %+v", list)
	}
	if rr := do(t, srv, http.MethodGet, "/api/expenses?year=2024&month=13", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid month status=%d", rr.Code)
	}

	ov := decode[overviewJSON](t, do(t, srv, http.MethodGet, "/api/overview?year=2024&month=3", nil))
	if ov.TotalCents != 1250 {
		t.Fatalf("overview total=%d, want 1250", ov.TotalCents)
	}

	rr := do(t, srv, http.MethodPut, "/api/expenses/"+created.ID,
		expenseRequest{Amount: "20", Date: "2024-03-05", Title: "Dinner", CategoryID: catID})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	ov = decode[overviewJSON](t, do(t, srv, http.MethodGet, "/api/overview?year=2024&month=3", nil))
	if ov.TotalCents != 2000 {
		t.Errorf("overview should reflect the update, total=%d", ov.TotalCents)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/expenses/"+created.ID, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
	ov = decode[overviewJSON](t, do(t, srv, http.MethodGet, "/api/overview?year=2024&month=3", nil))
	if ov.TotalCents != 0 {
		t.Errorf("overview should be empty after delete, total=%d", ov.TotalCents)
	}
}

func TestUserAPI(t *testing.T) {
	srv := newTestServer(t)

	u := decode[userJSON](t, do(t, srv, http.MethodGet, "/api/user", nil))
	if u.ID == "" || u.Syncable {
		t.Fatalf("placeholder user should exist and not be syncable: %+v", u)
	}

	rr := do(t, srv, http.MethodPut, "/api/user", profileRequest{FirstName: "Ada", LastName: "Lovelace", Avatar: []byte{0x89, 0x50}, Income: "2500"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	u = decode[userJSON](t, rr)
	if !u.Syncable || u.Income != "2500.00" || len(u.Avatar) != 2 {
		t.Errorf("unexpected profile %+v", u)
	}

	if rr := do(t, srv, http.MethodPut, "/api/user", profileRequest{LastName: "Lovelace"}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing first name status=%d", rr.Code)
	}
}

func TestSyncAPI(t *testing.T) {
	srv := newTestServer(t)

	s := decode[syncSettingsJSON](t, do(t, srv, http.MethodGet, "/api/settings/sync", nil))
	if s.Enabled {
		t.Fatal("sync should start disabled")
	}

	rr := do(t, srv, http.MethodPost, "/api/sync", syncRequest{Mode: "push"})
	if rr.Code != http.StatusConflict || decode[ErrorBody](t, rr).Code != "sync_disabled" {
		t.Fatalf("request while disabled: status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := do(t, srv, http.MethodPost, "/api/settings/sync", map[string]any{}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing enabled status=%d", rr.Code)
	}

	enabled := true
	rr = do(t, srv, http.MethodPost, "/api/settings/sync", syncSettingsRequest{Enabled: &enabled})
	if rr.Code != http.StatusOK {
		t.Fatalf("enable status=%d body=%s", rr.Code, rr.Body.String())
	}
	if s = decode[syncSettingsJSON](t, rr); !s.Enabled || s.RequestID == "" {
		t.Fatalf("enabling should queue a push: %+v", s)
	}

	if rr := do(t, srv, http.MethodPost, "/api/sync", syncRequest{Mode: "sideways"}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown mode status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/api/sync", syncRequest{Mode: "pull"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("pull status=%d body=%s", rr.Code, rr.Body.String())
	}
	if q := decode[syncQueuedJSON](t, rr); q.Mode != "pull" || q.RequestID == "" {
		t.Errorf("unexpected queued response %+v", q)
	}

	st := decode[syncStatusJSON](t, do(t, srv, http.MethodGet, "/api/sync/status", nil))
	if !st.Enabled || st.Queue.Pending != 2 || st.LastReport != nil {
		t.Errorf("unexpected status %+v", st)
	}
}
