package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/velmar-soft/recibosgo/internal/config"
	"github.com/velmar-soft/recibosgo/internal/database"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "handlers-test-secret"

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db := &database.DB{DB: gdb}
	if err := db.AutoMigrate(&models.UserAuth{}, &models.StoredDocument{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{JWTSecret: testSecret}
	return NewRouter(db, cfg, nil)
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	access, _, err := utils.GenerateTokens(&models.UserAuth{ID: userID, Email: userID + "@example.com"}, testSecret)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return access
}

func doJSON(t *testing.T, router *Router, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer = bytes.NewBuffer(nil)
	if payload != nil {
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
	return records
}

func createRecord(t *testing.T, router *Router, token, collection string, payload map[string]interface{}) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/collections/"+collection, token, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create in %s: status %d: %s", collection, rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("create returned no id")
	}
	return created.ID
}

func TestCreateAndListRecords(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	createRecord(t, router, token, "clients", map[string]interface{}{"name": "Acme Corp"})
	createRecord(t, router, token, "clients", map[string]interface{}{"name": "Beta LLC"})

	rec := doJSON(t, router, http.MethodGet, "/api/collections/clients", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	records := decodeList(t, rec)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["name"] != "Acme Corp" || records[0]["id"] == nil || records[0]["userId"] != "u-1" {
		t.Errorf("record shape: %v", records[0])
	}
}

func TestListFiltersOnPayloadFields(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	createRecord(t, router, token, "receipts", map[string]interface{}{"number": "01/15/01/2024", "date": "2024-01-15"})
	createRecord(t, router, token, "receipts", map[string]interface{}{"number": "01/16/01/2024", "date": "2024-01-16"})

	rec := doJSON(t, router, http.MethodGet, "/api/collections/receipts?f.date=2024-01-15", token, nil)
	records := decodeList(t, rec)
	if len(records) != 1 || records[0]["number"] != "01/15/01/2024" {
		t.Fatalf("filtered records: %v", records)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/collections/receipts?f.number=01%2F16%2F01%2F2024", token, nil)
	records = decodeList(t, rec)
	if len(records) != 1 || records[0]["date"] != "2024-01-16" {
		t.Fatalf("filtered by number: %v", records)
	}
}

func TestListScopedToOwner(t *testing.T) {
	router := newTestRouter(t)

	createRecord(t, router, tokenFor(t, "u-1"), "clients", map[string]interface{}{"name": "Acme Corp"})

	rec := doJSON(t, router, http.MethodGet, "/api/collections/clients", tokenFor(t, "u-2"), nil)
	if records := decodeList(t, rec); len(records) != 0 {
		t.Errorf("other user sees %d records", len(records))
	}
}

func TestListSortsByPayloadField(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	for _, name := range []string{"Gamma SA", "Acme Corp", "Beta LLC"} {
		createRecord(t, router, token, "clients", map[string]interface{}{"name": name})
	}

	rec := doJSON(t, router, http.MethodGet, "/api/collections/clients?orderBy=name", token, nil)
	records := decodeList(t, rec)
	want := []string{"Acme Corp", "Beta LLC", "Gamma SA"}
	for i := range want {
		if records[i]["name"] != want[i] {
			t.Fatalf("sorted names: %v", records)
		}
	}

	rec = doJSON(t, router, http.MethodGet, "/api/collections/clients?orderBy=name&dir=desc", token, nil)
	records = decodeList(t, rec)
	if records[0]["name"] != "Gamma SA" {
		t.Errorf("descending sort: %v", records[0])
	}
}

func TestGetAndPatchRecord(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	id := createRecord(t, router, token, "clients", map[string]interface{}{"name": "Acme Corp", "phone": "123"})

	rec := doJSON(t, router, http.MethodPatch, "/api/collections/clients/"+id, token,
		map[string]interface{}{"phone": "456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/collections/clients/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["name"] != "Acme Corp" || got["phone"] != "456" {
		t.Errorf("patched record: %v", got)
	}
}

func TestUnknownCollection(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	rec := doJSON(t, router, http.MethodGet, "/api/collections/invoices", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCollectionsRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/collections/clients", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/collections/clients", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", resp.Code)
	}
}

func TestReceiptPDFEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := tokenFor(t, "u-1")

	createRecord(t, router, token, "company_profile", map[string]interface{}{"name": "Velmar Soft"})
	id := createRecord(t, router, token, "receipts", map[string]interface{}{
		"number": "01/15/01/2024", "date": "2024-01-15", "total": 120.5,
	})

	rec := doJSON(t, router, http.MethodGet, "/api/receipts/"+id+"/pdf", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pdf: status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("health body: %v", body)
	}
}
