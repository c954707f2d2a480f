package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/model"
)

// Step4Request captures one publish call received by the mock backend.
type Step4Request struct {
	ElanID            string
	PrimaryImageIndex string
	Images            []string
}

// MockListingAPI is an httptest stand-in for the upstream listing service.
// It serves the phase commit endpoints, the lookup endpoints, and the
// signed-upload protocol, recording every payload for later assertions.
type MockListingAPI struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	nextElanID    int
	nextFile      int
	featureFields []model.FieldSchema
	locations     map[string][]backend.LocationOption
	rejections    map[string]string
	serverErrors  map[string]bool
	step1Payloads []map[string]any
	step2Payloads []map[string]any
	step3Payloads []map[string]any
	step4Requests []Step4Request
	slotRequests  []map[string]string
	confirms      []map[string]string
	storage       map[string][]byte
}

func newMockListingAPI(t *testing.T) *MockListingAPI {
	t.Helper()

	m := &MockListingAPI{
		t:            t,
		nextElanID:   48213,
		rejections:   make(map[string]string),
		serverErrors: make(map[string]bool),
		storage:      make(map[string][]byte),
		featureFields: []model.FieldSchema{
			{
				Slug: "rooms", Title: "Rooms", WidgetKind: model.WidgetSelect,
				Options: []model.FieldOption{
					{ValueTitle: "One", Slug: "one"},
					{ValueTitle: "Two", Slug: "two"},
					{ValueTitle: "Three", Slug: "three"},
				},
			},
			{
				Slug: "amenities", Title: "Amenities", WidgetKind: model.WidgetCheckbox,
				Options: []model.FieldOption{
					{ValueTitle: "Elevator", Slug: "elevator"},
					{ValueTitle: "Parking", Slug: "parking"},
				},
			},
			{Slug: "area-size", Title: "Area Size", WidgetKind: model.WidgetRange,
				Min: ptr(10.0), Max: ptr(10000.0)},
		},
		locations: map[string][]backend.LocationOption{
			"country/": {{Name: "Türkiye", Slug: "turkiye"}},
			"province/turkiye": {
				{Name: "İstanbul", Slug: "istanbul"},
				{Name: "Ankara", Slug: "ankara"},
			},
			"city/istanbul":      {{Name: "İstanbul", Slug: "istanbul-city"}},
			"area/istanbul-city": {{Name: "Kadıköy", Slug: "kadikoy"}, {Name: "Beşiktaş", Slug: "besiktas"}},
		},
	}

	r := chi.NewRouter()
	r.Post("/api/elan/step1", m.authed(m.handleStep1))
	r.Post("/api/elan/step2", m.authed(m.handleStep2))
	r.Post("/api/elan/step3", m.authed(m.handleStep3))
	r.Post("/api/elan/{elanID}/step4", m.authed(m.handleStep4))
	r.Get("/api/elan/features", m.handleFeatures)
	r.Get("/api/locations", m.handleLocations)
	r.Post("/api/upload/slot", m.authed(m.handleSlot))
	r.Post("/api/upload/confirm", m.authed(m.handleConfirm))
	r.Put("/storage/{name}", m.handleStorePut)

	m.server = httptest.NewServer(r)
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the mock server's base URL.
func (m *MockListingAPI) URL() string {
	return m.server.URL
}

// Reject makes the named endpoint return a status:false envelope with the
// given message until cleared.
func (m *MockListingAPI) Reject(path, message string) {
	m.mu.Lock()
	m.rejections[path] = message
	m.mu.Unlock()
}

// ClearReject removes a configured rejection.
func (m *MockListingAPI) ClearReject(path string) {
	m.mu.Lock()
	delete(m.rejections, path)
	m.mu.Unlock()
}

// FailWith500 makes the named endpoint return HTTP 500 until cleared.
func (m *MockListingAPI) FailWith500(path string) {
	m.mu.Lock()
	m.serverErrors[path] = true
	m.mu.Unlock()
}

// Step2Payloads returns the recorded attribute commit payloads.
func (m *MockListingAPI) Step2Payloads() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.step2Payloads...)
}

// Step3Payloads returns the recorded location commit payloads.
func (m *MockListingAPI) Step3Payloads() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.step3Payloads...)
}

// Step4Requests returns the recorded publish calls.
func (m *MockListingAPI) Step4Requests() []Step4Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Step4Request(nil), m.step4Requests...)
}

// SlotRequests returns the recorded upload slot requests.
func (m *MockListingAPI) SlotRequests() []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.slotRequests...)
}

// Confirms returns the recorded upload confirmations.
func (m *MockListingAPI) Confirms() []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.confirms...)
}

// StoredFile returns the bytes written to a remote file name.
func (m *MockListingAPI) StoredFile(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.storage[name]
	return data, ok
}

// --- handlers ---

func (m *MockListingAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" || r.Header.Get("Authorization") == "Bearer " {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "unauthenticated"})
			return
		}
		next(w, r)
	}
}

// intercept applies configured failures. Returns true when the request was
// already answered.
func (m *MockListingAPI) intercept(w http.ResponseWriter, path string) bool {
	m.mu.Lock()
	rejection, rejected := m.rejections[path]
	serverError := m.serverErrors[path]
	m.mu.Unlock()

	if serverError {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "internal error"})
		return true
	}
	if rejected {
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": rejection})
		return true
	}
	return false
}

func (m *MockListingAPI) handleStep1(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/elan/step1") {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.step1Payloads = append(m.step1Payloads, payload)
	id := m.nextElanID
	m.nextElanID++
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"status":  true,
		"message": "listing created",
		"elan_id": id,
	})
}

func (m *MockListingAPI) handleStep2(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/elan/step2") {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.step2Payloads = append(m.step2Payloads, payload)
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"status": true, "message": "attributes saved"})
}

func (m *MockListingAPI) handleStep3(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/elan/step3") {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.step3Payloads = append(m.step3Payloads, payload)
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"status": true, "message": "location saved"})
}

func (m *MockListingAPI) handleStep4(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/elan/step4") {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.step4Requests = append(m.step4Requests, Step4Request{
		ElanID:            chi.URLParam(r, "elanID"),
		PrimaryImageIndex: r.FormValue("primaryImageIndex"),
		Images:            r.MultipartForm.Value["images[]"],
	})
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"status": true,
		"data":   map[string]any{"id": 90011},
	})
}

func (m *MockListingAPI) handleFeatures(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	fields := m.featureFields
	m.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{"data": fields})
}

func (m *MockListingAPI) handleLocations(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("level") + "/" + r.URL.Query().Get("parent")
	m.mu.Lock()
	opts := m.locations[key]
	m.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{"data": opts})
}

func (m *MockListingAPI) handleSlot(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/upload/slot") {
		return
	}
	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.slotRequests = append(m.slotRequests, payload)
	m.nextFile++
	name := fmt.Sprintf("remote-%d.%s", m.nextFile, payload["extension"])
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]string{
			"url":      m.server.URL + "/storage/" + name,
			"fileName": name,
		},
	})
}

func (m *MockListingAPI) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, "/api/upload/confirm") {
		return
	}
	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.confirms = append(m.confirms, payload)
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "confirmed"})
}

func (m *MockListingAPI) handleStorePut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.storage[chi.URLParam(r, "name")] = data
	m.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func ptr[T any](v T) *T { return &v }
