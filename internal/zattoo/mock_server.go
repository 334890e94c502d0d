// SPDX-License-Identifier: MIT
package zattoo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockServer provides a configurable provider API mock for testing.
type MockServer struct {
	*httptest.Server
	mu         sync.Mutex
	email      string
	password   string
	country    string
	hash       string
	sessionGen int
	channels   []Channel
	programs   map[string][]Program
	details    map[int64]ProgramDetail
	failures   map[string]*mockFailure
	delays     map[string]time.Duration
	// requests is the ordered operation log; detailIDs records the
	// program_ids parameter of every details call.
	requests  []string
	detailIDs [][]string
}

type mockFailure struct {
	count  int
	status int
	header http.Header
}

// NewMockServer creates a provider mock with a small default lineup.
func NewMockServer() *MockServer {
	mock := &MockServer{
		email:    "user@example.com",
		password: "secret",
		country:  "DE",
		hash:     "mockhash",
		programs: make(map[string][]Program),
		details:  make(map[int64]ProgramDetail),
		failures: make(map[string]*mockFailure),
		delays:   make(map[string]time.Duration),
	}
	mock.SetDefaultData()

	mux := http.NewServeMux()
	mux.HandleFunc("/token.json", mock.handleAppToken)
	mux.HandleFunc("/zapi/session/hello", mock.handleHello)
	mux.HandleFunc("/zapi/v2/account/login", mock.handleLogin)
	mux.HandleFunc("/zapi/v2/cached/channels/", mock.handleChannels)
	mux.HandleFunc("/zapi/v2/cached/program/power_guide/", mock.handleGuide)
	mux.HandleFunc("/zapi/v2/cached/program/power_details/", mock.handleDetails)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// SetDefaultData installs a two-channel lineup with a handful of slots.
func (m *MockServer) SetDefaultData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := time.Now().Truncate(time.Hour)
	m.channels = []Channel{
		{ID: "ard", Title: "Das Erste", LogoURL: "/logos/ard/210x120.png"},
		{ID: "zdf", Title: "ZDF", LogoURL: ""},
	}
	m.programs = map[string][]Program{
		"ard": {
			{ID: 1001, Title: "Tagesschau", Start: base.Unix(), End: base.Add(15 * time.Minute).Unix()},
			{ID: 1002, Title: "Tatort", Start: base.Add(15 * time.Minute).Unix(), End: base.Add(105 * time.Minute).Unix()},
		},
		"zdf": {
			{ID: 2001, Title: "heute journal", Start: base.Unix(), End: base.Add(30 * time.Minute).Unix()},
		},
	}
	m.details = map[int64]ProgramDetail{
		1002: {
			Description: "Krimireihe",
			Genres:      []string{"Krimi"},
			Year:        2024,
			Country:     "DE",
			Credits:     Credits{Directors: []string{"A. Regisseur"}, Actors: []string{"B. Darsteller"}},
		},
	}
}

// SetCredentials changes the accepted account credentials.
func (m *MockServer) SetCredentials(email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email, m.password = email, password
}

// SetCountry changes the service region the login response reports.
func (m *MockServer) SetCountry(country string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.country = country
}

// SetChannels replaces the channel lineup.
func (m *MockServer) SetChannels(channels []Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = channels
}

// SetPrograms replaces the slots of one channel. Guide responses filter them
// by window overlap.
func (m *MockServer) SetPrograms(cid string, programs []Program) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[cid] = programs
}

// SetDetail registers enrichment for a programme ID.
func (m *MockServer) SetDetail(id int64, detail ProgramDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[id] = detail
}

// ClearDetails removes all registered enrichment payloads.
func (m *MockServer) ClearDetails() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details = make(map[int64]ProgramDetail)
}

// FailNext makes the next count requests of op answer with status.
func (m *MockServer) FailNext(op string, count, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &mockFailure{count: count, status: status}
}

// FailNextWithHeader is FailNext with extra response headers (Retry-After).
func (m *MockServer) FailNextWithHeader(op string, count, status int, header http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &mockFailure{count: count, status: status, header: header}
}

// SetDelay adds artificial latency to every request of op.
func (m *MockServer) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// InvalidateSessions makes every issued session cookie stale. The next
// authorized call sees a 401 until a fresh login.
func (m *MockServer) InvalidateSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionGen++
}

// Requests returns the ordered operation log.
func (m *MockServer) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// ResetRequests clears the operation log.
func (m *MockServer) ResetRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// DetailCalls returns the program_ids parameter of every details request.
func (m *MockServer) DetailCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.detailIDs))
	for i, ids := range m.detailIDs {
		out[i] = append([]string(nil), ids...)
	}
	return out
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

func (m *MockServer) begin(op string, w http.ResponseWriter) bool {
	m.mu.Lock()
	m.requests = append(m.requests, op)
	delay := m.delays[op]
	fail := m.failures[op]
	var failStatus int
	var failHeader http.Header
	if fail != nil && fail.count > 0 {
		fail.count--
		failStatus = fail.status
		failHeader = fail.header
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failStatus > 0 {
		for k, vs := range failHeader {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		http.Error(w, http.StatusText(failStatus), failStatus)
		return false
	}
	return true
}

func (m *MockServer) currentCookie() string {
	return fmt.Sprintf("sess-%d", m.sessionGen)
}

func (m *MockServer) authorize(r *http.Request) bool {
	ck, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return ck.Value == m.currentCookie()
}

func (m *MockServer) handleAppToken(w http.ResponseWriter, r *http.Request) {
	if !m.begin("app_token", w) {
		return
	}
	writeJSON(w, map[string]any{"session_token": "app-token-1"})
}

func (m *MockServer) handleHello(w http.ResponseWriter, r *http.Request) {
	if !m.begin("hello", w) {
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_app_token") == "" {
		http.Error(w, "missing client_app_token", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	cookie := m.currentCookie()
	m.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: cookie, Path: "/"})
	writeJSON(w, map[string]any{"success": true})
}

func (m *MockServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !m.begin("login", w) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	ok := r.PostForm.Get("login") == m.email && r.PostForm.Get("password") == m.password
	country := m.country
	hash := m.hash
	m.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"session": map[string]any{
			"service_region_country": country,
			"power_guide_hash":       hash,
		},
	})
}

func (m *MockServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	if !m.begin("channels", w) {
		return
	}
	if !m.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !strings.HasSuffix(r.URL.Path, "/"+m.hash) {
		http.Error(w, "unknown hash", http.StatusNotFound)
		return
	}

	m.mu.Lock()
	channels := make([]map[string]any, 0, len(m.channels))
	for _, ch := range m.channels {
		entry := map[string]any{"cid": ch.ID, "title": ch.Title}
		if ch.LogoURL != "" {
			// The catalog serves the small rendition; clients upgrade it.
			small := strings.Replace(ch.LogoURL, "210x120.png", "84x48.png", 1)
			entry["qualities"] = []map[string]any{{"logo_black_84": small}}
		}
		channels = append(channels, entry)
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"success": true,
		"channel_groups": []map[string]any{
			{"name": "Alle Sender", "channels": channels},
		},
	})
}

func (m *MockServer) handleGuide(w http.ResponseWriter, r *http.Request) {
	if !m.begin("power_guide", w) {
		return
	}
	if !m.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	start, err1 := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	end, err2 := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "bad window", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	channels := make([]map[string]any, 0, len(m.programs))
	for _, ch := range m.channels {
		var inWindow []Program
		for _, p := range m.programs[ch.ID] {
			if p.Start < end && p.End > start {
				inWindow = append(inWindow, p)
			}
		}
		if len(inWindow) > 0 {
			channels = append(channels, map[string]any{"cid": ch.ID, "programs": inWindow})
		}
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "channels": channels})
}

func (m *MockServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	if !m.begin("power_details", w) {
		return
	}
	if !m.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	raw := r.URL.Query().Get("program_ids")
	if raw == "" {
		http.Error(w, "missing program_ids", http.StatusBadRequest)
		return
	}
	ids := strings.Split(raw, ",")

	m.mu.Lock()
	m.detailIDs = append(m.detailIDs, ids)
	programs := make(map[string]ProgramDetail)
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		if det, ok := m.details[id]; ok {
			programs[idStr] = det
		}
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "programs": programs})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
