package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func createKey(t *testing.T, mux http.Handler, key, body string) CreateKeyResponse {
	t.Helper()
	rec := doAuthRequest(t, mux, key, http.MethodPost, "/api/auth/keys", body)
	expectStatus(t, rec, http.StatusCreated)
	var resp CreateKeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode created key: %v", err)
	}
	return resp
}

func TestAuthOpenUntilFirstKey(t *testing.T) {
	mux := setupTrainedAPI(t)

	// No keys yet, so a mutating route works without a header.
	expectStatus(t, doRequest(t, mux, http.MethodPost, "/api/markov/models", `{"name":"scratch"}`), http.StatusCreated)
	expectStatus(t, doRequest(t, mux, http.MethodDelete, "/api/markov/models/scratch", ""), http.StatusNoContent)

	master := createKey(t, mux, "", `{"scopes":["markov:read"],"description":"first"}`)
	if master.ID != 1 || !reflect.DeepEqual(master.Scopes, []string{"*"}) {
		t.Errorf("first key should be master with id 1, got %+v", master)
	}
	if !strings.HasPrefix(master.RawKey, "mkv_") {
		t.Errorf("unexpected key format %q", master.RawKey)
	}

	expectStatus(t, doRequest(t, mux, http.MethodDelete, "/api/markov/models/fish", ""), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, mux, http.MethodGet, "/api/markov/models", ""), http.StatusUnauthorized)
	expectStatus(t, doAuthRequest(t, mux, "mkv_wrong", http.MethodGet, "/api/markov/models", ""), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, mux, http.MethodGet, "/api/health", ""), http.StatusOK)

	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodDelete, "/api/markov/models/fish", ""), http.StatusNoContent)
}

func TestAuthScopes(t *testing.T) {
	mux := setupTrainedAPI(t)
	master := createKey(t, mux, "", `{"description":"admin"}`)
	reader := createKey(t, mux, master.RawKey, `{"scopes":["markov:read"],"description":"reader"}`)
	if !reflect.DeepEqual(reader.Scopes, []string{scopeMarkovRead}) {
		t.Fatalf("second key should keep its scopes, got %+v", reader.Scopes)
	}

	testCases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"List models", http.MethodGet, "/api/markov/models", "", http.StatusOK},
		{"Generate", http.MethodGet, "/api/markov/models/fish/generate?length=3", "", http.StatusOK},
		{"Export", http.MethodGet, "/api/markov/models/fish/export", "", http.StatusOK},
		{"Stats", http.MethodGet, "/api/markov/stats", "", http.StatusOK},
		{"Create model", http.MethodPost, "/api/markov/models", `{"name":"other"}`, http.StatusForbidden},
		{"Train", http.MethodPost, "/api/markov/models/fish/train", testCorpus, http.StatusForbidden},
		{"Prune", http.MethodPost, "/api/markov/models/fish/prune", `{"minFreq":1}`, http.StatusForbidden},
		{"Delete model", http.MethodDelete, "/api/markov/models/fish", "", http.StatusForbidden},
		{"Import", http.MethodPost, "/api/markov/import", `{}`, http.StatusForbidden},
		{"Vocabulary prune", http.MethodPost, "/api/markov/vocabulary/prune", `{"minFreq":1}`, http.StatusForbidden},
		{"List keys", http.MethodGet, "/api/auth/keys", "", http.StatusForbidden},
		{"Create key", http.MethodPost, "/api/auth/keys", `{"scopes":["*"]}`, http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, doAuthRequest(t, mux, reader.RawKey, tc.method, tc.target, tc.body), tc.want)
		})
	}

	rec := doAuthRequest(t, mux, reader.RawKey, http.MethodGet, "/api/auth/me", "")
	expectStatus(t, rec, http.StatusOK)
	var me struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("failed to decode scopes: %v", err)
	}
	if !reflect.DeepEqual(me.Scopes, []string{scopeMarkovRead}) {
		t.Errorf("unexpected scopes %q", me.Scopes)
	}
}

func TestAuthKeyManagement(t *testing.T) {
	mux := setupTestAPI(t)
	master := createKey(t, mux, "", `{"description":"admin"}`)
	writer := createKey(t, mux, master.RawKey, `{"scopes":["markov:read","markov:write"],"description":"trainer"}`)

	rec := doAuthRequest(t, mux, master.RawKey, http.MethodGet, "/api/auth/keys", "")
	expectStatus(t, rec, http.StatusOK)
	var keys []APIKeyInfo
	if err := json.NewDecoder(rec.Body).Decode(&keys); err != nil {
		t.Fatalf("failed to decode keys: %v", err)
	}
	if len(keys) != 2 || keys[1].Description != "trainer" || len(keys[1].Scopes) != 2 {
		t.Errorf("unexpected key list %+v", keys)
	}
	if strings.Contains(rec.Body.String(), writer.RawKey) {
		t.Error("key list must not expose raw keys")
	}

	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodPost, "/api/auth/keys", `{"scopes":["root"]}`), http.StatusBadRequest)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodPost, "/api/auth/keys", `{`), http.StatusBadRequest)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodDelete, "/api/auth/keys/1", ""), http.StatusBadRequest)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodDelete, "/api/auth/keys/abc", ""), http.StatusBadRequest)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodGet, "/api/auth/keys/2", ""), http.StatusMethodNotAllowed)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodDelete, "/api/auth/keys/99", ""), http.StatusNotFound)

	expectStatus(t, doAuthRequest(t, mux, writer.RawKey, http.MethodPost, "/api/markov/models", `{"name":"m"}`), http.StatusCreated)
	expectStatus(t, doAuthRequest(t, mux, master.RawKey, http.MethodDelete, "/api/auth/keys/2", ""), http.StatusNoContent)
	expectStatus(t, doAuthRequest(t, mux, writer.RawKey, http.MethodGet, "/api/markov/models", ""), http.StatusUnauthorized)
}

func TestHasScope(t *testing.T) {
	testCases := []struct {
		name   string
		scopes []string
		scope  string
		want   bool
	}{
		{"Exact", []string{scopeMarkovRead}, scopeMarkovRead, true},
		{"Missing", []string{scopeMarkovRead}, scopeMarkovWrite, false},
		{"Master", []string{scopeMaster}, scopeAuthManage, true},
		{"Empty", nil, scopeMarkovRead, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := withPermissions(httptest.NewRequest(http.MethodGet, "/", nil), tc.scopes)
			if got := hasScope(r, tc.scope); got != tc.want {
				t.Errorf("hasScope(%q, %q) = %v, want %v", tc.scopes, tc.scope, got, tc.want)
			}
		})
	}

	if hasScope(httptest.NewRequest(http.MethodGet, "/", nil), scopeMarkovRead) {
		t.Error("a request without permissions should have no scopes")
	}
}
