package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// VersionInfo is reported by the health endpoint.
type VersionInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// newAPIMux registers every API route. Everything under /api/ except the
// health check passes through authentication first.
func newAPIMux(authAPI *AuthAPI, markovAPI *MarkovAPI) http.Handler {
	apiMux := http.NewServeMux()
	authAPI.RegisterRoutes(apiMux)
	markovAPI.RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealthCheck)
	mux.Handle("/api/", authAPI.Authenticate(apiMux))
	return mux
}

// handleHealthCheck is unauthenticated so something like docker can use it.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Status:    "ok",
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// allowMethod reports whether r uses one of methods. Otherwise it answers
// 405 with an Allow header and returns false.
func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if slices.Contains(methods, r.Method) {
		return true
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to encode JSON response", "error", err)
		}
	}
}
