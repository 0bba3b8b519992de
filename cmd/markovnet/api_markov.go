package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/CTAG07/markovnet/pkg/corpus"
	"github.com/CTAG07/markovnet/pkg/markov"
)

// MarkovAPI holds the dependencies for the Markov model API handlers.
type MarkovAPI struct {
	store      *markov.Store
	corpus     *CorpusConfig
	generation *GenerationConfig
	logger     *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(store *markov.Store, config *Config, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:      store,
		corpus:     config.Corpus,
		generation: config.Generation,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/markov endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/markov/models/", m.handleModelByName)
	mux.HandleFunc("/api/markov/import", m.handleImport)
	mux.HandleFunc("/api/markov/vocabulary/prune", m.handleVocabPrune)
	mux.HandleFunc("/api/markov/stats", m.handleStats)
}

type CreateModelRequest struct {
	Name string `json:"name"`
}

type PruneRequest struct {
	MinFreq int `json:"minFreq"`
}

// GenerateResponse is returned by the generate action.
type GenerateResponse struct {
	Model  string   `json:"model"`
	Mode   string   `json:"mode"`
	Tokens []string `json:"tokens"`
	Text   string   `json:"text"`
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *MarkovAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeMarkovRead) {
			return
		}
		models, err := m.store.GetModelInfos(r.Context())
		if err != nil {
			m.serverError(w, "Failed to retrieve models", err)
			return
		}
		// Convert map to slice for consistent JSON output
		modelList := make([]markov.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		sort.Slice(modelList, func(i, j int) bool { return modelList[i].Name < modelList[j].Name })
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		if !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Name == "" {
			respondWithError(w, http.StatusBadRequest, "Model name is required")
			return
		}
		if _, err := m.store.GetModelInfo(r.Context(), req.Name); err == nil {
			respondWithError(w, http.StatusConflict, "Model already exists")
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			m.serverError(w, "Database error", err, "name", req.Name)
			return
		}

		if err := m.store.InsertModel(r.Context(), markov.ModelInfo{Name: req.Name}); err != nil {
			m.serverError(w, "Failed to create model", err, "name", req.Name)
			return
		}
		newModel, err := m.store.GetModelInfo(r.Context(), req.Name)
		if err != nil {
			m.serverError(w, "Failed to verify model creation", err, "name", req.Name)
			return
		}
		respondWithJSON(w, http.StatusCreated, newModel)
	default:
		allowMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleModelByName routes actions for a specific model, e.g., train, generate, prune, export, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/markov/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	model, err := m.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		m.serverError(w, "Database error", err, "name", modelName)
		return
	}

	if len(parts) == 1 { // Path is just /api/markov/models/{name}
		switch r.Method {
		case http.MethodGet:
			if !requireScope(w, r, scopeMarkovRead) {
				return
			}
			stats, err := m.store.GetModelStats(r.Context(), model)
			if err != nil {
				m.serverError(w, "Failed to get model stats", err, "name", modelName)
				return
			}
			respondWithJSON(w, http.StatusOK, map[string]interface{}{"model": model, "stats": stats})
		case http.MethodDelete:
			if !requireScope(w, r, scopeMarkovWrite) {
				return
			}
			if err = m.store.RemoveModel(r.Context(), model); err != nil {
				m.serverError(w, "Failed to remove model", err, "name", modelName)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			allowMethod(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		encoding := r.URL.Query().Get("encoding")
		if encoding == "" {
			encoding = m.corpus.Encoding
		}
		body, err := corpus.NewReader(r.Body, encoding)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err = m.store.Train(r.Context(), model, body); err != nil {
			if errors.Is(err, markov.ErrInvalidInput) {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Training failed: %v", err))
				return
			}
			m.serverError(w, "Training failed", err, "name", modelName)
			return
		}
		w.WriteHeader(http.StatusAccepted)

	case "generate":
		if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
			return
		}
		m.handleGenerate(w, r, model)

	case "prune":
		if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err = m.store.PruneModel(r.Context(), model, req.MinFreq); err != nil {
			m.serverError(w, "Pruning failed", err, "name", modelName)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "export":
		if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if err = m.store.ExportModel(r.Context(), model, w); err != nil {
			m.logger.Error("Failed to export model", "name", modelName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleGenerate samples a chain from the stored counts of a model. Query
// parameters mode, start, length and seed override the generation config.
func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request, model markov.ModelInfo) {
	query := r.URL.Query()

	mode := query.Get("mode")
	if mode == "" {
		mode = m.generation.Mode
	}
	if err := validateMode(mode); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	length := m.generation.MaxLength
	if raw := query.Get("length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "length must be an integer")
			return
		}
		length = n
	}
	if length > m.generation.MaxLengthLimit {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("length must not exceed %d", m.generation.MaxLengthLimit))
		return
	}

	seed := m.generation.Seed
	if raw := query.Get("seed"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "seed must be an unsigned integer")
			return
		}
		seed = n
	}

	opts := []markov.GenerateOption{markov.WithMaxLength(length)}
	if query.Has("start") {
		opts = append(opts, markov.WithStartToken(query.Get("start")))
	}

	network, err := m.store.LoadNetwork(r.Context(), model)
	if err != nil {
		m.serverError(w, "Failed to load model", err, "name", model.Name)
		return
	}

	sampler := newSampler(seed)
	sampler.SetLogger(m.logger)
	tokens, err := generateTokens(sampler, network, mode, opts...)
	if err != nil {
		switch {
		case errors.Is(err, markov.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, markov.ErrEmptyNetwork):
			respondWithError(w, http.StatusConflict, "Model has no trained data")
		default:
			m.serverError(w, "Generation failed", err, "name", model.Name)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, GenerateResponse{
		Model:  model.Name,
		Mode:   mode,
		Tokens: tokens,
		Text:   markov.JoinTokens(m.store.Tokenizer(), tokens),
	})
}

// serverError logs err and reports it to the client as a 500.
func (m *MarkovAPI) serverError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	m.logger.Error(msg, append(attrs, "error", err)...)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}

// handleImport imports a model from an uploaded JSON file.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
		return
	}

	if err := m.store.ImportModel(r.Context(), r.Body); err != nil {
		m.logger.Error("Failed to import model", "error", err)
		if errors.Is(err, markov.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Import failed: %v", err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleVocabPrune performs a global vocabulary prune.
func (m *MarkovAPI) handleVocabPrune(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeMarkovWrite) {
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body for minFreq")
		return
	}
	if err := m.store.VocabularyPrune(r.Context(), req.MinFreq); err != nil {
		m.serverError(w, "Vocabulary prune failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats reports per-model chain statistics and the vocabulary size.
func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeMarkovRead) {
		return
	}
	stats, err := m.store.GetStats(r.Context())
	if err != nil {
		m.serverError(w, "Failed to get stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
