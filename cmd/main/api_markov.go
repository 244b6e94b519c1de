package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/CTAG07/bytemarkov/pkg/markov"
	"github.com/CTAG07/bytemarkov/pkg/store"
)

// MarkovAPI holds the dependencies for the model API handlers.
type MarkovAPI struct {
	server *Server
	logger *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(server *Server, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		server: server,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListModels)
	mux.HandleFunc("/api/models/", m.handleModelByName)
	mux.HandleFunc("/api/import", m.handleImport)
}

type PruneRequest struct {
	MinFreq int    `json:"min_freq"`
	Into    string `json:"into"`
}

// generateParams are the query parameters accepted by the generate endpoint.
type generateParams struct {
	gen         GenerateConfig
	seed        string
	randomStart bool
	randSeed    uint64
}

// handleListModels lists every stored model.
func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := m.server.store.GetModelInfos(r.Context())
	if err != nil {
		m.logger.Error("Failed to get model infos", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	// Convert map to slice for consistent JSON output
	modelList := make([]store.ModelInfo, 0, len(models))
	for _, model := range models {
		modelList = append(modelList, model)
	}
	respondWithJSON(w, http.StatusOK, modelList)
}

// handleModelByName routes actions for a specific model, e.g., generate, stats, train, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName, err := url.PathUnescape(parts[0])
	if err != nil || modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		m.handleDelete(w, r, modelName)
		return
	}

	switch action := parts[1]; action {
	case "generate", "stats", "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		info, model, err := m.server.model(r.Context(), modelName)
		if err != nil {
			m.respondWithStoreError(w, modelName, err)
			return
		}
		switch action {
		case "generate":
			m.handleGenerate(w, r, info, model)
		case "stats":
			respondWithJSON(w, http.StatusOK, model.Stats())
		case "export":
			m.handleExport(w, r, info)
		}

	case "train":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		m.handleTrain(w, r, modelName)

	case "prune":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		m.handlePrune(w, r, modelName)

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request, info store.ModelInfo, model *markov.Model) {
	params, err := m.parseGenerateParams(r.URL.Query())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	seed := params.randSeed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rnd := rand.New(rand.NewPCG(seed, seed))

	var (
		start markov.Window
		ok    bool
	)
	switch {
	case params.seed != "":
		if start, ok = model.StartFrom([]byte(params.seed)); !ok {
			respondWithError(w, http.StatusBadRequest, errUnknownSeed.Error())
			return
		}
	case params.randomStart:
		start, ok = model.RandomStart(rnd)
	default:
		start, ok = model.Start()
	}

	w.Header().Set("X-Model-Revision", info.Revision)
	w.Header().Set("X-Rand-Seed", strconv.FormatUint(seed, 10))
	if !ok {
		// An empty model generates nothing.
		setStreamHeaders(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	m.logger.Debug("Generating", "model", info.Name, "start", start.String(), "max_length", params.gen.MaxLength)
	m.server.writeGenerated(w, r, model, start, rnd, generateOptions(params.gen))
}

// parseGenerateParams reads the generate query string, filling in defaults
// from the config and clamping the length to the server's limit.
func (m *MarkovAPI) parseGenerateParams(q url.Values) (generateParams, error) {
	cfg := m.server.config
	params := generateParams{gen: *cfg.Generate}
	var err error

	if v := q.Get("length"); v != "" {
		if params.gen.MaxLength, err = strconv.Atoi(v); err != nil || params.gen.MaxLength < 0 {
			return params, fmt.Errorf("invalid length %q", v)
		}
	}
	if limit := cfg.Server.MaxLengthLimit; limit > 0 && (params.gen.MaxLength == 0 || params.gen.MaxLength > limit) {
		params.gen.MaxLength = limit
	}
	if v := q.Get("weighted"); v != "" {
		if params.gen.Weighted, err = strconv.ParseBool(v); err != nil {
			return params, fmt.Errorf("invalid weighted %q", v)
		}
	}
	if v := q.Get("topk"); v != "" {
		if params.gen.TopK, err = strconv.Atoi(v); err != nil || params.gen.TopK < 0 {
			return params, fmt.Errorf("invalid topk %q", v)
		}
	}
	if v := q.Get("random_start"); v != "" {
		if params.randomStart, err = strconv.ParseBool(v); err != nil {
			return params, fmt.Errorf("invalid random_start %q", v)
		}
	}
	if v := q.Get("rand_seed"); v != "" {
		if params.randSeed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return params, fmt.Errorf("invalid rand_seed %q", v)
		}
	}
	params.seed = q.Get("seed")
	if params.seed != "" && params.randomStart {
		return params, errors.New("seed and random_start are mutually exclusive")
	}
	return params, nil
}

func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	format := store.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		var err error
		if format, err = store.ParseFormat(v); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if format == store.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/msgpack")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name+"."+string(format)))
	if err := m.server.store.ExportModel(r.Context(), info, w, format); err != nil {
		m.logger.Error("Failed to export model", "name", info.Name, "error", err)
	}
}

// handleTrain builds a model from the request body. The order comes from the
// "order" query parameter, and "append=true" merges into an existing model.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request, modelName string) {
	ctx := r.Context()
	q := r.URL.Query()

	var err error
	order := m.server.config.DefaultOrder
	if v := q.Get("order"); v != "" {
		if order, err = strconv.Atoi(v); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid order %q", v))
			return
		}
	}
	appendMode := false
	if v := q.Get("append"); v != "" {
		if appendMode, err = strconv.ParseBool(v); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid append %q", v))
			return
		}
	}

	b, err := markov.NewBuilder(order)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	b.SetLogger(m.logger)
	if err = b.Train(ctx, r.Body); err != nil {
		m.logger.Error("Failed to train model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Training failed: %v", err))
		return
	}
	model := b.Model()

	if appendMode {
		_, current, err := m.server.model(ctx, modelName)
		switch {
		case errors.Is(err, store.ErrModelNotFound):
		case err != nil:
			m.respondWithStoreError(w, modelName, err)
			return
		default:
			if model, err = markov.Merge(current, model); err != nil {
				respondWithError(w, http.StatusConflict, err.Error())
				return
			}
		}
	}

	info, err := m.server.store.SaveModel(ctx, modelName, model)
	if err != nil {
		m.logger.Error("Failed to save trained model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	m.server.evict(modelName)
	respondWithJSON(w, http.StatusCreated, info)
}

func (m *MarkovAPI) handlePrune(w http.ResponseWriter, r *http.Request, modelName string) {
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	_, model, err := m.server.model(r.Context(), modelName)
	if err != nil {
		m.respondWithStoreError(w, modelName, err)
		return
	}

	target := modelName
	if req.Into != "" {
		target = req.Into
	}
	info, err := m.server.store.SaveModel(r.Context(), target, model.Prune(req.MinFreq))
	if err != nil {
		m.logger.Error("Failed to save pruned model", "name", target, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
		return
	}
	m.server.evict(target)
	respondWithJSON(w, http.StatusOK, info)
}

func (m *MarkovAPI) handleDelete(w http.ResponseWriter, r *http.Request, modelName string) {
	info, err := m.server.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		m.respondWithStoreError(w, modelName, err)
		return
	}
	if err = m.server.store.RemoveModel(r.Context(), info); err != nil {
		m.logger.Error("Failed to remove model", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
		return
	}
	m.server.evict(modelName)
	w.WriteHeader(http.StatusNoContent)
}

// handleImport imports a model from an uploaded export. The "format" and
// "name" query parameters mirror the import command's flags.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	format := store.FormatJSON
	if v := q.Get("format"); v != "" {
		var err error
		if format, err = store.ParseFormat(v); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	info, err := m.server.store.ImportModel(r.Context(), r.Body, format, q.Get("name"))
	if err != nil {
		m.logger.Error("Failed to import model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	m.server.evict(info.Name)
	respondWithJSON(w, http.StatusCreated, info)
}

func (m *MarkovAPI) respondWithStoreError(w http.ResponseWriter, modelName string, err error) {
	if errors.Is(err, store.ErrModelNotFound) {
		respondWithError(w, http.StatusNotFound, "Model not found")
		return
	}
	m.logger.Error("Failed to load model", "name", modelName, "error", err)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
}
