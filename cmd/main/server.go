package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/CTAG07/bytemarkov/pkg/markov"
	"github.com/CTAG07/bytemarkov/pkg/store"
)

// cachedModel is a loaded model together with the revision it was loaded at.
type cachedModel struct {
	revision string
	model    *markov.Model
}

type Server struct {
	config    *Config
	logger    *slog.Logger
	store     *store.Store
	markovAPI *MarkovAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	mux       *http.ServeMux

	cacheMu sync.RWMutex
	cache   map[string]cachedModel
}

func NewServer(config *Config, logger *slog.Logger, st *store.Store) *Server {
	server := &Server{
		config: config,
		logger: logger,
		store:  st,
		mux:    http.NewServeMux(),
		cache:  make(map[string]cachedModel),
	}
	server.markovAPI = NewMarkovAPI(server, logger)
	server.statsAPI = NewStatsAPI(st, logger)
	server.serverAPI = NewServerAPI(logger)

	server.serverAPI.RegisterRoutes(server.mux)
	server.markovAPI.RegisterRoutes(server.mux)
	server.statsAPI.RegisterRoutes(server.mux)
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting bytemarkov server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped.")
	return nil
}

// model returns the named model, loading it from the store only when the
// stored revision differs from the cached one.
func (s *Server) model(ctx context.Context, name string) (store.ModelInfo, *markov.Model, error) {
	info, err := s.store.GetModelInfo(ctx, name)
	if err != nil {
		return store.ModelInfo{}, nil, err
	}

	s.cacheMu.RLock()
	cached, ok := s.cache[name]
	s.cacheMu.RUnlock()
	if ok && cached.revision == info.Revision {
		return info, cached.model, nil
	}

	m, err := s.store.LoadModel(ctx, info)
	if err != nil {
		return store.ModelInfo{}, nil, err
	}
	s.cacheMu.Lock()
	s.cache[name] = cachedModel{revision: info.Revision, model: m}
	s.cacheMu.Unlock()
	s.logger.Debug("Model loaded into cache", "model", name, "revision", info.Revision, "windows", m.Len())
	return info, m, nil
}

func (s *Server) evict(name string) {
	s.cacheMu.Lock()
	delete(s.cache, name)
	s.cacheMu.Unlock()
}

// writeGenerated sends the bytes of a walk to the client. With drip feeding
// enabled the bytes go out in flushed chunks separated by random delays;
// otherwise they are written through a buffer as they are generated. Either
// way the walk stops when the request context is done, so an uncapped length
// on a cyclic model ends with the client.
func (s *Server) writeGenerated(w http.ResponseWriter, r *http.Request, m *markov.Model, start markov.Window, rnd markov.Rand, opts []markov.GenerateOption) {
	cfg := s.config.Server.StreamConfig
	setStreamHeaders(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// If drip feeding is disabled in the config, or any of the config is invalid, send the response normally.
	if !cfg.EnableDripFeed || cfg.ChunkSize <= 0 || cfg.DripFeedDelayMin < 0 || cfg.DripFeedDelayMax < cfg.DripFeedDelayMin {
		s.writeBuffered(ctx, w, r, markov.GenerateStream(ctx, m, start, rnd, opts...))
		return
	}

	// Assert that the ResponseWriter supports flushing.
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Warn("ResponseWriter does not support flushing, sending response without drip feed.")
		s.writeBuffered(ctx, w, r, markov.GenerateStream(ctx, m, start, rnd, opts...))
		return
	}

	chunk := make([]byte, 0, cfg.ChunkSize)
	send := func() bool {
		if _, err := w.Write(chunk); err != nil {
			s.logger.Debug("Failed to write chunk to client", "error", err, "remote_addr", r.RemoteAddr)
			return false // Stop if the client closes the connection.
		}
		flusher.Flush()
		chunk = chunk[:0]
		return true
	}

	first := true
	for b := range markov.GenerateStream(ctx, m, start, rnd, opts...) {
		chunk = append(chunk, b)
		if len(chunk) < cfg.ChunkSize {
			continue
		}
		// Wait before sending each chunk but the first.
		if !first && !sleepContext(ctx, randDelay(cfg.DripFeedDelayMin, cfg.DripFeedDelayMax)) {
			return
		}
		first = false
		if !send() {
			return
		}
	}
	if len(chunk) > 0 && ctx.Err() == nil {
		if !first && !sleepContext(ctx, randDelay(cfg.DripFeedDelayMin, cfg.DripFeedDelayMax)) {
			return
		}
		send()
	}
}

// writeBuffered copies generated bytes to w until the stream closes or a
// write fails.
func (s *Server) writeBuffered(ctx context.Context, w http.ResponseWriter, r *http.Request, stream <-chan byte) {
	bw := bufio.NewWriter(w)
	for b := range stream {
		if err := bw.WriteByte(b); err != nil {
			s.logger.Debug("Failed to write to client", "error", err, "remote_addr", r.RemoteAddr)
			return
		}
	}
	if ctx.Err() != nil {
		s.logger.Debug("Generation stopped by request context", "error", ctx.Err(), "remote_addr", r.RemoteAddr)
	}
	if err := bw.Flush(); err != nil {
		s.logger.Debug("Failed to write to client", "error", err, "remote_addr", r.RemoteAddr)
	}
}

// randDelay picks a delay in [minMs, maxMs] milliseconds.
func randDelay(minMs, maxMs int) time.Duration {
	if minMs < 0 {
		minMs = 0
	}
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(rand.IntN(maxMs-minMs+1)+minMs) * time.Millisecond
}

// sleepContext waits for d and reports whether ctx was still live afterwards.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
