// Package transfer implements the file staging channel. Clients upload
// raster files over plain HTTP to a node's staging directory, where a
// subsequent store task picks them up. Files never move between nodes
// over this channel.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tessera-io/tessera/internal/metrics"
)

// Server receives staged files on the transfer port.
type Server struct {
	staging string
	metrics *metrics.Metrics
	logger  *zap.Logger
	srv     *http.Server
}

// NewServer creates a transfer server listening on addr.
func NewServer(addr, stagingDir string, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		staging: stagingDir,
		metrics: m,
		logger:  logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/stage/{name}", s.handleUpload).Methods(http.MethodPut)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the listener until Stop is called. It blocks.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.staging, 0o755); err != nil {
		return err
	}
	s.logger.Info("Transfer server listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down, waiting for in-flight uploads.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the HTTP handler, for serving on an external listener.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}

	dst := filepath.Join(s.staging, name)
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		s.logger.Error("Failed to create staging file", zap.String("file", name), zap.Error(err))
		http.Error(w, "cannot create staging file", http.StatusInternalServerError)
		return
	}

	n, err := io.Copy(f, r.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		os.Remove(tmp)
		s.logger.Error("Upload failed", zap.String("file", name), zap.Error(err))
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.TransferBytes.WithLabelValues("in").Add(float64(n))
	}
	s.logger.Info("Staged file",
		zap.String("file", name),
		zap.Int64("bytes", n))
	w.WriteHeader(http.StatusCreated)
}
