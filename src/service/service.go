package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Node is the part of a node the service reads from.
type Node interface {
	GetStats() map[string]string
	Seen() []ids.MessageID
	Topology() map[ids.NodeID][]ids.NodeID
	NodeIDs() []ids.NodeID
}

// Service exposes a read-only view of a node over HTTP. It never touches the
// protocol streams.
type Service struct {
	bindAddress string
	node        Node
	logger      *logrus.Entry
	httpServer  *http.Server
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.httpServer = &http.Server{
		Addr:    bindAddress,
		Handler: service.Handler(),
	}

	return &service
}

// Handler returns the router serving the API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors)

	r.Get("/stats", s.GetStats)
	r.Get("/seen", s.GetSeen)
	r.Get("/topology", s.GetTopology)
	r.Get("/nodes", s.GetNodes)
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	return r
}

// Serve calls ListenAndServe. This is a blocking call; it returns nil once
// Shutdown has been called.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving murmur API")

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.WithError(err).Error("HTTP service stopped")
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, letting in-flight requests finish.
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.GetStats())
}

// GetSeen returns the gossip values seen by the node, in ascending order.
func (s *Service) GetSeen(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.Seen())
}

// GetTopology returns the neighbor mapping, keyed by node id.
func (s *Service) GetTopology(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.Topology())
}

// GetNodes returns the cluster membership received in init.
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.node.NodeIDs())
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Encoding response")
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
