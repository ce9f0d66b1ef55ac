package server

import (
	"context"
	"net/http"
	"time"

	appkafka "example.com/dwitter/internal/broker"
	"example.com/dwitter/internal/feed"
	"example.com/dwitter/internal/follow"
	"example.com/dwitter/internal/logger"
	"example.com/dwitter/internal/middleware"
	"example.com/dwitter/internal/store"
)

type Server struct {
	store       store.StoreInterface
	kafkaWriter appkafka.KafkaWriter
	feed        *feed.Engine
	follow      *follow.Mutator
}

var logg = logger.New()

// NewServer wires the feed engine and follow mutator around a store.
func NewServer(st store.StoreInterface, writer appkafka.KafkaWriter, pageSize int) *Server {
	return &Server{
		store:       st,
		kafkaWriter: writer,
		feed:        feed.New(st, pageSize),
		follow:      follow.New(st),
	}
}

// routes registers every endpoint on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public endpoints
	mux.Handle("POST /accounts", http.HandlerFunc(s.registerHandler))
	mux.Handle("POST /login", http.HandlerFunc(s.loginHandler))
	mux.Handle("GET /profiles/{username}", http.HandlerFunc(s.profileDetailHandler))

	// Viewer-dependent endpoints: anonymous allowed, token honored
	mux.Handle("GET /feed", middleware.OptionalJWTAuth(http.HandlerFunc(s.feedHandler)))
	mux.Handle("GET /profiles", middleware.OptionalJWTAuth(http.HandlerFunc(s.listProfilesHandler)))

	// Mutations require a valid JWT
	mux.Handle("POST /dweets", middleware.JWTAuth(http.HandlerFunc(s.createDweetHandler)))
	mux.Handle("POST /profiles/{username}/follow", middleware.JWTAuth(http.HandlerFunc(s.followHandler)))

	// Moderation endpoints require the admin token
	mux.Handle("DELETE /dweets/{id}", middleware.AdminAuth(http.HandlerFunc(s.deleteDweetHandler)))
	mux.Handle("DELETE /dweets", middleware.AdminAuth(http.HandlerFunc(s.deleteAllDweetsHandler)))

	return mux
}

// Run starts the HTTPS server and blocks until the context is cancelled.
func Run(ctx context.Context, st store.StoreInterface, writer appkafka.KafkaWriter, addr string, pageSize int) {
	s := NewServer(st, writer, pageSize)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		logg.Info("server", "Starting HTTPS server on "+addr)
		// TLS: cert.pem and key.pem should be valid certificates in specified paths
		if err := srv.ListenAndServeTLS("/certs/cert.pem", "/certs/key.pem"); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
