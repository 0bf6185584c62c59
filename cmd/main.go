package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candidnotes/internal/common"
	"candidnotes/internal/wire"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const healthRefresh = 15 * time.Second

func main() {
	app, err := wire.InitializeApplication()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	logger := app.Logger

	server := &http.Server{
		Addr:           app.Config.Addr(),
		Handler:        setupRouter(app),
		ReadTimeout:    app.Config.Server.ReadTimeout,
		WriteTimeout:   app.Config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	lis, err := net.Listen("tcp", ":"+app.Config.Server.GRPCPort)
	if err != nil {
		logger.Fatalf("Failed to listen for gRPC: %v", err)
	}
	go func() {
		if err := app.GRPC.Serve(lis, healthRefresh); err != nil {
			logger.WithError(err).Error("gRPC health server stopped")
		}
	}()

	go func() {
		logger.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Server forced to shutdown")
	}
	if err := app.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Shutdown finished with errors")
	}

	logger.Info("Server gracefully stopped")
}

// setupRouter configures HTTP routes
func setupRouter(app *wire.Application) *mux.Router {
	router := mux.NewRouter()

	router.Use(corsMiddleware(app.Config.Server.ClientURL))
	router.Use(loggingMiddleware(app.Logger))

	// Preflight requests carry no token and match no API route.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// The live channel authenticates during the handshake.
	app.Gateway.RegisterRoutes(router)

	api := router.PathPrefix("/api/v1").Subrouter()
	app.Health.RegisterRoutes(api)

	protected := api.NewRoute().Subrouter()
	protected.Use(common.AuthMiddleware(app.Auth))
	app.NotificationHandler.RegisterRoutes(protected)
	app.HistoryHandler.RegisterRoutes(protected)
	app.PresenceHandler.RegisterRoutes(protected)

	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware(origin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working behind the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}
