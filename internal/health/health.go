// Package health reports store reachability and live connection counts
// over HTTP and the standard gRPC health service.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"candidnotes/internal/common"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const ServiceName = "candidnotes"

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	Count() int
}

type Report struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Store       string `json:"store"`
	Connections int    `json:"connections"`
}

type Checker struct {
	store   Pinger
	conns   ConnectionCounter
	timeout time.Duration
	log     *logrus.Entry
}

func NewChecker(store Pinger, conns ConnectionCounter, logger *logrus.Logger) *Checker {
	return &Checker{
		store:   store,
		conns:   conns,
		timeout: 2 * time.Second,
		log:     logger.WithField("component", "health"),
	}
}

func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := Report{Status: "healthy", Service: ServiceName, Store: "ok", Connections: c.conns.Count()}
	if err := c.store.Ping(ctx); err != nil {
		c.log.WithError(err).Warn("store ping failed")
		report.Status = "degraded"
		report.Store = "unreachable"
	}
	return report
}

func (c *Checker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", c.ServeHTTP).Methods(http.MethodGet)
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := c.Check(r.Context())
	status := http.StatusOK
	if report.Store != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.WriteJSON(w, status, report)
}

// GRPCServer serves grpc.health.v1 plus reflection on the admin port.
type GRPCServer struct {
	server  *grpc.Server
	health  *grpchealth.Server
	checker *Checker
	stop    chan struct{}
	once    sync.Once
	log     *logrus.Entry
}

func NewGRPCServer(checker *Checker, logger *logrus.Logger) *GRPCServer {
	server := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &GRPCServer{
		server:  server,
		health:  hs,
		checker: checker,
		stop:    make(chan struct{}),
		log:     logger.WithField("component", "grpc_health"),
	}
}

// Refresh sets the serving status from one store check.
func (g *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if g.checker.Check(ctx).Store != "ok" {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop. The status is refreshed every interval.
func (g *GRPCServer) Serve(lis net.Listener, interval time.Duration) error {
	g.Refresh(context.Background())
	go g.watch(interval)

	g.log.Infof("gRPC health server listening on %s", lis.Addr())
	if err := g.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve grpc: %w", err)
	}
	return nil
}

func (g *GRPCServer) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Refresh(context.Background())
		}
	}
}

func (g *GRPCServer) Stop() {
	g.once.Do(func() {
		close(g.stop)
		g.health.Shutdown()
		g.server.GracefulStop()
	})
}
