package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/config"
	"github.com/emrgen/docflow/internal/jobs"
	"github.com/emrgen/docflow/internal/module"
	"github.com/emrgen/docflow/internal/queue"
	"github.com/emrgen/docflow/internal/service"
	"github.com/emrgen/docflow/internal/store"
	"github.com/gin-gonic/gin"
	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server represents the server
type Server struct {
	cfg *config.Config
}

// NewServer creates a new server
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Start starts the server and blocks until it is stopped by a signal.
func (s *Server) Start() {
	if err := Start(s.cfg); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// deps are the long lived collaborators of the server.
type deps struct {
	docs     *service.DocumentService
	executor *jobs.TaskExecutor
	closers  []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}

	provided, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() {
		if err := provided.Close(); err != nil {
			logrus.Errorf("error closing store: %v", err)
		}
	})

	codec, err := compress.New(cfg.Compression)
	if err != nil {
		d.close()
		return nil, err
	}

	var docCache cache.DocumentCache = cache.Nop{}
	var kv cache.KV
	if cfg.RedisAddr != "" {
		client := cache.NewClient(cfg.RedisAddr)
		docCache = cache.NewRedisDocumentCache(client, codec)
		kv = cache.NewRedis(client)
		d.closers = append(d.closers, func() { _ = client.Close() })
	}

	var blobs blob.Store
	if cfg.BlobBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		blobs = blob.NewGCS(client, cfg.BlobBucket)
		d.closers = append(d.closers, func() { _ = client.Close() })
	}

	d.docs = service.NewDocumentService(provided, docCache, blobs)

	cronJobs := []jobs.CronJob{jobs.NewStatsTask(cfg.StatsSchedule, d.docs)}
	switch {
	case cfg.KafkaBrokers != "" && kv == nil:
		logrus.Warnf("audit export needs redis for its cursor, set REDIS_ADDR to enable it")
	case cfg.KafkaBrokers != "":
		publisher, err := queue.NewKafkaAuditPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, publisher.Close)
		cronJobs = append(cronJobs, jobs.NewAuditExportTask(cfg.AuditExportSchedule, provided, kv, publisher))
	}

	d.executor = jobs.NewTaskExecutor(cronJobs...)

	return d, nil
}

// Start starts the grpc and http servers
func Start(cfg *config.Config) error {
	var err error

	grpcPort := ":" + cfg.GrpcPort
	httpPort := ":" + cfg.HttpPort

	d, err := build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.executor.Run(); err != nil {
		return err
	}
	defer d.executor.Stop()

	gl, err := net.Listen("tcp", grpcPort)
	if err != nil {
		return err
	}

	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			grpcrecovery.UnaryServerInterceptor(),
			// log the request time
			UnaryGrpcRequestTimeInterceptor(),
		)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("docflow", healthpb.HealthCheckResponse_SERVING)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(NewHandler(d.docs, cfg.ShareBaseURL))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // All origins are allowed
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT", "PATCH"},
		AllowedHeaders:   []string{"Content-Type", "If-Match", module.HeaderUser, module.HeaderRole, module.HeaderRequestID, module.HeaderSessionID},
		ExposedHeaders:   []string{"ETag", module.HeaderRequestID},
		AllowCredentials: true,
	})

	restServer := &http.Server{
		Addr:              httpPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// make sure to wait for the servers to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting rest server on: ", httpPort)
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting rest server: %v", err)
			}
		}
		logrus.Infof("rest server stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting grpc server on: ", grpcPort)
		if err := grpcServer.Serve(gl); err != nil {
			logrus.Infof("grpc failed to start: %v", err)
		}
		logrus.Infof("grpc server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	healthServer.Shutdown()
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = restServer.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("error stopping rest server: %v", err)
	}

	wg.Wait()

	return nil
}
