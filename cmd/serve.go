package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-chip-donations/app/controller"
	"github.com/vibast-solutions/ms-go-chip-donations/app/factory"
	"github.com/vibast-solutions/ms-go-chip-donations/app/gateway"
	donationsgrpc "github.com/vibast-solutions/ms-go-chip-donations/app/grpc"
	"github.com/vibast-solutions/ms-go-chip-donations/app/lock"
	"github.com/vibast-solutions/ms-go-chip-donations/app/repository"
	"github.com/vibast-solutions/ms-go-chip-donations/app/service"
	"github.com/vibast-solutions/ms-go-chip-donations/app/types"
	"github.com/vibast-solutions/ms-go-chip-donations/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const startupKeyTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the donations service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type application struct {
	cfg          *config.Config
	db           *sql.DB
	links        service.Links
	credentials  *service.CredentialService
	transactions *service.TransactionService
	reconcile    *service.ReconcileService
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApplication()
	defer cleanup()
	cfg := app.cfg

	keyCtx, cancelKey := context.WithTimeout(context.Background(), startupKeyTimeout)
	if err := app.credentials.EnsurePublicKey(keyCtx); err != nil {
		logrus.WithError(err).Warn("Gateway public key unavailable, webhooks will be rejected until it is refreshed")
	}
	cancelKey()

	transactionController := controller.NewTransactionController(app.transactions)
	callbackController := controller.NewCallbackController(app.reconcile, app.links)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(transactionController, callbackController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, donationsgrpc.NewHealthServer(app.db), grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	transactionController *controller.TransactionController,
	callbackController *controller.CallbackController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(ensureRequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        redactQuery(v.URI),
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", transactionController.Health)

	e.POST(service.CallbackPath, callbackController.HandleCallback)
	e.GET(service.ReturnPath, callbackController.HandleReturn)

	transactions := e.Group("/transactions", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(appServiceName))
	transactions.POST("", transactionController.CreateTransaction)
	transactions.GET("/:id", transactionController.GetTransaction)
	transactions.POST("/:id/checkout", transactionController.StartCheckout)

	return e
}

// ensureRequestID tags gateway and browser requests, which never carry an
// x-request-id of their own.
func ensureRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			return next(ctx)
		}
	}
}

// redactQuery drops the query string so access keys never reach the logs.
func redactQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

func setupGRPCServer(
	cfg *config.Config,
	healthServer *donationsgrpc.HealthServer,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			donationsgrpc.RecoveryInterceptor(),
			donationsgrpc.RequestIDInterceptor(),
			donationsgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	healthpb.RegisterHealthServer(grpcSrv, healthServer)

	return grpcSrv, lis
}

func mustCreateApplication() (*application, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	locker, closeLocker := mustCreateLocker(cfg)

	txnRepo := repository.NewTransactionRepository(db)
	logRepo := repository.NewTransactionLogRepository(db)
	callbackRepo := repository.NewTransactionCallbackRepository(db)
	settingRepo := repository.NewGatewaySettingRepository(db)

	chipClient := gateway.NewChipClient(gateway.ChipConfig{
		BaseURL:     cfg.Chip.BaseURL,
		HTTPTimeout: cfg.Chip.HTTPTimeout,
	})

	credentialService := service.NewCredentialService(
		settingRepo,
		chipClient,
		cfg.Chip.SecretKey,
		cfg.Chip.BrandID,
		factory.NewModuleLogger("credentials-service"),
	)

	links := service.Links{
		PublicBaseURL: cfg.App.PublicBaseURL,
		ReceiptURL:    cfg.Reconcile.ReceiptURL,
		CancelURL:     cfg.Reconcile.CancelURL,
	}

	transactionService := service.NewTransactionService(
		txnRepo,
		logRepo,
		credentialService,
		chipClient,
		locker,
		links,
		service.CheckoutConfig{
			CreatorAgent:           cfg.Chip.CreatorAgent,
			SendReceipt:            cfg.Chip.SendReceipt,
			DueStrict:              cfg.Chip.DueStrict,
			DueStrictTiming:        cfg.Chip.DueStrictTiming,
			PaymentMethodWhitelist: cfg.Chip.PaymentMethodWhitelist,
		},
		factory.NewModuleLogger("transactions-service"),
	)

	reconcileService := service.NewReconcileService(
		txnRepo,
		logRepo,
		callbackRepo,
		credentialService,
		chipClient,
		locker,
		service.ReconcileConfig{
			PollTimeout:  cfg.Chip.PollTimeout,
			StaleAfter:   cfg.Reconcile.StaleAfter,
			JobBatchSize: cfg.Reconcile.JobBatchSize,
		},
		factory.NewModuleLogger("reconcile-service"),
	)

	cleanup := func() {
		closeLocker()
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &application{
		cfg:          cfg,
		db:           db,
		links:        links,
		credentials:  credentialService,
		transactions: transactionService,
		reconcile:    reconcileService,
	}, cleanup
}

func mustCreateLocker(cfg *config.Config) (lock.Locker, func()) {
	if cfg.Reconcile.LockBackend != config.LockBackendRedis {
		return lock.NewMemoryLocker(cfg.Reconcile.LockTimeout), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logrus.WithError(err).Fatal("Failed to ping redis")
	}

	locker := lock.NewRedisLocker(client, cfg.Reconcile.LockTimeout, cfg.Reconcile.LockLease, factory.NewModuleLogger("redis-locker"))
	return locker, func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
}
