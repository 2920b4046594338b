package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/hybridhouse/journal/internal/auth"
	"github.com/hybridhouse/journal/internal/config"
	"github.com/hybridhouse/journal/internal/db"
	"github.com/hybridhouse/journal/internal/health"
	"github.com/hybridhouse/journal/internal/journal"
	"github.com/hybridhouse/journal/internal/middleware"
	"github.com/hybridhouse/journal/internal/progress"
	"github.com/hybridhouse/journal/internal/strava"
	"github.com/hybridhouse/journal/internal/telemetry/metrics"
	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	ingestAPIKey      string // used by the ios health bridge when posting records
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool
	admin  *auth.Admin

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	stravaClient *strava.Client

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	IngestAPIKey            string
	StravaClientID          string
	StravaClientSecret      string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": "journal_db"},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "journal-backend")
	if err != nil {
		return nil, err
	}

	return &Server{
		config:       params.Config,
		dbPool:       dbPool,
		ingestAPIKey: params.IngestAPIKey,
		versionInfo:  params.VersionInfo,
		admin: &auth.Admin{
			Username:     params.AdminUsername,
			PasswordHash: params.AdminPasswordHash,
		},

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		stravaClient: strava.NewClient(params.StravaClientID, params.StravaClientSecret),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	healthRepo := health.NewRepo(s.dbPool)
	healthHandler := health.NewHandler(healthRepo, s.metricsManager)
	r.HandleFunc("/api/health/ingest", healthHandler.HandleIngest).Methods("POST", "OPTIONS").Name("ingest")
	r.HandleFunc("/api/workouts", healthHandler.HandleListWorkouts).Methods("GET", "OPTIONS").Name("list-workouts")
	r.HandleFunc("/api/metrics", healthHandler.HandleListMetrics).Methods("GET", "OPTIONS").Name("list-metrics")

	journalRepo := journal.NewRepo(s.dbPool)
	liftAnalyzer := journal.NewAnalyzer(journalRepo, s.config.RPEMinEntries)
	journalHandler := journal.NewHandler(journalRepo, liftAnalyzer)
	r.HandleFunc("/api/journal/lifts", journalHandler.HandleAddLift).Methods("POST", "OPTIONS").Name("new-lift")
	r.HandleFunc("/api/journal/lifts/{lift}", journalHandler.HandleListLifts).Methods("GET", "OPTIONS").Name("list-lifts")
	r.HandleFunc("/api/journal/lifts/{lift}/progress", journalHandler.HandleLiftProgress).Methods("GET", "OPTIONS").Name("lift-progress")
	r.HandleFunc("/api/journal/lifts/entry/{id}", journalHandler.HandleGetLift).Methods("GET", "OPTIONS").Name("get-lift")
	r.HandleFunc("/api/journal/lifts/entry/{id}", journalHandler.HandleDeleteLift).Methods("DELETE", "OPTIONS").Name("remove-lift")
	r.HandleFunc("/api/journal/cardio", journalHandler.HandleAddCardio).Methods("POST", "OPTIONS").Name("new-cardio")
	r.HandleFunc("/api/journal/cardio", journalHandler.HandleListCardio).Methods("GET", "OPTIONS").Name("list-cardio")
	r.HandleFunc("/api/journal/runs", journalHandler.HandleAddRun).Methods("POST", "OPTIONS").Name("new-run")
	r.HandleFunc("/api/journal/runs", journalHandler.HandleListRuns).Methods("GET", "OPTIONS").Name("list-runs")

	progressHandler := progress.NewHandler(healthRepo, journalRepo, liftAnalyzer)
	r.HandleFunc("/api/progress/overview", progressHandler.HandleOverview).Methods("GET", "OPTIONS").Name("progress-overview")
	r.HandleFunc("/api/progress/lift/{lift}", progressHandler.HandleLift).Methods("GET", "OPTIONS").Name("progress-lift")

	stravaRepo := strava.NewRepo(s.dbPool)
	stravaTokens := strava.NewTokenManager(stravaRepo, s.stravaClient, s.metricsManager)
	stravaHandler := strava.NewHandler(strava.NewHandlerParams{
		Client:       s.stravaClient,
		Tokens:       stravaTokens,
		Repo:         stravaRepo,
		Workouts:     healthRepo,
		LoginChecker: s.loginChecker,
		Metrics:      s.metricsManager,
		RedirectURI:  s.config.StravaRedirectURI,
		AppBaseURL:   s.config.AppBaseURL,
	})
	r.HandleFunc("/api/strava/connect", stravaHandler.HandleConnect).Methods("GET", "OPTIONS").Name("strava-connect")
	r.HandleFunc("/api/strava/callback", stravaHandler.HandleCallback).Methods("GET", "OPTIONS").Name("strava-callback")
	r.HandleFunc("/api/strava/sync", stravaHandler.HandleSync).Methods("POST", "OPTIONS").Name("strava-sync")
	r.HandleFunc("/api/strava/disconnect", stravaHandler.HandleDisconnect).Methods("DELETE", "OPTIONS").Name("strava-disconnect")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authHandler := auth.NewHandler(s.authService, s.admin)
	authHandler.SetupRoutes(r, reqRateLimiter, s.config.LoginRateLimitAllowedPerMin)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, "I am the hybrid journal, at your service 🏋️")
	}).Methods("GET").Name("root")
	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.ingestAPIKey,
		s.loginChecker,
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
