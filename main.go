package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sapirl7/solarma-sub000/internal/attestation"
	"github.com/sapirl7/solarma-sub000/internal/audit"
	"github.com/sapirl7/solarma-sub000/internal/auth"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	"github.com/sapirl7/solarma-sub000/internal/escrow/application/events"
	escrowmemory "github.com/sapirl7/solarma-sub000/internal/escrow/infrastructure/memory"
	escrowpostgres "github.com/sapirl7/solarma-sub000/internal/escrow/infrastructure/postgres"
	escrowinterfaces "github.com/sapirl7/solarma-sub000/internal/escrow/interfaces"
	escrowhttp "github.com/sapirl7/solarma-sub000/internal/escrow/interfaces/http"
	"github.com/sapirl7/solarma-sub000/internal/eventing"
	"github.com/sapirl7/solarma-sub000/internal/eventing/eventbus"
	eventingmemory "github.com/sapirl7/solarma-sub000/internal/eventing/infrastructure/memory"
	eventingpostgres "github.com/sapirl7/solarma-sub000/internal/eventing/infrastructure/postgres"
	"github.com/sapirl7/solarma-sub000/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	policy, err := application.LoadPolicy()
	if err != nil {
		logger.Fatalf("policy config error: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	}
	metrics.Init(db, logger)

	var (
		profiles    application.ProfileStore
		alarms      application.AlarmStore
		nonces      application.PermitNonceStore
		auditLogger audit.Logger
		outbox      outboxStorage
		processed   eventing.ProcessedStore
		dlq         eventing.DLQStore
	)
	if db != nil {
		profiles = escrowpostgres.NewProfileRepository(db)
		alarms = escrowpostgres.NewAlarmRepository(db)
		nonces = escrowpostgres.NewNonceStore(db)
		auditLogger = audit.NewRepository(db)
		outbox = eventingpostgres.NewOutboxStore(db)
		processed = eventingpostgres.NewProcessedStore(db)
		dlq = eventingpostgres.NewDLQStore(db)
	} else {
		logger.Printf("no DATABASE_URL set, running with in-memory stores")
		profiles = escrowmemory.NewProfileRepository()
		alarms = escrowmemory.NewAlarmRepository()
		nonces = escrowmemory.NewNonceStore()
		outbox = eventingmemory.NewOutboxStore()
		processed = eventingmemory.NewProcessedStore()
		dlq = eventingmemory.NewDLQStore()
	}

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.ProfileInitialized{})
	registry.Register(events.AlarmCreated{})
	registry.Register(events.WakeAcknowledged{})
	registry.Register(events.AlarmSnoozed{})
	registry.Register(events.AlarmClaimed{})
	registry.Register(events.AlarmSwept{})
	registry.Register(events.RefundExecuted{})
	registry.Register(events.AlarmSlashed{})

	dispatcher := eventing.NewDispatcher(baseBus, outbox, registry, dlq)
	publisher := eventing.NewPublisher(outbox, dispatcher, baseBus)

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.AlarmSlashed](), "escrow.log", func(ctx context.Context, event any) error {
		evt, ok := event.(events.AlarmSlashed)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("alarm slashed: owner=%s alarm=%d recipient=%s amount=%d", evt.Owner, evt.AlarmID, evt.Recipient, evt.SlashedAmount)
		return nil
	}, processed)
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.AlarmClaimed](), "escrow.log", func(ctx context.Context, event any) error {
		evt, ok := event.(events.AlarmClaimed)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("alarm claimed: owner=%s alarm=%d returned=%d", evt.Owner, evt.AlarmID, evt.ReturnedAmount)
		return nil
	}, processed)
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.AlarmSwept](), "escrow.log", func(ctx context.Context, event any) error {
		evt, ok := event.(events.AlarmSwept)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("alarm swept: owner=%s alarm=%d returned=%d caller=%s", evt.Owner, evt.AlarmID, evt.ReturnedAmount, evt.Caller)
		return nil
	}, processed)

	serviceOpts := []application.Option{}
	if cfg.AttestationPubKey != "" {
		verifier, err := attestation.NewVerifier(cfg.AttestationPubKey, cfg.AttestationCluster)
		if err != nil {
			logger.Fatalf("attestation verifier error: %v", err)
		}
		serviceOpts = append(serviceOpts, application.WithVerifier(verifier))
	}
	service, err := application.NewService(
		profiles,
		alarms,
		nonces,
		escrowinterfaces.NewInstrumentedPublisher(publisher),
		policy,
		logger,
		serviceOpts...,
	)
	if err != nil {
		logger.Fatalf("escrow service error: %v", err)
	}

	handler, err := escrowhttp.NewHandler(service, auditLogger)
	if err != nil {
		logger.Fatalf("escrow handler error: %v", err)
	}
	statementService := application.NewStatementService(alarms, nil)
	statementHandler, err := escrowinterfaces.NewStatementHandler(statementService)
	if err != nil {
		logger.Fatalf("statement handler error: %v", err)
	}

	authPolicy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), authPolicy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/profiles", handler)
	mux.Handle("/api/v1/alarms", handler)
	mux.Handle("/api/v1/alarms/", handler)
	mux.Handle("/api/v1/statements/export", statementHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	JWTSecret          string
	AttestationPubKey  string
	AttestationCluster string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AttestationPubKey:  getenvDefault("ATTESTATION_PUBLIC_KEY", ""),
		AttestationCluster: getenvDefault("ATTESTATION_CLUSTER", "mainnet"),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

// outboxStorage is an outbox both the publisher and dispatcher can use.
type outboxStorage interface {
	eventing.OutboxStore
	Insert(ctx context.Context, env eventing.Envelope) (string, error)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
