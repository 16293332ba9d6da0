// cmd/circulation/main.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"

	"bookcirc/internal/circulation"
	"bookcirc/internal/config"
	"bookcirc/internal/events"
	"bookcirc/internal/gateway"
	"bookcirc/internal/inventory"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		loans    circulation.LoanStore
		tracking circulation.TrackingStore
		sagas    circulation.SagaStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		loans = circulation.NewPostgresLoanStore(db)
		tracking = circulation.NewPostgresTrackingStore(db)
		sagas = circulation.NewPostgresSagaStore(db)
	} else {
		log.Printf("DATABASE_URL not set, using in-memory stores")
		loans = circulation.NewMemoryLoanStore()
		tracking = circulation.NewMemoryTrackingStore()
		sagas = circulation.NewMemorySagaStore()
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.NATSURL != "" {
		natsPub, err := events.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsPub.Close()
		publisher = natsPub
	}

	breakers := gateway.NewRegistry(gateway.Config{
		MinCalls:         cfg.Breaker.MinCalls,
		FailureRate:      cfg.Breaker.FailureRate,
		OpenWait:         time.Duration(cfg.Breaker.OpenWait),
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		WindowInterval:   time.Duration(cfg.Breaker.WindowInterval),
		CallTimeout:      time.Duration(cfg.Breaker.CallTimeout),
	}, prometheus.DefaultRegisterer)

	invClient := inventory.NewHTTPClient(cfg.InventoryURL, time.Duration(cfg.Breaker.CallTimeout))
	svc := circulation.NewService(
		loans,
		circulation.NewTrackingService(tracking),
		sagas,
		invClient,
		breakers,
		publisher,
	)
	handler := circulation.NewHandler(svc)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/breakers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(breakers.Snapshot())
	})
	router.Mount("/", handler.Routes())

	fmt.Printf("🚀 Starting Circulation Service on %s\n", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, router))
}
