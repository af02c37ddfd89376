package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kivaquery"
)

func init() {
	// amounts are served as json numbers, the same shape kiva publishes
	decimal.MarshalJSONWithoutQuotes = true
}

func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.Index)
	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.Index)

		// the bundled sample page
		r.Get("/sample", s.GetSample)

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", s.ListLoans)
			r.Get("/{loanId}", s.GetLoan)
			r.Get("/{loanId}/payments", s.GetLoanPayments)
		})
	})

	return r
}

func main() {
	config, err := kivaquery.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Unable to load app config: %s", err)
	}

	logger, err := kivaquery.NewLogger(config.LogLevel)
	if err != nil {
		log.Fatalf("Unable to create logger: %s", err)
	}
	defer logger.Sync()

	pool, err := pgxpool.Connect(context.Background(), config.PostgresUrl)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	s := NewServer(kivaquery.PostgresLoanRepository{Conn: pool}, logger)

	logger.Info("listening", zap.String("port", config.ApiPort))
	if err := http.ListenAndServe(":"+config.ApiPort, NewRouter(s)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
