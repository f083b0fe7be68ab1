package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/giveharbor/giveharbor-backend/internal/adapter/httpapi"
	"github.com/giveharbor/giveharbor-backend/internal/adapter/repository/postgres"
	"github.com/giveharbor/giveharbor-backend/internal/usecase/disbursement"
)

const (
	defaultAPIToken = "dev-token"
	defaultHTTPAddr = ":8080"
)

func main() {
	// 1. Setup Logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2. Setup Database
	dbConnStr := os.Getenv("DB_CONN_STR")
	if dbConnStr == "" {
		// If explicit string is missing, build it from individual vars (Docker friendly)
		host := getenv("DB_HOST", "localhost")
		port := getenv("DB_PORT", "5432")
		user := getenv("DB_USER", "postgres")
		password := getenv("DB_PASSWORD", "postgres")
		dbname := getenv("DB_NAME", "giveharbor")

		dbConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}

	db, err := postgres.NewDB(dbConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// 3. Initialize Repositories (Postgres)
	charityRepo := postgres.NewCharityRepository(db)
	donationRepo := postgres.NewDonationRepository(db)
	batchRepo := postgres.NewBatchRepository(db)
	unitOfWork := postgres.NewDisbursementUnitOfWork(db)

	// 4. Initialize Services (Use Cases)
	disbursementService := disbursement.NewService(unitOfWork, batchRepo, logger)

	// 5. Start HTTP Server
	apiToken := getenv("API_TOKEN", defaultAPIToken)
	httpAddr := getenv("HTTP_ADDR", defaultHTTPAddr)

	server := httpapi.NewServer(disbursementService, charityRepo, donationRepo, httpapi.Config{
		APIToken: apiToken,
		Logger:   logger,
	})

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpAddr))
		if err := server.Listen(httpAddr); err != nil {
			logger.Fatal("failed to serve HTTP", zap.Error(err))
		}
	}()

	// Graceful shutdown
	waitForShutdown(server, logger)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(server *httpapi.Server, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))

	if err := server.Shutdown(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}
