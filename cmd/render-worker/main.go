package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"printmill/internal/config"
	"printmill/internal/kafka"
	"printmill/internal/logger"
	"printmill/internal/models"
	"printmill/internal/render"
	renderdb "printmill/internal/render/db"
)

// fileRenderer is the built-in renderer: it simulates the render pipeline and
// produces a deterministic artifact URL. Swap it out for a real rendering
// backend by implementing render.Renderer.
type fileRenderer struct {
	artifactBase string
}

func (f *fileRenderer) Render(ctx context.Context, job *models.RenderJob) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(200 * time.Millisecond):
	}
	suffix := make([]byte, 8)
	rand.Read(suffix)
	return fmt.Sprintf("%s/%s/%s.png", f.artifactBase, job.DesignID, hex.EncodeToString(suffix)), nil
}

func main() {
	godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	var publisher render.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers,
			cfg.Kafka.Topics.DesignEvents, cfg.Kafka.Topics.OrderEvents, log)
		defer producer.Close()
		publisher = producer
	}

	orchestrator := render.NewOrchestrator(&renderdb.DB{Bun: bunDB}, publisher, log, cfg.Render.MaxAttempts)
	renderer := &fileRenderer{artifactBase: "https://artifacts.printmill.local/renders"}

	worker := render.NewWorker(orchestrator, renderer, log, cfg.Render.PollInterval, cfg.Render.ClaimTimeout)
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("WORKER", "Worker exited: "+err.Error())
	}

	log.Info("WORKER", "Render worker exited gracefully")
}
