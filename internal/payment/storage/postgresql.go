package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"printmill/internal/config"
	"printmill/internal/logger"
	"printmill/internal/models"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates the event log store on an existing
// database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	log.Info("DATABASE", "Creating payment event log with existing database connection")

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment event log: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment event log: %w", err)
	}

	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and event log ready")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment_event_log table if not exists")

	query := `
    CREATE TABLE IF NOT EXISTS payment_event_log (
        event_id VARCHAR(255) PRIMARY KEY,
        event_type VARCHAR(100) NOT NULL,
        payload JSONB,
        outcome VARCHAR(50),
        detail TEXT,
        order_id VARCHAR(36),
        order_status VARCHAR(50),
        payment_status VARCHAR(50),
        processed_at TIMESTAMP,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create payment_event_log table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payment_event_log_order_id ON payment_event_log(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_event_log_created_at ON payment_event_log(created_at);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// InsertEventIfAbsent records a new event id, or returns the already stored
// row when the gateway redelivers. The bool reports whether this call won the
// insert.
func (s *PostgreSQLStore) InsertEventIfAbsent(event *models.PaymentEvent) (*models.PaymentEvent, bool, error) {
	query := `
    INSERT INTO payment_event_log (event_id, event_type, payload, created_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (event_id) DO NOTHING
    `

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.Exec(query, event.EventID, event.EventType, []byte(event.Payload), createdAt)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to insert event %s: %s", event.EventID, err.Error()))
		return nil, false, fmt.Errorf("failed to insert event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 1 {
		return event, true, nil
	}

	stored, err := s.GetEvent(event.EventID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// RecordResult stores the processing outcome for an event exactly once.
func (s *PostgreSQLStore) RecordResult(eventID string, orderID string, result *models.ProcessingResult) error {
	query := `
    UPDATE payment_event_log SET
        outcome = $1, detail = $2, order_id = $3,
        order_status = $4, payment_status = $5, processed_at = $6
    WHERE event_id = $7 AND outcome IS NULL
    `

	_, err := s.db.Exec(query,
		result.Outcome, result.Detail, nullable(orderID),
		nullable(string(result.OrderStatus)), nullable(string(result.PaymentStatus)),
		time.Now(), eventID,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to record result for event %s: %s", eventID, err.Error()))
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) GetEvent(eventID string) (*models.PaymentEvent, error) {
	query := `
    SELECT event_id, event_type, payload, outcome, detail, order_id,
           order_status, payment_status, processed_at, created_at
    FROM payment_event_log WHERE event_id = $1
    `

	var (
		event         models.PaymentEvent
		payload       []byte
		outcome       sql.NullString
		detail        sql.NullString
		orderID       sql.NullString
		orderStatus   sql.NullString
		paymentStatus sql.NullString
		processedAt   sql.NullTime
	)

	err := s.db.QueryRow(query, eventID).Scan(
		&event.EventID, &event.EventType, &payload, &outcome, &detail, &orderID,
		&orderStatus, &paymentStatus, &processedAt, &event.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event not found")
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get event %s: %s", eventID, err.Error()))
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event.Payload = json.RawMessage(payload)
	event.OrderID = orderID.String
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time
	}
	if outcome.Valid {
		event.Result = &models.ProcessingResult{
			Outcome:       outcome.String,
			Detail:        detail.String,
			OrderID:       orderID.String,
			OrderStatus:   models.OrderStatus(orderStatus.String),
			PaymentStatus: models.PaymentStatus(paymentStatus.String),
		}
	}
	return &event, nil
}

func (s *PostgreSQLStore) ListEventsByOrder(orderID string, limit, offset int) ([]*models.PaymentEvent, error) {
	query := `
    SELECT event_id, event_type, payload, outcome, detail, order_id,
           order_status, payment_status, processed_at, created_at
    FROM payment_event_log
    WHERE order_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
    `

	rows, err := s.db.Query(query, orderID, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list events: %s", err.Error()))
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		var (
			event         models.PaymentEvent
			payload       []byte
			outcome       sql.NullString
			detail        sql.NullString
			oid           sql.NullString
			orderStatus   sql.NullString
			paymentStatus sql.NullString
			processedAt   sql.NullTime
		)
		err := rows.Scan(
			&event.EventID, &event.EventType, &payload, &outcome, &detail, &oid,
			&orderStatus, &paymentStatus, &processedAt, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Payload = json.RawMessage(payload)
		event.OrderID = oid.String
		if processedAt.Valid {
			event.ProcessedAt = processedAt.Time
		}
		if outcome.Valid {
			event.Result = &models.ProcessingResult{
				Outcome:       outcome.String,
				Detail:        detail.String,
				OrderID:       oid.String,
				OrderStatus:   models.OrderStatus(orderStatus.String),
				PaymentStatus: models.PaymentStatus(paymentStatus.String),
			}
		}
		events = append(events, &event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
