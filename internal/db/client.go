package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	SSLMode         string
}

// Client manages the investigation store. Writes go through the circuit
// breaker wrapper; reads use sqlx struct scanning.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	sqlxDB *sqlx.DB
	logger *zap.Logger

	writeQueue chan WriteRequest
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeInvestigation WriteType = iota
	WriteTypeSpecialistExecution
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeInvestigation:
		return "Investigation"
	case WriteTypeSpecialistExecution:
		return "SpecialistExecution"
	default:
		return "Unknown"
	}
}

// NewClient creates a database client with a connection pool.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "require"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	sqlxDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(config.MaxConnections)
	sqlxDB.SetMaxIdleConns(config.IdleConnections)
	sqlxDB.SetConnMaxLifetime(config.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := newClient(sqlxDB, logger)
	logger.Info("Database client initialized",
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("workers", client.workers),
	)
	return client, nil
}

// NewClientWithDB wraps an existing sqlx database handle. Used by tests and
// callers that manage the pool themselves.
func NewClientWithDB(sqlxDB *sqlx.DB, logger *zap.Logger) *Client {
	return newClient(sqlxDB, logger)
}

func newClient(sqlxDB *sqlx.DB, logger *zap.Logger) *Client {
	client := &Client{
		db:         circuitbreaker.NewDatabaseWrapper(sqlxDB.DB, logger),
		sqlxDB:     sqlxDB,
		logger:     logger,
		writeQueue: make(chan WriteRequest, 1000),
		workers:    4,
		stopCh:     make(chan struct{}),
	}
	client.startWorkers()
	return client
}

func (c *Client) startWorkers() {
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case <-c.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case req := <-c.writeQueue:
					c.processWrite(req)
				default:
					c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
					return
				}
			}
		case req := <-c.writeQueue:
			c.processWrite(req)
		}
	}
}

func (c *Client) processWrite(req WriteRequest) {
	var err error
	switch req.Type {
	case WriteTypeInvestigation:
		if inv, ok := req.Data.(*Investigation); ok {
			err = c.SaveInvestigation(context.Background(), inv)
		}
	case WriteTypeSpecialistExecution:
		if exec, ok := req.Data.(*SpecialistExecution); ok {
			err = c.SaveSpecialistExecution(context.Background(), exec)
		}
	}

	if req.Callback != nil {
		req.Callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
}

// QueueWrite enqueues an async write. Returns false if the queue is full;
// best-effort callers drop the write rather than block the investigation.
func (c *Client) QueueWrite(req WriteRequest) bool {
	select {
	case c.writeQueue <- req:
		return true
	default:
		c.logger.Warn("Write queue full, dropping write", zap.String("type", req.Type.String()))
		return false
	}
}

// HealthCheck verifies database connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close stops the workers and closes the pool.
func (c *Client) Close() error {
	close(c.stopCh)
	c.workerWg.Wait()
	return c.sqlxDB.Close()
}
