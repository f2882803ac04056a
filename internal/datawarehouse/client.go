// Package datawarehouse reads current stock levels from the MS SQL Server
// data warehouse. Access is read-only.
package datawarehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // MS SQL Server driver
	"github.com/shopspring/decimal"
	"github.com/straye-as/shortage-api/internal/config"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0

	defaultHealthCheckTimeout = 5 * time.Second
	defaultInventoryView      = "dbo.v_inventory_levels"
)

var (
	ErrNotConfigured   = errors.New("data warehouse client not initialized")
	ErrInvalidViewName = errors.New("invalid inventory view name")

	viewNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Client provides read-only access to the data warehouse
type Client struct {
	db            *sql.DB
	logger        *zap.Logger
	queryTimeout  time.Duration
	inventoryView string
}

// InventoryLevel is one row of the warehouse stock view
type InventoryLevel struct {
	PKID      string
	PlantSite string
	OnHandQty decimal.Decimal
}

// HealthStatus represents the health check result for the data warehouse connection
type HealthStatus struct {
	Status     string        `json:"status"`
	Latency    time.Duration `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	MaxOpen    int           `json:"max_open_connections"`
	Open       int           `json:"open_connections"`
	InUse      int           `json:"in_use"`
	Idle       int           `json:"idle"`
	WaitCount  int64         `json:"wait_count"`
	WaitTimeMs int64         `json:"wait_time_ms"`
}

// NewClient connects to the data warehouse. It returns nil without error when
// the warehouse is disabled or its credentials are missing.
func NewClient(cfg *config.DataWarehouseConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Data warehouse connection disabled")
		return nil, nil
	}

	if cfg.URL == "" || cfg.User == "" || cfg.Password == "" {
		logger.Warn("Data warehouse enabled but missing credentials, skipping connection",
			zap.Bool("url_present", cfg.URL != ""),
			zap.Bool("user_present", cfg.User != ""),
			zap.Bool("password_present", cfg.Password != ""),
		)
		return nil, nil
	}

	view, err := inventoryViewName(cfg.InventoryView)
	if err != nil {
		return nil, err
	}

	connStr := buildConnectionString(cfg)

	var db *sql.DB
	backoff := defaultInitialBackoff

	for attempt := 1; attempt <= defaultMaxRetries; attempt++ {
		db, err = sql.Open("sqlserver", connStr)
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

			ctx, cancel := context.WithTimeout(context.Background(), defaultHealthCheckTimeout)
			err = db.PingContext(ctx)
			cancel()
			if err == nil {
				logger.Info("Data warehouse connection established",
					zap.Int("attempts_taken", attempt),
					zap.String("inventory_view", view),
				)
				return &Client{
					db:            db,
					logger:        logger,
					queryTimeout:  cfg.QueryTimeoutDuration(),
					inventoryView: view,
				}, nil
			}
			_ = db.Close()
		}

		logger.Warn("Data warehouse connection attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", defaultMaxRetries),
		)
		if attempt < defaultMaxRetries {
			time.Sleep(backoff)
			backoff = min(time.Duration(float64(backoff)*defaultBackoffFactor), defaultMaxBackoff)
		}
	}

	return nil, fmt.Errorf("failed to connect to data warehouse after %d attempts: %w", defaultMaxRetries, err)
}

// NewClientWithDB wraps an open connection pool
func NewClientWithDB(db *sql.DB, inventoryView string, queryTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	view, err := inventoryViewName(inventoryView)
	if err != nil {
		return nil, err
	}
	return &Client{
		db:            db,
		logger:        logger,
		queryTimeout:  queryTimeout,
		inventoryView: view,
	}, nil
}

func inventoryViewName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultInventoryView, nil
	}
	if !viewNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidViewName, name)
	}
	return name, nil
}

// buildConnectionString accepts host:port/database or host:port
func buildConnectionString(cfg *config.DataWarehouseConfig) string {
	hostPort, database, _ := strings.Cut(cfg.URL, "/")
	host, port, found := strings.Cut(hostPort, ":")
	if !found {
		port = "1433"
	}

	query := url.Values{}
	query.Add("encrypt", "true")
	query.Add("TrustServerCertificate", "false")
	query.Add("connection timeout", "30")
	query.Add("app name", "shortage-api")
	if database != "" {
		query.Add("database", database)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     host + ":" + port,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Close closes the connection pool
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close data warehouse connection: %w", err)
	}
	c.logger.Info("Data warehouse connection closed")
	return nil
}

// IsEnabled reports whether the client holds a live pool
func (c *Client) IsEnabled() bool {
	return c != nil && c.db != nil
}

// HealthCheck pings the warehouse and reports pool statistics
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	if !c.IsEnabled() {
		return &HealthStatus{Status: "disabled"}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHealthCheckTimeout)
		defer cancel()
	}

	start := time.Now()
	err := c.db.PingContext(ctx)
	latency := time.Since(start)

	stats := c.db.Stats()
	status := &HealthStatus{
		Status:     "healthy",
		Latency:    latency,
		MaxOpen:    stats.MaxOpenConnections,
		Open:       stats.OpenConnections,
		InUse:      stats.InUse,
		Idle:       stats.Idle,
		WaitCount:  stats.WaitCount,
		WaitTimeMs: stats.WaitDuration.Milliseconds(),
	}
	if err != nil {
		c.logger.Warn("Data warehouse health check failed", zap.Error(err), zap.Duration("latency", latency))
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

// FetchInventoryLevels reads the current on-hand quantity of every part at
// every site. Rows with a blank PKID or site are skipped; a NULL quantity
// reads as zero.
func (c *Client) FetchInventoryLevels(ctx context.Context) ([]InventoryLevel, error) {
	if !c.IsEnabled() {
		return nil, ErrNotConfigured
	}

	if _, ok := ctx.Deadline(); !ok && c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	query := fmt.Sprintf("SELECT PKID, PLANT_SITE, ON_HAND_QTY FROM %s ORDER BY PKID, PLANT_SITE", c.inventoryView)

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory levels: %w", err)
	}
	defer rows.Close()

	var levels []InventoryLevel
	skipped := 0
	for rows.Next() {
		var (
			pkid, site sql.NullString
			qty        decimal.NullDecimal
		)
		if err := rows.Scan(&pkid, &site, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan inventory level: %w", err)
		}

		level := InventoryLevel{
			PKID:      strings.TrimSpace(pkid.String),
			PlantSite: strings.TrimSpace(site.String),
			OnHandQty: decimal.Zero,
		}
		if level.PKID == "" || level.PlantSite == "" {
			skipped++
			continue
		}
		if qty.Valid {
			level.OnHandQty = qty.Decimal
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory levels: %w", err)
	}

	c.logger.Debug("Fetched inventory levels from data warehouse",
		zap.Int("rows", len(levels)),
		zap.Int("skipped", skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return levels, nil
}
