package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// PostgresStorage implements AlertStorage and WatchlistStorage on PostgreSQL
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage opens and verifies a PostgreSQL connection
func NewPostgresStorage(cfg config.DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("postgres storage initialized",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
	)
	return &PostgresStorage{db: db}, nil
}

// WriteAlert persists one alert
func (s *PostgresStorage) WriteAlert(ctx context.Context, alert *models.Alert) error {
	return s.WriteAlerts(ctx, []*models.Alert{alert})
}

// WriteAlerts persists multiple alerts in one transaction
func (s *PostgresStorage) WriteAlerts(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (
			id, symbol, rule_id, rule_name, setup_type,
			entry_price, stop_loss, target_price, confidence_score,
			matched_conditions, market_data, timestamp, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, alert := range alerts {
		conditionsJSON, err := json.Marshal(alert.MatchedConditions)
		if err != nil {
			return fmt.Errorf("failed to marshal matched conditions: %w", err)
		}
		marketDataJSON, err := json.Marshal(alert.MarketData)
		if err != nil {
			return fmt.Errorf("failed to marshal market data: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			alert.ID, alert.Symbol, alert.RuleID, alert.RuleName, alert.SetupType,
			alert.EntryPrice, alert.StopLoss, alert.TargetPrice, alert.ConfidenceScore,
			conditionsJSON, marketDataJSON, alert.Timestamp, alert.IsRead, alert.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

const alertColumns = `
	id, symbol, rule_id, rule_name, setup_type,
	entry_price, stop_loss, target_price, confidence_score,
	matched_conditions, market_data, timestamp, is_read, created_at
`

// GetAlerts retrieves alerts matching the filter, newest first
func (s *PostgresStorage) GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIndex)
		args = append(args, filter.Symbol)
		argIndex++
	}
	if filter.RuleID != "" {
		query += fmt.Sprintf(" AND rule_id = $%d", argIndex)
		args = append(args, filter.RuleID)
		argIndex++
	}
	if filter.SetupType != "" {
		query += fmt.Sprintf(" AND setup_type = $%d", argIndex)
		args = append(args, filter.SetupType)
		argIndex++
	}
	if filter.Unread {
		query += " AND is_read = FALSE"
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, filter.StartTime)
		argIndex++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, filter.EndTime)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
		argIndex++
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return alerts, nil
}

// GetAlert retrieves one alert by ID
func (s *PostgresStorage) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = $1", alertID)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// MarkAlertRead flips the read flag on an alert
func (s *PostgresStorage) MarkAlertRead(ctx context.Context, alertID string, read bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET is_read = $1 WHERE id = $2", read, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return models.ErrAlertNotFound
	}
	return nil
}

// GetAlertStats returns aggregate alert counts
func (s *PostgresStorage) GetAlertStats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{
		BySetupType: make(map[string]int64),
		BySymbol:    make(map[string]int64),
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read) FROM alerts")
	if err := row.Scan(&stats.Total, &stats.Unread); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if err := s.countGrouped(ctx, "setup_type", stats.BySetupType); err != nil {
		return nil, err
	}
	if err := s.countGrouped(ctx, "symbol", stats.BySymbol); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *PostgresStorage) countGrouped(ctx context.Context, column string, dest map[string]int64) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM alerts GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("failed to count alerts by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		dest[key] = count
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var conditionsJSON, marketDataJSON []byte

	err := row.Scan(
		&alert.ID, &alert.Symbol, &alert.RuleID, &alert.RuleName, &alert.SetupType,
		&alert.EntryPrice, &alert.StopLoss, &alert.TargetPrice, &alert.ConfidenceScore,
		&conditionsJSON, &marketDataJSON, &alert.Timestamp, &alert.IsRead, &alert.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &alert.MatchedConditions); err != nil {
			logger.Warn("failed to unmarshal matched conditions",
				logger.String("alert_id", alert.ID),
				logger.ErrorField(err),
			)
		}
	}
	if len(marketDataJSON) > 0 {
		if err := json.Unmarshal(marketDataJSON, &alert.MarketData); err != nil {
			logger.Warn("failed to unmarshal market data",
				logger.String("alert_id", alert.ID),
				logger.ErrorField(err),
			)
		}
	}
	return &alert, nil
}

// AddSymbol adds a symbol to the watchlist, reactivating it when present
func (s *PostgresStorage) AddSymbol(ctx context.Context, symbol string, notes string) (*models.WatchlistItem, error) {
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	item := &models.WatchlistItem{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO watchlist (symbol, notes, is_active, added_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (symbol) DO UPDATE SET is_active = TRUE, notes = EXCLUDED.notes
		RETURNING id, symbol, added_at, is_active, notes
	`, symbol, notes).Scan(&item.ID, &item.Symbol, &item.AddedAt, &item.IsActive, &item.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to add watchlist symbol: %w", err)
	}
	return item, nil
}

// RemoveSymbol deactivates a watchlist symbol
func (s *PostgresStorage) RemoveSymbol(ctx context.Context, symbol string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE watchlist SET is_active = FALSE WHERE symbol = $1", symbol)
	if err != nil {
		return fmt.Errorf("failed to remove watchlist symbol: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if count == 0 {
		return models.ErrInvalidSymbol
	}
	return nil
}

// GetActiveSymbols returns the active watchlist entries
func (s *PostgresStorage) GetActiveSymbols(ctx context.Context) ([]*models.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, added_at, is_active, notes
		FROM watchlist WHERE is_active = TRUE ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []*models.WatchlistItem
	for rows.Next() {
		item := &models.WatchlistItem{}
		if err := rows.Scan(&item.ID, &item.Symbol, &item.AddedAt, &item.IsActive, &item.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
