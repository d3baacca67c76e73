package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mohamedkhairy/trade-alerter/internal/config"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// DatabaseStore is a PostgreSQL-backed RuleStore. It is the store of record:
// rows never expire, unlike Redis keys.
//
// Expected schema:
//
//	CREATE TABLE rules (
//	    id          TEXT PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    rule_type   TEXT NOT NULL,
//	    enabled     BOOLEAN NOT NULL DEFAULT TRUE,
//	    priority    INTEGER NOT NULL DEFAULT 0,
//	    conditions  JSONB NOT NULL,
//	    filters     JSONB,
//	    targets     JSONB,
//	    confidence  JSONB,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
type DatabaseStore struct {
	db *sql.DB
}

const ruleColumns = "id, name, description, rule_type, enabled, priority, conditions, filters, targets, confidence, created_at, updated_at"

// NewDatabaseStore opens a connection pool and verifies it.
func NewDatabaseStore(cfg config.DatabaseConfig) (*DatabaseStore, error) {
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

	logger.Info("Database rule store initialized",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database),
	)
	return &DatabaseStore{db: db}, nil
}

// GetRule retrieves a rule by ID
func (s *DatabaseStore) GetRule(id string) (*models.Rule, error) {
	row := s.db.QueryRow("SELECT "+ruleColumns+" FROM rules WHERE id = $1", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRuleNotFound
	}
	return rule, err
}

// GetAllRules retrieves every stored rule
func (s *DatabaseStore) GetAllRules() ([]*models.Rule, error) {
	return s.queryRules("SELECT " + ruleColumns + " FROM rules ORDER BY created_at DESC")
}

// GetEnabledRules retrieves only enabled rules
func (s *DatabaseStore) GetEnabledRules() ([]*models.Rule, error) {
	return s.queryRules("SELECT " + ruleColumns + " FROM rules WHERE enabled = TRUE ORDER BY created_at DESC")
}

// AddRule validates and inserts a rule, assigning an ID when absent
func (s *DatabaseStore) AddRule(rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditions, filters, targets, confidence, err := marshalRuleBlocks(rule)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rule.ID, rule.Name, rule.Description, string(rule.Type), rule.Enabled, rule.Priority,
		conditions, filters, targets, confidence, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.ErrRuleExists
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// UpdateRule replaces an existing rule, preserving its creation time
func (s *DatabaseStore) UpdateRule(rule *models.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	conditions, filters, targets, confidence, err := marshalRuleBlocks(rule)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(
		`UPDATE rules
		 SET name = $2, description = $3, rule_type = $4, enabled = $5, priority = $6,
		     conditions = $7, filters = $8, targets = $9, confidence = $10, updated_at = $11
		 WHERE id = $1`,
		rule.ID, rule.Name, rule.Description, string(rule.Type), rule.Enabled, rule.Priority,
		conditions, filters, targets, confidence, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return checkRuleAffected(result)
}

// DeleteRule removes a rule by ID
func (s *DatabaseStore) DeleteRule(id string) error {
	result, err := s.db.Exec("DELETE FROM rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkRuleAffected(result)
}

// EnableRule enables a rule
func (s *DatabaseStore) EnableRule(id string) error {
	return s.setEnabled(id, true)
}

// DisableRule disables a rule
func (s *DatabaseStore) DisableRule(id string) error {
	return s.setEnabled(id, false)
}

func (s *DatabaseStore) setEnabled(id string, enabled bool) error {
	result, err := s.db.Exec("UPDATE rules SET enabled = $2, updated_at = NOW() WHERE id = $1", id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set rule enabled state: %w", err)
	}
	return checkRuleAffected(result)
}

// Close closes the connection pool
func (s *DatabaseStore) Close() error {
	return s.db.Close()
}

func (s *DatabaseStore) queryRules(query string) ([]*models.Rule, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var result []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return result, nil
}

func marshalRuleBlocks(rule *models.Rule) (conditions []byte, filters, targets, confidence interface{}, err error) {
	conditions, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	if filters, err = marshalNullable(rule.Filters == nil, rule.Filters); err != nil {
		return nil, nil, nil, nil, err
	}
	if targets, err = marshalNullable(rule.Targets == nil, rule.Targets); err != nil {
		return nil, nil, nil, nil, err
	}
	if confidence, err = marshalNullable(rule.Confidence == nil, rule.Confidence); err != nil {
		return nil, nil, nil, nil, err
	}
	return conditions, filters, targets, confidence, nil
}

func marshalNullable(isNil bool, v interface{}) (interface{}, error) {
	if isNil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule block: %w", err)
	}
	return data, nil
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var rule models.Rule
	var ruleType string
	var conditions []byte
	var filters, targets, confidence []byte

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &ruleType, &rule.Enabled, &rule.Priority,
		&conditions, &filters, &targets, &confidence, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Type = models.RuleType(ruleType)
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if len(filters) > 0 {
		rule.Filters = &models.Filters{}
		if err := json.Unmarshal(filters, rule.Filters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal filters: %w", err)
		}
	}
	if len(targets) > 0 {
		rule.Targets = &models.Targets{}
		if err := json.Unmarshal(targets, rule.Targets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targets: %w", err)
		}
	}
	if len(confidence) > 0 {
		rule.Confidence = &models.Confidence{}
		if err := json.Unmarshal(confidence, rule.Confidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal confidence: %w", err)
		}
	}
	return &rule, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func checkRuleAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}
