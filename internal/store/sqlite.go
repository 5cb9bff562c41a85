package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spx-engine/internal/errors"
	"spx-engine/internal/gate"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
	"spx-engine/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// latest risk context per user, filled on first read and on every save
	mu         sync.RWMutex
	riskByUser map[string]models.RiskContext
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError("open database", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:         db,
		riskByUser: make(map[string]models.RiskContext),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Setups produced by the detection pipeline
	CREATE TABLE IF NOT EXISTS setups (
		id TEXT PRIMARY KEY,
		session_date TEXT NOT NULL,
		setup_type TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		status_updated_at DATETIME NOT NULL
	);

	-- Account snapshots used for sizing
	CREATE TABLE IF NOT EXISTS risk_contexts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		total_equity REAL,
		day_trade_buying_power REAL,
		max_risk_pct REAL NOT NULL DEFAULT 0,
		buying_power_utilization_pct REAL NOT NULL DEFAULT 0,
		pdt_qualified INTEGER,
		as_of DATETIME NOT NULL
	);

	-- Gate decisions, one row per evaluation
	CREATE TABLE IF NOT EXISTS gate_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_date TEXT NOT NULL,
		passed INTEGER NOT NULL,
		blocking_check TEXT,
		payload TEXT NOT NULL,
		evaluated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_setups_session ON setups(session_date);
	CREATE INDEX IF NOT EXISTS idx_setups_status ON setups(status);
	CREATE INDEX IF NOT EXISTS idx_risk_user ON risk_contexts(user_id, as_of);
	CREATE INDEX IF NOT EXISTS idx_gate_evaluated ON gate_decisions(evaluated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", errors.ErrDatabaseError, op, err)
}

// ============================================================================
// Setup Methods
// ============================================================================

// SaveSetup inserts or replaces a setup. The session date is taken from
// CreatedAt in ET.
func (s *SQLiteStore) SaveSetup(ctx context.Context, setup models.Setup) error {
	if setup.ID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "setup id is required")
	}
	if setup.CreatedAt.IsZero() {
		setup.CreatedAt = time.Now().UTC()
	}
	if setup.StatusUpdatedAt.IsZero() {
		setup.StatusUpdatedAt = setup.CreatedAt
	}
	payload, err := json.Marshal(setup)
	if err != nil {
		return errors.Wrap(err, "failed to encode setup")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO setups (id, session_date, setup_type, status, payload, created_at, status_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, setup.ID, utils.EasternDate(setup.CreatedAt), string(setup.Type), string(setup.Status), string(payload), setup.CreatedAt.UTC(), setup.StatusUpdatedAt.UTC())
	if err != nil {
		return dbError("save setup", err)
	}
	return nil
}

// UpdateSetupStatus moves a setup to a new status. Moving to triggered stamps
// TriggeredAt when it is not already set.
func (s *SQLiteStore) UpdateSetupStatus(ctx context.Context, id string, status models.SetupStatus, at time.Time) error {
	if _, err := models.ParseSetupStatus(string(status)); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx, `SELECT payload FROM setups WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return errors.Wrapf(errors.ErrSetupNotFound, "setup %s", id)
	}
	if err != nil {
		return dbError("load setup", err)
	}

	var setup models.Setup
	if err := json.Unmarshal([]byte(payload), &setup); err != nil {
		return errors.Wrap(err, "failed to decode setup")
	}
	setup.Status = status
	setup.StatusUpdatedAt = at.UTC()
	if status == models.StatusTriggered && setup.TriggeredAt == nil {
		triggered := at.UTC()
		setup.TriggeredAt = &triggered
	}

	encoded, err := json.Marshal(setup)
	if err != nil {
		return errors.Wrap(err, "failed to encode setup")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE setups SET status = ?, payload = ?, status_updated_at = ? WHERE id = ?
	`, string(status), string(encoded), setup.StatusUpdatedAt, id); err != nil {
		return dbError("update setup status", err)
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

// GetSetups retrieves setups ordered by creation time.
func (s *SQLiteStore) GetSetups(ctx context.Context, filter SetupFilter) ([]models.Setup, error) {
	query := "SELECT payload FROM setups WHERE 1=1"
	args := []interface{}{}

	if filter.SessionDate != "" {
		query += " AND session_date = ?"
		args = append(args, filter.SessionDate)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += " AND setup_type = ?"
		args = append(args, string(filter.Type))
	}

	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query setups", err)
	}
	defer rows.Close()

	var setups []models.Setup
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, dbError("scan setup", err)
		}
		var setup models.Setup
		if err := json.Unmarshal([]byte(payload), &setup); err != nil {
			return nil, errors.Wrap(err, "failed to decode setup")
		}
		setups = append(setups, setup)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate setups", err)
	}

	return setups, nil
}

// DetectActiveSetups returns the non-terminal setups of the session containing q.Now.
func (s *SQLiteStore) DetectActiveSetups(ctx context.Context, q providers.SetupQuery) ([]models.Setup, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	all, err := s.GetSetups(ctx, SetupFilter{SessionDate: utils.EasternDate(now)})
	if err != nil {
		return nil, err
	}

	active := make([]models.Setup, 0, len(all))
	for _, setup := range all {
		if !setup.Status.IsTerminal() {
			active = append(active, setup)
		}
	}
	return active, nil
}

// GetSetupByID returns nil, nil when the setup does not exist.
func (s *SQLiteStore) GetSetupByID(ctx context.Context, id string, _ providers.SetupQuery) (*models.Setup, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM setups WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get setup", err)
	}

	var setup models.Setup
	if err := json.Unmarshal([]byte(payload), &setup); err != nil {
		return nil, errors.Wrap(err, "failed to decode setup")
	}
	return &setup, nil
}

// ============================================================================
// Risk Context Methods
// ============================================================================

// SaveRiskContext appends an account snapshot. A zero AsOf is stamped with the current time.
func (s *SQLiteStore) SaveRiskContext(ctx context.Context, rc models.RiskContext) error {
	if rc.AsOf.IsZero() {
		rc.AsOf = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_contexts (user_id, total_equity, day_trade_buying_power, max_risk_pct, buying_power_utilization_pct, pdt_qualified, as_of)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rc.UserID, nullFloat(rc.TotalEquity), nullFloat(rc.DayTradeBuyingPower), rc.MaxRiskPct, rc.BuyingPowerUtilizationPct, nullBool(rc.PDTQualified), rc.AsOf.UTC())
	if err != nil {
		return dbError("save risk context", err)
	}

	s.mu.Lock()
	if cur, ok := s.riskByUser[rc.UserID]; !ok || !rc.AsOf.Before(cur.AsOf) {
		s.riskByUser[rc.UserID] = rc
	}
	s.mu.Unlock()
	return nil
}

// LatestRiskContext returns the most recent snapshot for a user, or nil when none exists.
func (s *SQLiteStore) LatestRiskContext(ctx context.Context, userID string) (*models.RiskContext, error) {
	s.mu.RLock()
	if rc, ok := s.riskByUser[userID]; ok {
		s.mu.RUnlock()
		return &rc, nil
	}
	s.mu.RUnlock()

	var (
		rc     models.RiskContext
		equity sql.NullFloat64
		bp     sql.NullFloat64
		pdt    sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_equity, day_trade_buying_power, max_risk_pct, buying_power_utilization_pct, pdt_qualified, as_of
		FROM risk_contexts
		WHERE user_id = ?
		ORDER BY as_of DESC, id DESC
		LIMIT 1
	`, userID).Scan(&rc.UserID, &equity, &bp, &rc.MaxRiskPct, &rc.BuyingPowerUtilizationPct, &pdt, &rc.AsOf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get risk context", err)
	}
	if equity.Valid {
		rc.TotalEquity = &equity.Float64
	}
	if bp.Valid {
		rc.DayTradeBuyingPower = &bp.Float64
	}
	if pdt.Valid {
		rc.PDTQualified = &pdt.Bool
	}

	s.mu.Lock()
	s.riskByUser[userID] = rc
	s.mu.Unlock()
	return &rc, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

// ============================================================================
// Gate Decision Methods
// ============================================================================

// SaveGateDecision records one gate evaluation.
func (s *SQLiteStore) SaveGateDecision(ctx context.Context, decision gate.EnvironmentGateDecision) error {
	at := decision.EvaluatedAt
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return errors.Wrap(err, "failed to encode gate decision")
	}

	passed := 0
	if decision.Passed {
		passed = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gate_decisions (session_date, passed, blocking_check, payload, evaluated_at)
		VALUES (?, ?, ?, ?, ?)
	`, utils.EasternDate(at), passed, decision.BlockingCheck(), string(payload), at.UTC())
	if err != nil {
		return dbError("save gate decision", err)
	}
	return nil
}

// GetGateDecisions retrieves gate decisions, newest first.
func (s *SQLiteStore) GetGateDecisions(ctx context.Context, filter DecisionFilter) ([]GateDecisionRecord, error) {
	query := "SELECT id, session_date, passed, blocking_check, payload FROM gate_decisions WHERE 1=1"
	args := []interface{}{}

	if !filter.StartDate.IsZero() {
		query += " AND evaluated_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND evaluated_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Passed != nil {
		passed := 0
		if *filter.Passed {
			passed = 1
		}
		query += " AND passed = ?"
		args = append(args, passed)
	}

	query += " ORDER BY evaluated_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query gate decisions", err)
	}
	defer rows.Close()

	var records []GateDecisionRecord
	for rows.Next() {
		var (
			r        GateDecisionRecord
			passed   int
			blocking sql.NullString
			payload  string
		)
		if err := rows.Scan(&r.ID, &r.SessionDate, &passed, &blocking, &payload); err != nil {
			return nil, dbError("scan gate decision", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.Decision); err != nil {
			return nil, errors.Wrap(err, "failed to decode gate decision")
		}
		r.Passed = passed == 1
		r.BlockingCheck = blocking.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate gate decisions", err)
	}

	return records, nil
}
