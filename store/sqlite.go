package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed repository. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	// foreign_keys and busy_timeout are per-connection, so they go in the DSN.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to enable WAL mode: %w", err), db.Close())
	}

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

// Close optimizes and closes the database.
func (s *Store) Close() error {
	_, err := s.db.Exec("PRAGMA optimize")
	return multierr.Combine(err, s.db.Close())
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS configurations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			game_type TEXT NOT NULL,
			config_data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS simulation_results (
			id TEXT PRIMARY KEY,
			configuration_id INTEGER REFERENCES configurations(id) ON DELETE SET NULL,
			name TEXT NOT NULL DEFAULT 'Unnamed Simulation',
			description TEXT,
			game_type TEXT NOT NULL DEFAULT 'unknown',
			config_snapshot TEXT,
			result_data TEXT NOT NULL,
			stats_summary TEXT,
			total_rounds INTEGER,
			num_agents INTEGER,
			is_complete INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created_at ON simulation_results(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_results_game_type ON simulation_results(game_type, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_results_configuration ON simulation_results(configuration_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) timestamp() (time.Time, string) {
	t := s.now().UTC()
	return t, t.Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

// SaveConfiguration inserts c and sets its ID and timestamps.
func (s *Store) SaveConfiguration(ctx context.Context, c *Configuration) error {
	t, ts := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO configurations (name, description, game_type, config_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Description, c.GameType, c.ConfigJSON, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read configuration id: %w", err)
	}
	c.ID = id
	c.CreatedAt, c.UpdatedAt = t, t
	return nil
}

// UpdateConfiguration replaces the stored fields of c and bumps updated_at.
func (s *Store) UpdateConfiguration(ctx context.Context, c *Configuration) error {
	t, ts := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE configurations SET name = ?, description = ?, game_type = ?, config_data = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Description, c.GameType, c.ConfigJSON, ts, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("configuration %d: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = t
	return nil
}

const configurationColumns = `id, name, description, game_type, config_data, created_at, updated_at`

func scanConfiguration(row interface{ Scan(...any) error }) (*Configuration, error) {
	var c Configuration
	var description sql.NullString
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &description, &c.GameType, &c.ConfigJSON, &created, &updated); err != nil {
		return nil, err
	}
	c.Description = description.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// GetConfiguration loads a configuration by ID.
func (s *Store) GetConfiguration(ctx context.Context, id int64) (*Configuration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configurationColumns+` FROM configurations WHERE id = ?`, id)
	c, err := scanConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("configuration %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return c, nil
}

// ListConfigurations returns every configuration, most recently updated first.
func (s *Store) ListConfigurations(ctx context.Context) ([]Configuration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configurationColumns+` FROM configurations ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query configurations: %w", err)
	}
	defer rows.Close()

	configs := []Configuration{}
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		configs = append(configs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating configurations: %w", err)
	}
	return configs, nil
}

// SaveResult inserts r, assigning a UUID if it has no ID.
func (s *Store) SaveResult(ctx context.Context, r *Result) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	t, ts := s.timestamp()

	completeInt := 0
	if r.IsComplete {
		completeInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_results (
			id, configuration_id, name, description, game_type, config_snapshot,
			result_data, stats_summary, total_rounds, num_agents, is_complete, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConfigurationID, r.Name, r.Description, r.GameType, r.ConfigSnapshot,
		r.ResultJSON, r.StatsSummary, r.TotalRounds, r.NumAgents, completeInt, ts)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	r.CreatedAt = t
	return nil
}

const resultColumns = `id, configuration_id, name, description, game_type, config_snapshot,
	result_data, stats_summary, total_rounds, num_agents, is_complete, created_at`

func scanResult(row interface{ Scan(...any) error }) (*Result, error) {
	var r Result
	var configID sql.NullInt64
	var description, snapshot, summary sql.NullString
	var rounds, agents sql.NullInt64
	var completeInt int
	var created string

	err := row.Scan(&r.ID, &configID, &r.Name, &description, &r.GameType, &snapshot,
		&r.ResultJSON, &summary, &rounds, &agents, &completeInt, &created)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	if configID.Valid {
		id := configID.Int64
		r.ConfigurationID = &id
	}
	r.Description = description.String
	r.ConfigSnapshot = snapshot.String
	r.StatsSummary = summary.String
	r.TotalRounds = int(rounds.Int64)
	r.NumAgents = int(agents.Int64)
	r.IsComplete = completeInt == 1
	r.CreatedAt = parseTime(created)
	return &r, nil
}

// GetResult loads a result by ID.
func (s *Store) GetResult(ctx context.Context, id string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM simulation_results WHERE id = ?`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return r, nil
}

// ListResults returns one page of results matching q.
func (s *Store) ListResults(ctx context.Context, q ResultsQuery) (*ResultsList, error) {
	// Build WHERE clause for filtering
	var conds []string
	args := []any{}
	if q.GameType != "" {
		conds = append(conds, "game_type = ?")
		args = append(args, q.GameType)
	}
	if q.Search != "" {
		conds = append(conds, "(name LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(q.Search) + "%"
		args = append(args, pattern, pattern)
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM simulation_results "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	// Calculate pagination
	if q.PerPage <= 0 {
		q.PerPage = 10
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	totalPages := (totalCount + q.PerPage - 1) / q.PerPage
	offset := (q.Page - 1) * q.PerPage

	order := "created_at DESC, id"
	switch q.Sort {
	case SortOldest:
		order = "created_at ASC, id"
	case SortName:
		order = "name COLLATE NOCASE ASC, created_at DESC"
	default:
		q.Sort = SortNewest
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM simulation_results `+whereClause+
			` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, q.PerPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results, err := collectResults(rows)
	if err != nil {
		return nil, err
	}
	return &ResultsList{
		Results:    results,
		TotalCount: totalCount,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: totalPages,
	}, nil
}

// ResultsForConfiguration returns every result saved for a configuration, newest first.
func (s *Store) ResultsForConfiguration(ctx context.Context, configurationID int64) ([]Result, error) {
	if _, err := s.GetConfiguration(ctx, configurationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM simulation_results WHERE configuration_id = ? ORDER BY created_at DESC, id`,
		configurationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

func collectResults(rows *sql.Rows) ([]Result, error) {
	results := []Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
