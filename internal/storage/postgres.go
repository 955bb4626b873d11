package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/xaenox/omnidesk/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

// wrapErr maps driver-level failures onto the storage sentinels so the
// routing layer can distinguish timeouts from hard failures.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const conversationColumns = `id, contact_id, status, assigned_team_id, assigned_user_id, assignment_method, detected_team, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var teamID, userID sql.NullInt64
	err := row.Scan(
		&conv.ID,
		&conv.ContactID,
		&conv.Status,
		&teamID,
		&userID,
		&conv.AssignmentMethod,
		&conv.DetectedTeam,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		conv.AssignedTeamID = &teamID.Int64
	}
	if userID.Valid {
		conv.AssignedUserID = &userID.Int64
	}
	return conv, nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error querying conversation", err)
	}
	return conv, nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, contactID int64, detectedTeam string) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (contact_id, detected_team)
		VALUES ($1, $2)
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, contactID, detectedTeam))
	if err != nil {
		return nil, wrapErr("error creating conversation", err)
	}
	return conv, nil
}

func (s *PostgresStorage) LatestConversationByContact(ctx context.Context, contactID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE contact_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error querying conversation by contact", err)
	}
	return conv, nil
}

func (s *PostgresStorage) UpdateConversationStatus(ctx context.Context, id int64, from, to models.ConversationStatus) (*models.Conversation, error) {
	// The WHERE status clause is the conditional write the routing layer
	// relies on: a stale precondition yields zero rows, never a blind
	// overwrite.
	query := `
		UPDATE conversations
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, to, id, from))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetConversation(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, wrapErr("error updating conversation status", err)
	}
	return conv, nil
}

func (s *PostgresStorage) SetConversationAssignment(ctx context.Context, id int64, teamID, userID *int64, method models.AssignmentMethod) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET assigned_team_id = $1, assigned_user_id = $2, assignment_method = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, nullID(teamID), nullID(userID), method, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error updating conversation assignment", err)
	}
	return conv, nil
}

func (s *PostgresStorage) SetDetectedTeam(ctx context.Context, id int64, hint string) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET detected_team = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + conversationColumns

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, hint, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error updating detected team", err)
	}
	return conv, nil
}

const handoffColumns = `id, conversation_id, type, status, priority, from_team_id, from_user_id, to_team_id, to_user_id, reason, reject_reason, accepted_by_id, ai_intent, ai_urgency, ai_confidence, created_at, updated_at`

func scanHandoff(row interface{ Scan(...any) error }) (*models.Handoff, error) {
	h := &models.Handoff{}
	var fromTeam, fromUser, toTeam, toUser, acceptedBy sql.NullInt64
	var aiIntent, aiUrgency sql.NullString
	var aiConfidence sql.NullInt64
	err := row.Scan(
		&h.ID,
		&h.ConversationID,
		&h.Type,
		&h.Status,
		&h.Priority,
		&fromTeam,
		&fromUser,
		&toTeam,
		&toUser,
		&h.Reason,
		&h.RejectReason,
		&acceptedBy,
		&aiIntent,
		&aiUrgency,
		&aiConfidence,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fromTeam.Valid {
		h.FromTeamID = &fromTeam.Int64
	}
	if fromUser.Valid {
		h.FromUserID = &fromUser.Int64
	}
	if toTeam.Valid {
		h.ToTeamID = &toTeam.Int64
	}
	if toUser.Valid {
		h.ToUserID = &toUser.Int64
	}
	if acceptedBy.Valid {
		h.AcceptedByID = &acceptedBy.Int64
	}
	if aiIntent.Valid || aiUrgency.Valid || aiConfidence.Valid {
		h.Classification = &models.Classification{
			Intent:     aiIntent.String,
			Urgency:    aiUrgency.String,
			Confidence: int(aiConfidence.Int64),
		}
	}
	return h, nil
}

func (s *PostgresStorage) CreateHandoff(ctx context.Context, h *models.Handoff) error {
	query := `
		INSERT INTO handoffs (id, conversation_id, type, status, priority,
			from_team_id, from_user_id, to_team_id, to_user_id,
			reason, ai_intent, ai_urgency, ai_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var aiIntent, aiUrgency sql.NullString
	var aiConfidence sql.NullInt64
	if h.Classification != nil {
		aiIntent = sql.NullString{String: h.Classification.Intent, Valid: true}
		aiUrgency = sql.NullString{String: h.Classification.Urgency, Valid: true}
		aiConfidence = sql.NullInt64{Int64: int64(h.Classification.Confidence), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.ConversationID, h.Type, h.Status, h.Priority,
		nullID(h.FromTeamID), nullID(h.FromUserID), nullID(h.ToTeamID), nullID(h.ToUserID),
		h.Reason, aiIntent, aiUrgency, aiConfidence, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return wrapErr("error creating handoff", err)
	}
	return nil
}

func (s *PostgresStorage) GetHandoff(ctx context.Context, id string) (*models.Handoff, error) {
	query := `SELECT ` + handoffColumns + ` FROM handoffs WHERE id = $1`

	h, err := scanHandoff(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error querying handoff", err)
	}
	return h, nil
}

func (s *PostgresStorage) UpdateHandoffStatus(ctx context.Context, id string, from, to models.HandoffStatus, update HandoffUpdate) (*models.Handoff, error) {
	query := `
		UPDATE handoffs
		SET status = $1,
		    reject_reason = COALESCE($2, reject_reason),
		    accepted_by_id = COALESCE($3, accepted_by_id),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING ` + handoffColumns

	var reason sql.NullString
	if update.RejectReason != nil {
		reason = sql.NullString{String: *update.RejectReason, Valid: true}
	}

	h, err := scanHandoff(s.db.QueryRowContext(ctx, query, to, reason, nullID(update.AcceptedByID), id, from))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetHandoff(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, wrapErr("error updating handoff status", err)
	}
	return h, nil
}

func (s *PostgresStorage) ListHandoffs(ctx context.Context, status models.HandoffStatus) ([]*models.Handoff, error) {
	query := `
		SELECT ` + handoffColumns + `
		FROM handoffs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, wrapErr("error querying handoffs", err)
	}
	defer rows.Close()

	var result []*models.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, wrapErr("error scanning handoff", err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) HandoffStats(ctx context.Context) (*models.HandoffStats, error) {
	query := `SELECT status, type, priority, COUNT(*) FROM handoffs GROUP BY status, type, priority`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("error querying handoff stats", err)
	}
	defer rows.Close()

	stats := &models.HandoffStats{
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for rows.Next() {
		var status, typ, priority string
		var count int
		if err := rows.Scan(&status, &typ, &priority, &count); err != nil {
			return nil, wrapErr("error scanning handoff stats", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[typ] += count
		stats.ByPriority[priority] += count
	}
	return stats, rows.Err()
}

func (s *PostgresStorage) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	query := `SELECT id, name, color, active FROM teams WHERE id = $1`

	team := &models.Team{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name, &team.Color, &team.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error querying team", err)
	}
	return team, nil
}

func (s *PostgresStorage) ListTeams(ctx context.Context, activeOnly bool) ([]*models.Team, error) {
	query := `SELECT id, name, color, active FROM teams WHERE (NOT $1 OR active) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, wrapErr("error querying teams", err)
	}
	defer rows.Close()

	var result []*models.Team
	for rows.Next() {
		team := &models.Team{}
		if err := rows.Scan(&team.ID, &team.Name, &team.Color, &team.Active); err != nil {
			return nil, wrapErr("error scanning team", err)
		}
		result = append(result, team)
	}
	return result, rows.Err()
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var teamID sql.NullInt64
	err := row.Scan(&user.ID, &user.Name, &user.Username, &user.Active, &user.Online, &teamID)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		user.TeamID = &teamID.Int64
	}
	return user, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, name, username, active, online, team_id FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("error querying user", err)
	}
	return user, nil
}

func (s *PostgresStorage) ListUsers(ctx context.Context, activeOnly bool) ([]*models.User, error) {
	query := `SELECT id, name, username, active, online, team_id FROM users WHERE (NOT $1 OR active) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, wrapErr("error querying users", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (s *PostgresStorage) TeamMembers(ctx context.Context, teamID int64, activeOnly bool) ([]*models.User, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	query := `SELECT id, name, username, active, online, team_id FROM users WHERE team_id = $1 AND (NOT $2 OR active) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, teamID, activeOnly)
	if err != nil {
		return nil, wrapErr("error querying team members", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*models.User, error) {
	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, wrapErr("error scanning user", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
