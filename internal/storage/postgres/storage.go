package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

const (
	matchColumns = `id, name, host_id, is_public, secret_hash, status,
		timer_state, timer_remaining, timer_checkpoint_at, timer_duration,
		version, created_at, updated_at`
	playerColumns = `match_id, player_slot, participant_id, player_name,
		victory_points, total_points, version, created_at, updated_at`
	unitColumns = `id, match_id, player_slot, collection, number, name, points,
		is_ko, is_sideline, attached_to_id, attachment_type, version, created_at, updated_at`
)

// Postgres error codes the store translates into domain errors
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Storage is a Postgres implementation of the storage interface.
// Read-modify-write operations are single conditional statements, so the
// database serialises concurrent writers on the row lock. Unit writes that
// can change the attachment graph also hold the match row lock while they
// check it.
type Storage struct {
	db    *sql.DB
	clock clock.Clock
}

// New creates a storage over an open database
func New(db *sql.DB, clk clock.Clock) *Storage {
	return &Storage{db: db, clock: clk}
}

// Close closes the database pool
func (s *Storage) Close() error {
	return s.db.Close()
}

var _ storage.Storage = (*Storage)(nil)

// classify wraps a driver error. Errors the server raised about the data are
// returned as they are; anything else means the database could not be reached.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return model.Transient(fmt.Errorf("failed to %s: %w", op, err))
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (*model.Match, error) {
	var (
		m          model.Match
		checkpoint sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Name, &m.HostID, &m.IsPublic, &m.SecretHash, &m.Status,
		&m.Timer.State, &m.Timer.RemainingSecs, &checkpoint, &m.Timer.DurationSeconds,
		&m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if checkpoint.Valid {
		t := checkpoint.Time.UTC()
		m.Timer.CheckpointAt = &t
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanPlayer(row scanner) (*model.MatchPlayer, error) {
	var p model.MatchPlayer
	err := row.Scan(&p.MatchID, &p.Slot, &p.ParticipantID, &p.PlayerName,
		&p.VictoryPoints, &p.TotalPoints, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanUnit(row scanner) (*model.Unit, error) {
	var (
		u          model.Unit
		attachedTo sql.NullString
	)
	err := row.Scan(&u.ID, &u.MatchID, &u.Slot, &u.Collection, &u.Number, &u.Name, &u.Points,
		&u.IsKO, &u.IsSideline, &attachedTo, &u.AttachmentKind, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if attachedTo.Valid {
		id := model.UnitID(attachedTo.String)
		u.AttachedTo = &id
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func nullableUnitID(id *model.UnitID) sql.NullString {
	if id == nil || *id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

// querier is satisfied by the pool and by a transaction
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryUnits(ctx context.Context, db querier, op, query string, args ...any) ([]*model.Unit, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var units []*model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	storage.SortUnits(units)
	return units, nil
}

// inTx runs fn in a transaction and commits only if fn succeeds
func (s *Storage) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

// lockUnits takes the match row lock and returns the match's units as they
// stand under it. NO KEY UPDATE leaves foreign key checks from other writers
// to the match unblocked.
func lockUnits(ctx context.Context, tx *sql.Tx, op string, matchID model.MatchID) ([]*model.Unit, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM matches WHERE id = $1 FOR NO KEY UPDATE`, matchID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return queryUnits(ctx, tx, op, `SELECT `+unitColumns+` FROM match_units WHERE match_id = $1`, matchID)
}

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, p *model.Participant) error {
	query := `INSERT INTO participants (id, display_name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.DisplayName, p.CreatedAt)
	return classify("save participant", err)
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	var p model.Participant
	query := `SELECT id, display_name, created_at FROM participants WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrParticipantNotFound
	}
	if err != nil {
		return nil, classify("get participant", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, m *model.Match) error {
	now := s.clock.Now()
	m.Version = 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.Name, m.HostID, m.IsPublic, m.SecretHash, m.Status,
		m.Timer.State, m.Timer.RemainingSecs, m.Timer.CheckpointAt, m.Timer.DurationSeconds,
		m.Version, m.CreatedAt, m.UpdatedAt)
	return classify("insert match", err)
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	if err != nil {
		return nil, classify("get match", err)
	}
	return m, nil
}

func (s *Storage) UpdateMatchTimer(ctx context.Context, id model.MatchID, timer model.Timer) (*model.Match, error) {
	query := `UPDATE matches SET timer_state = $2, timer_remaining = $3, timer_checkpoint_at = $4,
		timer_duration = $5, version = version + 1, updated_at = $6
		WHERE id = $1 RETURNING ` + matchColumns
	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id, timer.State, max(0, timer.RemainingSecs),
		timer.CheckpointAt, timer.DurationSeconds, s.clock.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	if err != nil {
		return nil, classify("update match timer", err)
	}
	return m, nil
}

func (s *Storage) UpdateMatchStatus(ctx context.Context, id model.MatchID, status model.MatchStatus) (*model.Match, error) {
	query := `UPDATE matches SET status = $2, version = version + 1, updated_at = $3
		WHERE id = $1 RETURNING ` + matchColumns
	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id, status, s.clock.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	if err != nil {
		return nil, classify("update match status", err)
	}
	return m, nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	// Players, units and spectators go with the match via ON DELETE CASCADE
	result, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return classify("delete match", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify("delete match", err)
	}
	if affected == 0 {
		return model.ErrMatchNotFound
	}
	return nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, p *model.MatchPlayer) (*model.MatchPlayer, error) {
	now := s.clock.Now()
	query := `INSERT INTO match_players (` + playerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (match_id, player_slot) DO UPDATE SET
			participant_id = EXCLUDED.participant_id,
			player_name = EXCLUDED.player_name,
			victory_points = EXCLUDED.victory_points,
			total_points = EXCLUDED.total_points,
			version = match_players.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + playerColumns
	saved, err := scanPlayer(s.db.QueryRowContext(ctx, query, p.MatchID, p.Slot, p.ParticipantID, p.PlayerName,
		max(0, p.VictoryPoints), max(0, p.TotalPoints), now))
	if err != nil {
		switch pqCode(err) {
		case codeForeignKeyViolation:
			return nil, model.ErrMatchNotFound
		case codeUniqueViolation:
			return nil, model.ErrAlreadySeated
		}
		return nil, classify("save player", err)
	}
	return saved, nil
}

func (s *Storage) ClaimSlot(ctx context.Context, matchID model.MatchID, slot model.Slot, participantID model.ParticipantID, name string) (*model.MatchPlayer, bool, error) {
	now := s.clock.Now()
	query := `INSERT INTO match_players (` + playerColumns + `)
		VALUES ($1, $2, $3, $4, 0, 0, 1, $5, $5)
		ON CONFLICT (match_id, player_slot) DO UPDATE SET
			participant_id = EXCLUDED.participant_id,
			player_name = EXCLUDED.player_name,
			version = match_players.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE match_players.participant_id = ''
		RETURNING ` + playerColumns
	claimed, err := scanPlayer(s.db.QueryRowContext(ctx, query, matchID, slot, participantID, name, now))
	if err == nil {
		return claimed, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		switch pqCode(err) {
		case codeForeignKeyViolation:
			return nil, false, model.ErrMatchNotFound
		case codeUniqueViolation:
			return nil, false, model.ErrAlreadySeated
		}
		return nil, false, classify("claim slot", err)
	}

	// The row exists and is bound to someone
	existing, err := s.GetPlayer(ctx, matchID, slot)
	if err != nil {
		return nil, false, err
	}
	if existing.ParticipantID == participantID {
		return existing, false, nil
	}
	return nil, false, model.ErrSlotTaken
}

func (s *Storage) GetPlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error) {
	query := `SELECT ` + playerColumns + ` FROM match_players WHERE match_id = $1 AND player_slot = $2`
	p, err := scanPlayer(s.db.QueryRowContext(ctx, query, matchID, slot))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSlotNotFound
	}
	if err != nil {
		return nil, classify("get player", err)
	}
	return p, nil
}

func (s *Storage) ListPlayers(ctx context.Context, matchID model.MatchID) ([]*model.MatchPlayer, error) {
	query := `SELECT ` + playerColumns + ` FROM match_players WHERE match_id = $1 ORDER BY player_slot`
	rows, err := s.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, classify("list players", err)
	}
	defer rows.Close()

	var players []*model.MatchPlayer
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, classify("list players", err)
		}
		players = append(players, p)
	}
	return players, classify("list players", rows.Err())
}

func (s *Storage) DeletePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_players WHERE match_id = $1 AND player_slot = $2`, matchID, slot)
	return classify("delete player", err)
}

func (s *Storage) AdjustVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, delta int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, "adjust victory points", `victory_points = GREATEST(0, victory_points + $3)`, matchID, slot, delta)
}

func (s *Storage) SetVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, "set victory points", `victory_points = GREATEST(0, $3)`, matchID, slot, points)
}

func (s *Storage) SetTotalPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, "set total points", `total_points = GREATEST(0, $3)`, matchID, slot, points)
}

func (s *Storage) updatePlayer(ctx context.Context, op, assignment string, matchID model.MatchID, slot model.Slot, value int) (*model.MatchPlayer, error) {
	query := `UPDATE match_players SET ` + assignment + `, version = version + 1, updated_at = $4
		WHERE match_id = $1 AND player_slot = $2 RETURNING ` + playerColumns
	p, err := scanPlayer(s.db.QueryRowContext(ctx, query, matchID, slot, value, s.clock.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSlotNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return p, nil
}

// Unit operations

func (s *Storage) SaveUnit(ctx context.Context, u *model.Unit) (*model.Unit, error) {
	now := s.clock.Now()
	query := `INSERT INTO match_units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12)
		ON CONFLICT (id) DO UPDATE SET
			is_ko = EXCLUDED.is_ko,
			is_sideline = EXCLUDED.is_sideline,
			attached_to_id = EXCLUDED.attached_to_id,
			attachment_type = EXCLUDED.attachment_type,
			version = match_units.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + unitColumns

	var saved *model.Unit
	err := s.inTx(ctx, "save unit", func(tx *sql.Tx) error {
		units, err := lockUnits(ctx, tx, "save unit", u.MatchID)
		if err != nil {
			return err
		}
		if err := storage.CheckAttachment(units, u); err != nil {
			return err
		}
		saved, err = scanUnit(tx.QueryRowContext(ctx, query, u.ID, u.MatchID, u.Slot, u.Collection, u.Number,
			u.Name, u.Points, u.IsKO, u.IsSideline, nullableUnitID(u.AttachedTo), u.AttachmentKind, now))
		if err != nil {
			if pqCode(err) == codeForeignKeyViolation {
				if u.AttachedTo != nil {
					return model.ErrTargetMissing
				}
				return model.ErrMatchNotFound
			}
			return classify("save unit", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Storage) GetUnit(ctx context.Context, matchID model.MatchID, id model.UnitID) (*model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM match_units WHERE match_id = $1 AND id = $2`
	u, err := scanUnit(s.db.QueryRowContext(ctx, query, matchID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUnitNotFound
	}
	if err != nil {
		return nil, classify("get unit", err)
	}
	return u, nil
}

func (s *Storage) ListUnits(ctx context.Context, matchID model.MatchID) ([]*model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM match_units WHERE match_id = $1`
	return queryUnits(ctx, s.db, "list units", query, matchID)
}

func (s *Storage) SetKO(ctx context.Context, matchID model.MatchID, id model.UnitID, ko bool) (*model.Unit, bool, error) {
	// The is_ko guard makes this a compare-and-set: of two racing writers
	// only one sees a returned row.
	query := `UPDATE match_units SET is_ko = $3, version = version + 1, updated_at = $4
		WHERE match_id = $1 AND id = $2 AND is_ko <> $3 RETURNING ` + unitColumns
	u, err := scanUnit(s.db.QueryRowContext(ctx, query, matchID, id, ko, s.clock.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.GetUnit(ctx, matchID, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, classify("set unit ko", err)
	}
	return u, true, nil
}

func (s *Storage) SetAttachment(ctx context.Context, matchID model.MatchID, id model.UnitID, target *model.UnitID, kind string) (*model.Unit, error) {
	if target == nil {
		kind = ""
	}
	// A knockout can land after the listing since SetKO does not take the
	// match lock, so the update only moves a unit that is still active.
	query := `UPDATE match_units SET attached_to_id = $3, attachment_type = $4, version = version + 1, updated_at = $5
		WHERE match_id = $1 AND id = $2 AND (is_ko = FALSE OR attached_to_id IS NOT DISTINCT FROM $3)
		RETURNING ` + unitColumns

	var saved *model.Unit
	err := s.inTx(ctx, "set unit attachment", func(tx *sql.Tx) error {
		units, err := lockUnits(ctx, tx, "set unit attachment", matchID)
		if errors.Is(err, model.ErrMatchNotFound) {
			return model.ErrUnitNotFound
		}
		if err != nil {
			return err
		}

		var row *model.Unit
		for _, u := range units {
			if u.ID == id {
				next := *u
				row = &next
			}
		}
		if row == nil {
			return model.ErrUnitNotFound
		}
		row.AttachedTo = target
		row.AttachmentKind = kind
		if err := storage.CheckAttachment(units, row); err != nil {
			return err
		}

		saved, err = scanUnit(tx.QueryRowContext(ctx, query, matchID, id, nullableUnitID(target), kind, s.clock.Now()))
		if errors.Is(err, sql.ErrNoRows) {
			current, err := scanUnit(tx.QueryRowContext(ctx,
				`SELECT `+unitColumns+` FROM match_units WHERE match_id = $1 AND id = $2`, matchID, id))
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrUnitNotFound
			}
			if err != nil {
				return classify("set unit attachment", err)
			}
			if current.IsKO {
				return model.ErrUnitKnockedOut
			}
			return model.ErrUnitNotFound
		}
		if err != nil {
			if pqCode(err) == codeForeignKeyViolation {
				return model.ErrTargetMissing
			}
			return classify("set unit attachment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Storage) DetachDependents(ctx context.Context, matchID model.MatchID, carrier model.UnitID) ([]*model.Unit, error) {
	query := `UPDATE match_units SET attached_to_id = NULL, attachment_type = '', version = version + 1, updated_at = $3
		WHERE match_id = $1 AND attached_to_id = $2 RETURNING ` + unitColumns
	return queryUnits(ctx, s.db, "detach dependents", query, matchID, carrier, s.clock.Now())
}

func (s *Storage) DeleteUnitsForSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error) {
	query := `DELETE FROM match_units WHERE match_id = $1 AND player_slot = $2 RETURNING ` + unitColumns
	return queryUnits(ctx, s.db, "delete units", query, matchID, slot)
}

// Spectator operations

func (s *Storage) AddSpectator(ctx context.Context, sp *model.Spectator) (bool, error) {
	createdAt := sp.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	query := `INSERT INTO match_spectators (match_id, participant_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (match_id, participant_id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, query, sp.MatchID, sp.ParticipantID, createdAt)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return false, model.ErrMatchNotFound
		}
		return false, classify("add spectator", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, classify("add spectator", err)
	}
	return affected == 1, nil
}

func (s *Storage) ListSpectators(ctx context.Context, matchID model.MatchID) ([]*model.Spectator, error) {
	query := `SELECT match_id, participant_id, created_at FROM match_spectators
		WHERE match_id = $1 ORDER BY created_at, participant_id`
	rows, err := s.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, classify("list spectators", err)
	}
	defer rows.Close()

	var spectators []*model.Spectator
	for rows.Next() {
		var sp model.Spectator
		if err := rows.Scan(&sp.MatchID, &sp.ParticipantID, &sp.CreatedAt); err != nil {
			return nil, classify("list spectators", err)
		}
		sp.CreatedAt = sp.CreatedAt.UTC()
		spectators = append(spectators, &sp)
	}
	return spectators, classify("list spectators", rows.Err())
}

func (s *Storage) RemoveSpectator(ctx context.Context, matchID model.MatchID, id model.ParticipantID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_spectators WHERE match_id = $1 AND participant_id = $2`, matchID, id)
	return classify("remove spectator", err)
}
