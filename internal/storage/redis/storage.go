package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/matchsync/internal/dependencies/clock"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/storage"
)

var errTxContention = errors.New("redis transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage interface.
// Rows are JSON values; read-modify-write operations run inside WATCH/MULTI
// transactions so concurrent writers never lose each other's updates.
type Storage struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
}

// New creates a new Redis storage instance
func New(cfg Config, clk clock.Clock) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, model.Transient(err)
	}

	return NewWithClient(client, cfg, clk), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, clk clock.Clock) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
		clock:  clk,
	}
}

// Client exposes the underlying connection so the change feed can share it
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

var _ storage.Storage = (*Storage)(nil)

// codec converts a row to and from its stored form
type codec[T any] struct {
	encode func(*T) ([]byte, error)
	decode func([]byte) (*T, error)
}

func jsonCodec[T any]() codec[T] {
	return codec[T]{
		encode: func(row *T) ([]byte, error) { return json.Marshal(row) },
		decode: func(data []byte) (*T, error) {
			var row T
			if err := json.Unmarshal(data, &row); err != nil {
				return nil, err
			}
			return &row, nil
		},
	}
}

var (
	matchCodec = codec[model.Match]{
		encode: model.MarshalStored,
		decode: model.UnmarshalStored,
	}
	playerCodec      = jsonCodec[model.MatchPlayer]()
	unitCodec        = jsonCodec[model.Unit]()
	participantCodec = jsonCodec[model.Participant]()
	spectatorCodec   = jsonCodec[model.Spectator]()
)

// mutateRow loads the row at key, applies fn and writes the row back if fn
// reports a change. The key is watched so a concurrent write forces a retry
// against the fresh value.
func mutateRow[T any](ctx context.Context, s *Storage, key string, c codec[T], notFound error, fn func(row *T) bool) (*T, bool, error) {
	var (
		result  *T
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		if err != nil {
			return model.Transient(err)
		}
		row, err := c.decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		result = row
		changed = fn(row)
		if !changed {
			return nil
		}
		out, err := c.encode(row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func getRow[T any](ctx context.Context, s *Storage, key string, c codec[T], notFound error) (*T, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, model.Transient(err)
	}
	row, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return row, nil
}

// txMatchExists checks the match inside a transaction that watches its key,
// so a concurrent DeleteMatch aborts the write instead of orphaning rows.
func txMatchExists(ctx context.Context, tx *redis.Tx, id model.MatchID) error {
	n, err := tx.Exists(ctx, matchKey(id)).Result()
	if err != nil {
		return model.Transient(err)
	}
	if n == 0 {
		return model.ErrMatchNotFound
	}
	return nil
}

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, p *model.Participant) error {
	data, err := participantCodec.encode(p)
	if err != nil {
		return err
	}
	return model.Transient(s.client.Set(ctx, participantKey(p.ID), data, s.cfg.ParticipantTTL).Err())
}

func (s *Storage) GetParticipant(ctx context.Context, id model.ParticipantID) (*model.Participant, error) {
	return getRow(ctx, s, participantKey(id), participantCodec, model.ErrParticipantNotFound)
}

// Match operations

func (s *Storage) CreateMatch(ctx context.Context, m *model.Match) error {
	now := s.clock.Now()
	m.Version = 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	data, err := matchCodec.encode(m)
	if err != nil {
		return err
	}
	return model.Transient(s.client.Set(ctx, matchKey(m.ID), data, s.cfg.MatchTTL).Err())
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	return getRow(ctx, s, matchKey(id), matchCodec, model.ErrMatchNotFound)
}

func (s *Storage) UpdateMatchTimer(ctx context.Context, id model.MatchID, timer model.Timer) (*model.Match, error) {
	m, _, err := mutateRow(ctx, s, matchKey(id), matchCodec, model.ErrMatchNotFound, func(m *model.Match) bool {
		m.Timer = timer
		s.touch(&m.Version, &m.UpdatedAt)
		return true
	})
	return m, err
}

func (s *Storage) UpdateMatchStatus(ctx context.Context, id model.MatchID, status model.MatchStatus) (*model.Match, error) {
	m, _, err := mutateRow(ctx, s, matchKey(id), matchCodec, model.ErrMatchNotFound, func(m *model.Match) bool {
		m.Status = status
		s.touch(&m.Version, &m.UpdatedAt)
		return true
	})
	return m, err
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	indexKey := unitsForMatchIndexKey(id)
	txf := func(tx *redis.Tx) error {
		if err := txMatchExists(ctx, tx, id); err != nil {
			return err
		}
		unitIDs, err := tx.SMembers(ctx, indexKey).Result()
		if err != nil {
			return model.Transient(err)
		}
		keys := []string{
			matchKey(id),
			playerKey(id, model.SlotOne),
			playerKey(id, model.SlotTwo),
			indexKey,
			spectatorsKey(id),
		}
		for _, unitID := range unitIDs {
			keys = append(keys, unitKey(model.UnitID(unitID)))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	}
	// A unit saved while the listing was taken changes the index and forces a retry
	return s.watch(ctx, txf, matchKey(id), indexKey)
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, p *model.MatchPlayer) (*model.MatchPlayer, error) {
	key := playerKey(p.MatchID, p.Slot)
	var saved *model.MatchPlayer
	txf := func(tx *redis.Tx) error {
		if err := txMatchExists(ctx, tx, p.MatchID); err != nil {
			return err
		}
		row := *p
		existing, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			row.Version = 1
			row.CreatedAt = s.clock.Now()
		case err != nil:
			return model.Transient(err)
		default:
			prev, err := playerCodec.decode(existing)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", key, err)
			}
			row.Version = prev.Version + 1
			row.CreatedAt = prev.CreatedAt
		}
		row.UpdatedAt = s.clock.Now()
		data, err := playerCodec.encode(&row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.MatchTTL)
			return nil
		})
		saved = &row
		return err
	}
	if err := s.watch(ctx, txf, matchKey(p.MatchID), key); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Storage) ClaimSlot(ctx context.Context, matchID model.MatchID, slot model.Slot, participantID model.ParticipantID, name string) (*model.MatchPlayer, bool, error) {
	key := playerKey(matchID, slot)
	otherKey := playerKey(matchID, slot.Opponent())
	var (
		result  *model.MatchPlayer
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		changed = false
		if err := txMatchExists(ctx, tx, matchID); err != nil {
			return err
		}
		other, err := txPlayer(ctx, tx, otherKey)
		if err != nil {
			return err
		}
		if other != nil && other.ParticipantID == participantID {
			return model.ErrAlreadySeated
		}
		row, err := txPlayer(ctx, tx, key)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		var ttl time.Duration = redis.KeepTTL
		switch {
		case row == nil:
			row = &model.MatchPlayer{MatchID: matchID, Slot: slot, CreatedAt: now}
			ttl = s.cfg.MatchTTL
		case row.ParticipantID == participantID:
			result = row
			return nil
		case row.Seated():
			return model.ErrSlotTaken
		}
		row.ParticipantID = participantID
		row.PlayerName = name
		row.Version++
		row.UpdatedAt = now

		data, err := playerCodec.encode(row)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result, changed = row, true
		return nil
	}
	if err := s.watch(ctx, txf, matchKey(matchID), key, otherKey); err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func txPlayer(ctx context.Context, tx *redis.Tx, key string) (*model.MatchPlayer, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Transient(err)
	}
	return playerCodec.decode(data)
}

func (s *Storage) GetPlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) (*model.MatchPlayer, error) {
	return getRow(ctx, s, playerKey(matchID, slot), playerCodec, model.ErrSlotNotFound)
}

func (s *Storage) ListPlayers(ctx context.Context, matchID model.MatchID) ([]*model.MatchPlayer, error) {
	values, err := s.client.MGet(ctx, playerKey(matchID, model.SlotOne), playerKey(matchID, model.SlotTwo)).Result()
	if err != nil {
		return nil, model.Transient(err)
	}
	return decodeAll(values, playerCodec)
}

func (s *Storage) DeletePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot) error {
	return model.Transient(s.client.Del(ctx, playerKey(matchID, slot)).Err())
}

func (s *Storage) AdjustVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, delta int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, matchID, slot, func(p *model.MatchPlayer) {
		p.VictoryPoints = max(0, p.VictoryPoints+delta)
	})
}

func (s *Storage) SetVictoryPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, matchID, slot, func(p *model.MatchPlayer) { p.VictoryPoints = max(0, points) })
}

func (s *Storage) SetTotalPoints(ctx context.Context, matchID model.MatchID, slot model.Slot, points int) (*model.MatchPlayer, error) {
	return s.updatePlayer(ctx, matchID, slot, func(p *model.MatchPlayer) { p.TotalPoints = max(0, points) })
}

func (s *Storage) updatePlayer(ctx context.Context, matchID model.MatchID, slot model.Slot, mutate func(*model.MatchPlayer)) (*model.MatchPlayer, error) {
	p, _, err := mutateRow(ctx, s, playerKey(matchID, slot), playerCodec, model.ErrSlotNotFound, func(p *model.MatchPlayer) bool {
		mutate(p)
		s.touch(&p.Version, &p.UpdatedAt)
		return true
	})
	return p, err
}

// Unit operations

func (s *Storage) SaveUnit(ctx context.Context, u *model.Unit) (*model.Unit, error) {
	return s.writeUnit(ctx, u.MatchID, u.ID, func(prev *model.Unit) (*model.Unit, error) {
		row := *u
		now := s.clock.Now()
		if prev == nil {
			row.Version = 1
			row.CreatedAt = now
		} else {
			row.Version = prev.Version + 1
			row.CreatedAt = prev.CreatedAt
		}
		row.UpdatedAt = now
		return &row, nil
	})
}

// writeUnit stores the row next builds from the current one. The match, its
// unit index and every unit row of the match are watched, so the attachment
// check and the write see the same graph and any concurrent unit write
// forces a retry.
func (s *Storage) writeUnit(ctx context.Context, matchID model.MatchID, id model.UnitID, next func(prev *model.Unit) (*model.Unit, error)) (*model.Unit, error) {
	indexKey := unitsForMatchIndexKey(matchID)
	var saved *model.Unit
	txf := func(tx *redis.Tx) error {
		if err := txMatchExists(ctx, tx, matchID); err != nil {
			return err
		}
		ids, err := tx.SMembers(ctx, indexKey).Result()
		if err != nil {
			return model.Transient(err)
		}
		keys := []string{unitKey(id)}
		for _, member := range ids {
			if model.UnitID(member) != id {
				keys = append(keys, unitKey(model.UnitID(member)))
			}
		}
		if err := tx.Watch(ctx, keys...).Err(); err != nil {
			return model.Transient(err)
		}
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return model.Transient(err)
		}
		rows, err := decodeAll(values, unitCodec)
		if err != nil {
			return err
		}

		var prev *model.Unit
		units := make([]*model.Unit, 0, len(rows))
		for _, u := range rows {
			if u.MatchID != matchID {
				continue
			}
			if u.ID == id {
				prev = u
			}
			units = append(units, u)
		}

		row, err := next(prev)
		if err != nil {
			return err
		}
		if err := storage.CheckAttachment(units, row); err != nil {
			return err
		}
		data, err := unitCodec.encode(row)
		if err != nil {
			return err
		}
		var ttl time.Duration = redis.KeepTTL
		if prev == nil {
			ttl = s.cfg.MatchTTL
		}
		// Save the row and its index entry together
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unitKey(id), data, ttl)
			pipe.SAdd(ctx, indexKey, string(id))
			pipe.Expire(ctx, indexKey, s.cfg.MatchTTL)
			return nil
		})
		if err != nil {
			return err
		}
		saved = row
		return nil
	}
	if err := s.watch(ctx, txf, matchKey(matchID), indexKey); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Storage) GetUnit(ctx context.Context, matchID model.MatchID, id model.UnitID) (*model.Unit, error) {
	u, err := getRow(ctx, s, unitKey(id), unitCodec, model.ErrUnitNotFound)
	if err != nil {
		return nil, err
	}
	if u.MatchID != matchID {
		return nil, model.ErrUnitNotFound
	}
	return u, nil
}

func (s *Storage) ListUnits(ctx context.Context, matchID model.MatchID) ([]*model.Unit, error) {
	ids, err := s.client.SMembers(ctx, unitsForMatchIndexKey(matchID)).Result()
	if err != nil {
		return nil, model.Transient(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = unitKey(model.UnitID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, model.Transient(err)
	}
	units, err := decodeAll(values, unitCodec)
	if err != nil {
		return nil, err
	}
	storage.SortUnits(units)
	return units, nil
}

func (s *Storage) SetKO(ctx context.Context, matchID model.MatchID, id model.UnitID, ko bool) (*model.Unit, bool, error) {
	u, changed, err := mutateRow(ctx, s, unitKey(id), unitCodec, model.ErrUnitNotFound, func(u *model.Unit) bool {
		if u.MatchID != matchID || u.IsKO == ko {
			return false
		}
		u.IsKO = ko
		s.touch(&u.Version, &u.UpdatedAt)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if u.MatchID != matchID {
		return nil, false, model.ErrUnitNotFound
	}
	return u, changed, nil
}

func (s *Storage) SetAttachment(ctx context.Context, matchID model.MatchID, id model.UnitID, target *model.UnitID, kind string) (*model.Unit, error) {
	u, err := s.writeUnit(ctx, matchID, id, func(prev *model.Unit) (*model.Unit, error) {
		if prev == nil {
			return nil, model.ErrUnitNotFound
		}
		row := *prev
		if target == nil {
			row.AttachedTo = nil
			row.AttachmentKind = ""
		} else {
			t := *target
			row.AttachedTo = &t
			row.AttachmentKind = kind
		}
		s.touch(&row.Version, &row.UpdatedAt)
		return &row, nil
	})
	if errors.Is(err, model.ErrMatchNotFound) {
		return nil, model.ErrUnitNotFound
	}
	return u, err
}

func (s *Storage) DetachDependents(ctx context.Context, matchID model.MatchID, carrier model.UnitID) ([]*model.Unit, error) {
	units, err := s.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var detached []*model.Unit
	for _, candidate := range units {
		if candidate.AttachedTo == nil || *candidate.AttachedTo != carrier {
			continue
		}
		// Re-check under WATCH: the unit may have been re-attached since the listing
		u, changed, err := mutateRow(ctx, s, unitKey(candidate.ID), unitCodec, model.ErrUnitNotFound, func(u *model.Unit) bool {
			if u.AttachedTo == nil || *u.AttachedTo != carrier {
				return false
			}
			u.AttachedTo = nil
			u.AttachmentKind = ""
			s.touch(&u.Version, &u.UpdatedAt)
			return true
		})
		if errors.Is(err, model.ErrUnitNotFound) {
			continue
		}
		if err != nil {
			return detached, err
		}
		if changed {
			detached = append(detached, u)
		}
	}
	return detached, nil
}

func (s *Storage) DeleteUnitsForSlot(ctx context.Context, matchID model.MatchID, slot model.Slot) ([]*model.Unit, error) {
	units, err := s.ListUnits(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var deleted []*model.Unit
	pipe := s.client.Pipeline()
	for _, u := range units {
		if u.Slot != slot {
			continue
		}
		pipe.Del(ctx, unitKey(u.ID))
		pipe.SRem(ctx, unitsForMatchIndexKey(matchID), string(u.ID))
		deleted = append(deleted, u)
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, model.Transient(err)
	}
	return deleted, nil
}

// Spectator operations

func (s *Storage) AddSpectator(ctx context.Context, sp *model.Spectator) (bool, error) {
	row := *sp
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.clock.Now()
	}
	data, err := spectatorCodec.encode(&row)
	if err != nil {
		return false, err
	}
	key := spectatorsKey(sp.MatchID)
	var created bool
	txf := func(tx *redis.Tx) error {
		if err := txMatchExists(ctx, tx, sp.MatchID); err != nil {
			return err
		}
		var setNX *redis.BoolCmd
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			setNX = pipe.HSetNX(ctx, key, string(sp.ParticipantID), data)
			pipe.Expire(ctx, key, s.cfg.MatchTTL)
			return nil
		})
		if err != nil {
			return err
		}
		created = setNX.Val()
		return nil
	}
	if err := s.watch(ctx, txf, matchKey(sp.MatchID)); err != nil {
		return false, err
	}
	return created, nil
}

func (s *Storage) ListSpectators(ctx context.Context, matchID model.MatchID) ([]*model.Spectator, error) {
	values, err := s.client.HVals(ctx, spectatorsKey(matchID)).Result()
	if err != nil {
		return nil, model.Transient(err)
	}
	spectators := make([]*model.Spectator, 0, len(values))
	for _, v := range values {
		sp, err := spectatorCodec.decode([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("failed to decode spectator: %w", err)
		}
		spectators = append(spectators, sp)
	}
	sort.Slice(spectators, func(i, j int) bool {
		if !spectators[i].CreatedAt.Equal(spectators[j].CreatedAt) {
			return spectators[i].CreatedAt.Before(spectators[j].CreatedAt)
		}
		return spectators[i].ParticipantID < spectators[j].ParticipantID
	})
	return spectators, nil
}

func (s *Storage) RemoveSpectator(ctx context.Context, matchID model.MatchID, id model.ParticipantID) error {
	return model.Transient(s.client.HDel(ctx, spectatorsKey(matchID), string(id)).Err())
}

// touch bumps a row's version and modification time
func (s *Storage) touch(version *int64, updatedAt *time.Time) {
	*version++
	*updatedAt = s.clock.Now()
}

func (s *Storage) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for range s.cfg.MaxTxRetries {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return model.Transient(errTxContention)
}

// decodeAll decodes MGET results, skipping keys that no longer exist
func decodeAll[T any](values []any, c codec[T]) ([]*T, error) {
	rows := make([]*T, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		row, err := c.decode([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
