package pg

import (
	"context"

	"github.com/evecore/evecore/internal/domain"
)

type removedRepo struct{ q querier }

func (r *removedRepo) Create(ctx context.Context, rc *domain.RemovedCharacter) error {
	const q = `
		INSERT INTO removed_characters
			(id, character_id, character_name, old_player_id, new_player_id, reason, removed_at, deleted_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, q,
		rc.ID, rc.CharacterID, rc.CharacterName, rc.OldPlayerID, rc.NewPlayerID,
		rc.Reason, rc.RemovedAt, rc.DeletedByID)
	return mapErr(err)
}

func (r *removedRepo) ListByOldPlayer(ctx context.Context, playerID int64) ([]*domain.RemovedCharacter, error) {
	const q = `
		SELECT id, character_id, character_name, old_player_id, new_player_id, reason, removed_at, deleted_by_id
		FROM removed_characters WHERE old_player_id = $1 ORDER BY removed_at`
	rows, err := r.q.Query(ctx, q, playerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.RemovedCharacter
	for rows.Next() {
		var rc domain.RemovedCharacter
		if err := rows.Scan(&rc.ID, &rc.CharacterID, &rc.CharacterName, &rc.OldPlayerID,
			&rc.NewPlayerID, &rc.Reason, &rc.RemovedAt, &rc.DeletedByID); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &rc)
	}
	return out, rows.Err()
}

type corpRepo struct{ q querier }

func (r *corpRepo) Get(ctx context.Context, id int64) (*domain.Corporation, error) {
	const q = `SELECT id, name, ticker, alliance_id, group_ids FROM corporations WHERE id = $1`
	var c domain.Corporation
	err := r.q.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.Ticker, &c.AllianceID, &c.GroupIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *corpRepo) Upsert(ctx context.Context, c *domain.Corporation) error {
	const q = `
		INSERT INTO corporations (id, name, ticker, alliance_id, group_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, ticker = EXCLUDED.ticker,
		              alliance_id = EXCLUDED.alliance_id, group_ids = EXCLUDED.group_ids`
	_, err := r.q.Exec(ctx, q, c.ID, c.Name, c.Ticker, c.AllianceID, c.GroupIDs)
	return mapErr(err)
}

func (r *corpRepo) ListWithGroups(ctx context.Context) ([]*domain.Corporation, error) {
	const q = `
		SELECT id, name, ticker, alliance_id, group_ids
		FROM corporations WHERE cardinality(group_ids) > 0 ORDER BY id`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.Corporation
	for rows.Next() {
		var c domain.Corporation
		if err := rows.Scan(&c.ID, &c.Name, &c.Ticker, &c.AllianceID, &c.GroupIDs); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

type allianceRepo struct{ q querier }

func (r *allianceRepo) Get(ctx context.Context, id int64) (*domain.Alliance, error) {
	const q = `SELECT id, name, ticker, group_ids FROM alliances WHERE id = $1`
	var a domain.Alliance
	err := r.q.QueryRow(ctx, q, id).Scan(&a.ID, &a.Name, &a.Ticker, &a.GroupIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *allianceRepo) Upsert(ctx context.Context, a *domain.Alliance) error {
	const q = `
		INSERT INTO alliances (id, name, ticker, group_ids)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, ticker = EXCLUDED.ticker,
		              group_ids = EXCLUDED.group_ids`
	_, err := r.q.Exec(ctx, q, a.ID, a.Name, a.Ticker, a.GroupIDs)
	return mapErr(err)
}

func (r *allianceRepo) ListWithGroups(ctx context.Context) ([]*domain.Alliance, error) {
	const q = `
		SELECT id, name, ticker, group_ids
		FROM alliances WHERE cardinality(group_ids) > 0 ORDER BY id`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.Alliance
	for rows.Next() {
		var a domain.Alliance
		if err := rows.Scan(&a.ID, &a.Name, &a.Ticker, &a.GroupIDs); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

type settingsRepo struct{ q querier }

func (r *settingsRepo) Get(ctx context.Context, name string) (string, error) {
	const q = `SELECT value FROM system_settings WHERE name = $1`
	var v string
	err := r.q.QueryRow(ctx, q, name).Scan(&v)
	if err != nil {
		if mapErr(err) == domain.ErrNotFound {
			return "", nil
		}
		return "", mapErr(err)
	}
	return v, nil
}

func (r *settingsRepo) Set(ctx context.Context, name, value string) error {
	const q = `
		INSERT INTO system_settings (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.q.Exec(ctx, q, name, value)
	return mapErr(err)
}
