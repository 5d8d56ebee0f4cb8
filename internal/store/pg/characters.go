package pg

import (
	"context"

	"github.com/evecore/evecore/internal/domain"
)

type characterRepo struct{ q querier }

const characterCols = `id, player_id, name, main, owner_hash, created, last_login,
	valid_token, valid_token_time, corporation_id`

func (r *characterRepo) Create(ctx context.Context, c *domain.Character) error {
	const q = `
		INSERT INTO characters (` + characterCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, q,
		c.ID, c.PlayerID, c.Name, c.Main, c.OwnerHash, c.Created, c.LastLogin,
		c.ValidToken, c.ValidTokenTime, c.CorporationID)
	return mapErr(err)
}

func (r *characterRepo) Get(ctx context.Context, id int64) (*domain.Character, error) {
	const q = `SELECT ` + characterCols + ` FROM characters WHERE id = $1`
	return scanCharacter(r.q.QueryRow(ctx, q, id))
}

func (r *characterRepo) Update(ctx context.Context, c *domain.Character) error {
	const q = `
		UPDATE characters
		SET player_id = $2, name = $3, main = $4, owner_hash = $5, last_login = $6,
		    valid_token = $7, valid_token_time = $8, corporation_id = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q,
		c.ID, c.PlayerID, c.Name, c.Main, c.OwnerHash, c.LastLogin,
		c.ValidToken, c.ValidTokenTime, c.CorporationID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *characterRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM characters WHERE id = $1`, id)
	return mapErr(err)
}

func (r *characterRepo) ListByPlayer(ctx context.Context, playerID int64) ([]*domain.Character, error) {
	const q = `SELECT ` + characterCols + ` FROM characters WHERE player_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, q, playerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCharacter(row rowScanner) (*domain.Character, error) {
	var c domain.Character
	err := row.Scan(&c.ID, &c.PlayerID, &c.Name, &c.Main, &c.OwnerHash, &c.Created,
		&c.LastLogin, &c.ValidToken, &c.ValidTokenTime, &c.CorporationID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

type tokenRepo struct{ q querier }

const tokenCols = `character_id, eve_login, access_token, refresh_token, expires_at,
	scopes, valid, valid_changed, has_roles`

func (r *tokenRepo) Get(ctx context.Context, characterID int64, eveLogin string) (*domain.EsiToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM esi_tokens WHERE character_id = $1 AND eve_login = $2`
	return scanToken(r.q.QueryRow(ctx, q, characterID, eveLogin))
}

func (r *tokenRepo) Upsert(ctx context.Context, t *domain.EsiToken) error {
	const q = `
		INSERT INTO esi_tokens (` + tokenCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (character_id, eve_login)
		DO UPDATE SET access_token = EXCLUDED.access_token,
		              refresh_token = EXCLUDED.refresh_token,
		              expires_at = EXCLUDED.expires_at,
		              scopes = EXCLUDED.scopes,
		              valid = EXCLUDED.valid,
		              valid_changed = EXCLUDED.valid_changed,
		              has_roles = EXCLUDED.has_roles`
	_, err := r.q.Exec(ctx, q,
		t.CharacterID, t.EveLogin, t.AccessToken, t.RefreshToken, t.ExpiresAt,
		t.Scopes, t.Valid, t.ValidChanged, t.HasRoles)
	return mapErr(err)
}

func (r *tokenRepo) Delete(ctx context.Context, characterID int64, eveLogin string) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM esi_tokens WHERE character_id = $1 AND eve_login = $2`,
		characterID, eveLogin)
	return mapErr(err)
}

func (r *tokenRepo) ListByCharacter(ctx context.Context, characterID int64) ([]*domain.EsiToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM esi_tokens WHERE character_id = $1 ORDER BY eve_login`
	return r.list(ctx, q, characterID)
}

func (r *tokenRepo) ListByPlayer(ctx context.Context, playerID int64) ([]*domain.EsiToken, error) {
	const q = `
		SELECT t.character_id, t.eve_login, t.access_token, t.refresh_token, t.expires_at,
		       t.scopes, t.valid, t.valid_changed, t.has_roles
		FROM esi_tokens t
		JOIN characters c ON c.id = t.character_id
		WHERE c.player_id = $1
		ORDER BY t.character_id, t.eve_login`
	return r.list(ctx, q, playerID)
}

func (r *tokenRepo) list(ctx context.Context, q string, args ...any) ([]*domain.EsiToken, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.EsiToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanToken(row rowScanner) (*domain.EsiToken, error) {
	var t domain.EsiToken
	err := row.Scan(&t.CharacterID, &t.EveLogin, &t.AccessToken, &t.RefreshToken,
		&t.ExpiresAt, &t.Scopes, &t.Valid, &t.ValidChanged, &t.HasRoles)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

type eveLoginRepo struct{ q querier }

func (r *eveLoginRepo) Get(ctx context.Context, name string) (*domain.EveLogin, error) {
	const q = `SELECT name, description, esi_scopes, eve_roles, roles FROM eve_logins WHERE name = $1`
	var l domain.EveLogin
	err := r.q.QueryRow(ctx, q, name).Scan(&l.Name, &l.Description, &l.EsiScopes, &l.EveRoles, &l.Roles)
	if err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (r *eveLoginRepo) List(ctx context.Context) ([]*domain.EveLogin, error) {
	const q = `SELECT name, description, esi_scopes, eve_roles, roles FROM eve_logins ORDER BY name`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.EveLogin
	for rows.Next() {
		var l domain.EveLogin
		if err := rows.Scan(&l.Name, &l.Description, &l.EsiScopes, &l.EveRoles, &l.Roles); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (r *eveLoginRepo) Create(ctx context.Context, l *domain.EveLogin) error {
	const q = `
		INSERT INTO eve_logins (name, description, esi_scopes, eve_roles, roles)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.Exec(ctx, q, l.Name, l.Description, l.EsiScopes, l.EveRoles, l.Roles)
	return mapErr(err)
}

func (r *eveLoginRepo) Delete(ctx context.Context, name string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM eve_logins WHERE name = $1`, name)
	return mapErr(err)
}
