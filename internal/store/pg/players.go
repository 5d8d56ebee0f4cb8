package pg

import (
	"context"

	"github.com/evecore/evecore/internal/domain"
)

type playerRepo struct{ q querier }

func (r *playerRepo) Create(ctx context.Context, p *domain.Player) error {
	const q = `
		INSERT INTO players (name, status, roles, password_hash, login_count, last_update, invalid_token_mail_sent)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		RETURNING id`
	err := r.q.QueryRow(ctx, q,
		p.Name, string(p.Status), p.Roles, p.PasswordHash, p.LoginCount, p.InvalidTokenMailSent,
	).Scan(&p.ID)
	return mapErr(err)
}

func (r *playerRepo) Get(ctx context.Context, id int64) (*domain.Player, error) {
	const q = `
		SELECT id, name, status, roles, password_hash, login_count, last_update, invalid_token_mail_sent
		FROM players WHERE id = $1`
	return scanPlayer(r.q.QueryRow(ctx, q, id))
}

func (r *playerRepo) FindByName(ctx context.Context, name string) (*domain.Player, error) {
	const q = `
		SELECT id, name, status, roles, password_hash, login_count, last_update, invalid_token_mail_sent
		FROM players WHERE name = $1
		ORDER BY id LIMIT 1`
	return scanPlayer(r.q.QueryRow(ctx, q, name))
}

func (r *playerRepo) Update(ctx context.Context, p *domain.Player) error {
	const q = `
		UPDATE players
		SET name = $2, status = $3, roles = $4, password_hash = $5,
		    login_count = $6, last_update = $7, invalid_token_mail_sent = $8
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q,
		p.ID, p.Name, string(p.Status), p.Roles, p.PasswordHash,
		p.LoginCount, p.LastUpdate, p.InvalidTokenMailSent)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *playerRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM players WHERE id = $1`, id)
	return mapErr(err)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanPlayer(row rowScanner) (*domain.Player, error) {
	var p domain.Player
	var status string
	err := row.Scan(&p.ID, &p.Name, &status, &p.Roles, &p.PasswordHash,
		&p.LoginCount, &p.LastUpdate, &p.InvalidTokenMailSent)
	if err != nil {
		return nil, mapErr(err)
	}
	p.Status = domain.PlayerStatus(status)
	return &p, nil
}
