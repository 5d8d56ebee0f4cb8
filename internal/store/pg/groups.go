package pg

import (
	"context"

	"github.com/evecore/evecore/internal/domain"
)

type groupRepo struct{ q querier }

const groupCols = `id, name, visibility, auto_accept, is_default, required_groups, forbidden_groups, managers`

func (r *groupRepo) Create(ctx context.Context, g *domain.Group) error {
	const q = `
		INSERT INTO groups (name, visibility, auto_accept, is_default, required_groups, forbidden_groups, managers)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.q.QueryRow(ctx, q,
		g.Name, string(g.Visibility), g.AutoAccept, g.IsDefault,
		g.RequiredGroups, g.ForbiddenGroups, g.Managers,
	).Scan(&g.ID)
	return mapErr(err)
}

func (r *groupRepo) Get(ctx context.Context, id int64) (*domain.Group, error) {
	const q = `SELECT ` + groupCols + ` FROM groups WHERE id = $1`
	return scanGroup(r.q.QueryRow(ctx, q, id))
}

func (r *groupRepo) GetByName(ctx context.Context, name string) (*domain.Group, error) {
	const q = `SELECT ` + groupCols + ` FROM groups WHERE name = $1`
	return scanGroup(r.q.QueryRow(ctx, q, name))
}

func (r *groupRepo) Update(ctx context.Context, g *domain.Group) error {
	const q = `
		UPDATE groups
		SET name = $2, visibility = $3, auto_accept = $4, is_default = $5,
		    required_groups = $6, forbidden_groups = $7, managers = $8
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q,
		g.ID, g.Name, string(g.Visibility), g.AutoAccept, g.IsDefault,
		g.RequiredGroups, g.ForbiddenGroups, g.Managers)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *groupRepo) List(ctx context.Context) ([]*domain.Group, error) {
	const q = `SELECT ` + groupCols + ` FROM groups ORDER BY id`
	return r.list(ctx, q)
}

func (r *groupRepo) ListDefault(ctx context.Context) ([]*domain.Group, error) {
	const q = `SELECT ` + groupCols + ` FROM groups WHERE is_default ORDER BY id`
	return r.list(ctx, q)
}

func (r *groupRepo) ListByPlayer(ctx context.Context, playerID int64) ([]*domain.Group, error) {
	const q = `
		SELECT g.id, g.name, g.visibility, g.auto_accept, g.is_default,
		       g.required_groups, g.forbidden_groups, g.managers
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.player_id = $1
		ORDER BY g.id`
	return r.list(ctx, q, playerID)
}

func (r *groupRepo) AddMember(ctx context.Context, groupID, playerID int64) error {
	const q = `
		INSERT INTO group_members (group_id, player_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := r.q.Exec(ctx, q, groupID, playerID)
	return mapErr(err)
}

func (r *groupRepo) RemoveMember(ctx context.Context, groupID, playerID int64) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND player_id = $2`,
		groupID, playerID)
	return mapErr(err)
}

func (r *groupRepo) list(ctx context.Context, q string, args ...any) ([]*domain.Group, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var g domain.Group
	var visibility string
	err := row.Scan(&g.ID, &g.Name, &visibility, &g.AutoAccept, &g.IsDefault,
		&g.RequiredGroups, &g.ForbiddenGroups, &g.Managers)
	if err != nil {
		return nil, mapErr(err)
	}
	g.Visibility = domain.GroupVisibility(visibility)
	return &g, nil
}

type appRepo struct{ q querier }

func (r *appRepo) Find(ctx context.Context, playerID, groupID int64) (*domain.GroupApplication, error) {
	const q = `
		SELECT id, player_id, group_id, status, created
		FROM group_applications WHERE player_id = $1 AND group_id = $2`
	var a domain.GroupApplication
	var status string
	err := r.q.QueryRow(ctx, q, playerID, groupID).
		Scan(&a.ID, &a.PlayerID, &a.GroupID, &status, &a.Created)
	if err != nil {
		return nil, mapErr(err)
	}
	a.Status = domain.ApplicationStatus(status)
	return &a, nil
}

func (r *appRepo) ListByPlayer(ctx context.Context, playerID int64) ([]*domain.GroupApplication, error) {
	const q = `
		SELECT id, player_id, group_id, status, created
		FROM group_applications WHERE player_id = $1 ORDER BY group_id`
	rows, err := r.q.Query(ctx, q, playerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.GroupApplication
	for rows.Next() {
		var a domain.GroupApplication
		var status string
		if err := rows.Scan(&a.ID, &a.PlayerID, &a.GroupID, &status, &a.Created); err != nil {
			return nil, mapErr(err)
		}
		a.Status = domain.ApplicationStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *appRepo) Save(ctx context.Context, a *domain.GroupApplication) error {
	const q = `
		INSERT INTO group_applications (player_id, group_id, status, created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id, group_id)
		DO UPDATE SET status = EXCLUDED.status, created = EXCLUDED.created
		RETURNING id`
	err := r.q.QueryRow(ctx, q, a.PlayerID, a.GroupID, string(a.Status), a.Created).Scan(&a.ID)
	return mapErr(err)
}

func (r *appRepo) Delete(ctx context.Context, playerID, groupID int64) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM group_applications WHERE player_id = $1 AND group_id = $2`,
		playerID, groupID)
	return mapErr(err)
}

type roleRepo struct{ q querier }

func (r *roleRepo) Get(ctx context.Context, name string) (*domain.Role, error) {
	const q = `SELECT name, required_groups FROM roles WHERE name = $1`
	var role domain.Role
	if err := r.q.QueryRow(ctx, q, name).Scan(&role.Name, &role.RequiredGroups); err != nil {
		return nil, mapErr(err)
	}
	return &role, nil
}

func (r *roleRepo) List(ctx context.Context) ([]*domain.Role, error) {
	const q = `SELECT name, required_groups FROM roles ORDER BY name`
	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.Name, &role.RequiredGroups); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &role)
	}
	return out, rows.Err()
}

func (r *roleRepo) Create(ctx context.Context, role *domain.Role) error {
	const q = `INSERT INTO roles (name, required_groups) VALUES ($1, $2)`
	_, err := r.q.Exec(ctx, q, role.Name, role.RequiredGroups)
	return mapErr(err)
}
