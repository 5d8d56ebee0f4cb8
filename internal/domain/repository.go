package domain

import "context"

// PlayerRepository persists player accounts.
type PlayerRepository interface {
	Create(ctx context.Context, p *Player) error // assigns p.ID
	Get(ctx context.Context, id int64) (*Player, error)
	FindByName(ctx context.Context, name string) (*Player, error)
	Update(ctx context.Context, p *Player) error
	Delete(ctx context.Context, id int64) error
}

// CharacterRepository persists characters. Create fails with ErrDuplicate
// when the character id already exists.
type CharacterRepository interface {
	Create(ctx context.Context, c *Character) error
	Get(ctx context.Context, id int64) (*Character, error)
	Update(ctx context.Context, c *Character) error
	Delete(ctx context.Context, id int64) error
	ListByPlayer(ctx context.Context, playerID int64) ([]*Character, error)
}

// EsiTokenRepository persists per-(character, variant) token pairs.
type EsiTokenRepository interface {
	Get(ctx context.Context, characterID int64, eveLogin string) (*EsiToken, error)
	Upsert(ctx context.Context, t *EsiToken) error
	Delete(ctx context.Context, characterID int64, eveLogin string) error
	ListByCharacter(ctx context.Context, characterID int64) ([]*EsiToken, error)
	// ListByPlayer returns all tokens held by any character of the player.
	ListByPlayer(ctx context.Context, playerID int64) ([]*EsiToken, error)
}

// EveLoginRepository persists custom login-variant records.
type EveLoginRepository interface {
	Get(ctx context.Context, name string) (*EveLogin, error)
	List(ctx context.Context) ([]*EveLogin, error)
	Create(ctx context.Context, l *EveLogin) error
	Delete(ctx context.Context, name string) error
}

// GroupRepository persists groups and the player↔group membership relation.
type GroupRepository interface {
	Create(ctx context.Context, g *Group) error // assigns g.ID
	Get(ctx context.Context, id int64) (*Group, error)
	GetByName(ctx context.Context, name string) (*Group, error)
	Update(ctx context.Context, g *Group) error
	List(ctx context.Context) ([]*Group, error)
	ListDefault(ctx context.Context) ([]*Group, error)

	ListByPlayer(ctx context.Context, playerID int64) ([]*Group, error)
	AddMember(ctx context.Context, groupID, playerID int64) error
	RemoveMember(ctx context.Context, groupID, playerID int64) error
}

// GroupApplicationRepository persists group applications.
type GroupApplicationRepository interface {
	Find(ctx context.Context, playerID, groupID int64) (*GroupApplication, error)
	ListByPlayer(ctx context.Context, playerID int64) ([]*GroupApplication, error)
	Save(ctx context.Context, a *GroupApplication) error // insert or replace
	Delete(ctx context.Context, playerID, groupID int64) error
}

// RoleRepository reads role definitions.
type RoleRepository interface {
	Get(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Create(ctx context.Context, r *Role) error
}

// RemovedCharacterRepository appends provenance rows.
type RemovedCharacterRepository interface {
	Create(ctx context.Context, rc *RemovedCharacter) error
	ListByOldPlayer(ctx context.Context, playerID int64) ([]*RemovedCharacter, error)
}

// CorporationRepository reads corporation records and their group mapping.
type CorporationRepository interface {
	Get(ctx context.Context, id int64) (*Corporation, error)
	Upsert(ctx context.Context, c *Corporation) error
	ListWithGroups(ctx context.Context) ([]*Corporation, error)
}

// AllianceRepository reads alliance records and their group mapping.
type AllianceRepository interface {
	Get(ctx context.Context, id int64) (*Alliance, error)
	Upsert(ctx context.Context, a *Alliance) error
	ListWithGroups(ctx context.Context) ([]*Alliance, error)
}

// SettingsRepository is the system key/value configuration.
// Get returns "" (no error) for unset keys.
type SettingsRepository interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Store aggregates the repositories and the transaction runner.
type Store interface {
	Players() PlayerRepository
	Characters() CharacterRepository
	EsiTokens() EsiTokenRepository
	EveLogins() EveLoginRepository
	Groups() GroupRepository
	GroupApplications() GroupApplicationRepository
	Roles() RoleRepository
	RemovedCharacters() RemovedCharacterRepository
	Corporations() CorporationRepository
	Alliances() AllianceRepository
	Settings() SettingsRepository

	// WithTx runs fn inside one transaction; fn receives a Store bound to
	// it. Any error rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
