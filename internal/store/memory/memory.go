// Package memory is an in-process Store used by tests and local
// development. WithTx snapshots the whole dataset and restores it on
// error, so transactional call sites behave like they do against postgres.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/evecore/evecore/internal/domain"
)

type tokenKey struct {
	characterID int64
	eveLogin    string
}

type appKey struct {
	playerID int64
	groupID  int64
}

type dataset struct {
	nextPlayerID int64
	nextGroupID  int64

	players      map[int64]domain.Player
	characters   map[int64]domain.Character
	tokens       map[tokenKey]domain.EsiToken
	eveLogins    map[string]domain.EveLogin
	groups       map[int64]domain.Group
	members      map[int64]map[int64]struct{} // groupID -> playerIDs
	applications map[appKey]domain.GroupApplication
	roles        map[string]domain.Role
	removed      []domain.RemovedCharacter
	corporations map[int64]domain.Corporation
	alliances    map[int64]domain.Alliance
	settings     map[string]string
}

func newDataset() *dataset {
	return &dataset{
		nextPlayerID: 1,
		nextGroupID:  1,
		players:      map[int64]domain.Player{},
		characters:   map[int64]domain.Character{},
		tokens:       map[tokenKey]domain.EsiToken{},
		eveLogins:    map[string]domain.EveLogin{},
		groups:       map[int64]domain.Group{},
		members:      map[int64]map[int64]struct{}{},
		applications: map[appKey]domain.GroupApplication{},
		roles:        map[string]domain.Role{},
		corporations: map[int64]domain.Corporation{},
		alliances:    map[int64]domain.Alliance{},
		settings:     map[string]string{},
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		nextPlayerID: d.nextPlayerID,
		nextGroupID:  d.nextGroupID,
		players:      maps.Clone(d.players),
		characters:   maps.Clone(d.characters),
		tokens:       maps.Clone(d.tokens),
		eveLogins:    maps.Clone(d.eveLogins),
		groups:       maps.Clone(d.groups),
		members:      map[int64]map[int64]struct{}{},
		applications: maps.Clone(d.applications),
		roles:        maps.Clone(d.roles),
		removed:      append([]domain.RemovedCharacter(nil), d.removed...),
		corporations: maps.Clone(d.corporations),
		alliances:    maps.Clone(d.alliances),
		settings:     maps.Clone(d.settings),
	}
	for g, m := range d.members {
		c.members[g] = maps.Clone(m)
	}
	return c
}

// memStore gives repositories access to the dataset. The root store locks
// around every call; the tx-bound store holds the lock for its whole scope
// and uses no-op lockers.
type memStore struct {
	d      *dataset
	lock   func()
	unlock func()
}

func (s *memStore) Players() domain.PlayerRepository { return &playerRepo{s} }
func (s *memStore) Characters() domain.CharacterRepository { return &characterRepo{s} }
func (s *memStore) EsiTokens() domain.EsiTokenRepository { return &tokenRepo{s} }
func (s *memStore) EveLogins() domain.EveLoginRepository { return &eveLoginRepo{s} }
func (s *memStore) Groups() domain.GroupRepository { return &groupRepo{s} }
func (s *memStore) GroupApplications() domain.GroupApplicationRepository { return &appRepo{s} }
func (s *memStore) Roles() domain.RoleRepository { return &roleRepo{s} }
func (s *memStore) RemovedCharacters() domain.RemovedCharacterRepository { return &removedRepo{s} }
func (s *memStore) Corporations() domain.CorporationRepository { return &corpRepo{s} }
func (s *memStore) Alliances() domain.AllianceRepository { return &allianceRepo{s} }
func (s *memStore) Settings() domain.SettingsRepository { return &settingsRepo{s} }

// WithTx on a tx-bound store just nests.
func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, domain.Store) error) error {
	return fn(ctx, s)
}

// Store is the root in-memory store.
type Store struct {
	mu sync.Mutex
	memStore
}

func New() *Store {
	s := &Store{}
	s.memStore = memStore{d: newDataset()}
	s.memStore.lock = s.mu.Lock
	s.memStore.unlock = s.mu.Unlock
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.d.clone()
	tx := &memStore{d: s.d, lock: func() {}, unlock: func() {}}
	if err := fn(ctx, tx); err != nil {
		*s.d = *snap
		return err
	}
	return nil
}

type playerRepo struct{ s *memStore }

func (r *playerRepo) Create(_ context.Context, p *domain.Player) error {
	r.s.lock()
	defer r.s.unlock()
	p.ID = r.s.d.nextPlayerID
	r.s.d.nextPlayerID++
	r.s.d.players[p.ID] = *p
	return nil
}

func (r *playerRepo) Get(_ context.Context, id int64) (*domain.Player, error) {
	r.s.lock()
	defer r.s.unlock()
	p, ok := r.s.d.players[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (r *playerRepo) FindByName(_ context.Context, name string) (*domain.Player, error) {
	r.s.lock()
	defer r.s.unlock()
	for _, p := range r.s.d.players {
		if p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *playerRepo) Update(_ context.Context, p *domain.Player) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.players[p.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.d.players[p.ID] = *p
	return nil
}

func (r *playerRepo) Delete(_ context.Context, id int64) error {
	r.s.lock()
	defer r.s.unlock()
	delete(r.s.d.players, id)
	return nil
}

type characterRepo struct{ s *memStore }

func (r *characterRepo) Create(_ context.Context, c *domain.Character) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.characters[c.ID]; ok {
		return domain.ErrDuplicate
	}
	r.s.d.characters[c.ID] = *c
	return nil
}

func (r *characterRepo) Get(_ context.Context, id int64) (*domain.Character, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.d.characters[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r *characterRepo) Update(_ context.Context, c *domain.Character) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.characters[c.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.d.characters[c.ID] = *c
	return nil
}

func (r *characterRepo) Delete(_ context.Context, id int64) error {
	r.s.lock()
	defer r.s.unlock()
	delete(r.s.d.characters, id)
	return nil
}

func (r *characterRepo) ListByPlayer(_ context.Context, playerID int64) ([]*domain.Character, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.Character
	for _, c := range r.s.d.characters {
		if c.PlayerID == playerID {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type tokenRepo struct{ s *memStore }

func (r *tokenRepo) Get(_ context.Context, characterID int64, eveLogin string) (*domain.EsiToken, error) {
	r.s.lock()
	defer r.s.unlock()
	t, ok := r.s.d.tokens[tokenKey{characterID, eveLogin}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (r *tokenRepo) Upsert(_ context.Context, t *domain.EsiToken) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.tokens[tokenKey{t.CharacterID, t.EveLogin}] = *t
	return nil
}

func (r *tokenRepo) Delete(_ context.Context, characterID int64, eveLogin string) error {
	r.s.lock()
	defer r.s.unlock()
	delete(r.s.d.tokens, tokenKey{characterID, eveLogin})
	return nil
}

func (r *tokenRepo) ListByCharacter(_ context.Context, characterID int64) ([]*domain.EsiToken, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.EsiToken
	for k, t := range r.s.d.tokens {
		if k.characterID == characterID {
			cp := t
			out = append(out, &cp)
		}
	}
	sortTokens(out)
	return out, nil
}

func (r *tokenRepo) ListByPlayer(_ context.Context, playerID int64) ([]*domain.EsiToken, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.EsiToken
	for k, t := range r.s.d.tokens {
		c, ok := r.s.d.characters[k.characterID]
		if ok && c.PlayerID == playerID {
			cp := t
			out = append(out, &cp)
		}
	}
	sortTokens(out)
	return out, nil
}

func sortTokens(ts []*domain.EsiToken) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CharacterID != ts[j].CharacterID {
			return ts[i].CharacterID < ts[j].CharacterID
		}
		return ts[i].EveLogin < ts[j].EveLogin
	})
}

type eveLoginRepo struct{ s *memStore }

func (r *eveLoginRepo) Get(_ context.Context, name string) (*domain.EveLogin, error) {
	r.s.lock()
	defer r.s.unlock()
	l, ok := r.s.d.eveLogins[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := l
	return &cp, nil
}

func (r *eveLoginRepo) List(_ context.Context) ([]*domain.EveLogin, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.EveLogin
	for _, l := range r.s.d.eveLogins {
		cp := l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *eveLoginRepo) Create(_ context.Context, l *domain.EveLogin) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.eveLogins[l.Name]; ok {
		return domain.ErrDuplicate
	}
	r.s.d.eveLogins[l.Name] = *l
	return nil
}

func (r *eveLoginRepo) Delete(_ context.Context, name string) error {
	r.s.lock()
	defer r.s.unlock()
	delete(r.s.d.eveLogins, name)
	return nil
}

type groupRepo struct{ s *memStore }

func (r *groupRepo) Create(_ context.Context, g *domain.Group) error {
	r.s.lock()
	defer r.s.unlock()
	for _, e := range r.s.d.groups {
		if e.Name == g.Name {
			return domain.ErrDuplicate
		}
	}
	g.ID = r.s.d.nextGroupID
	r.s.d.nextGroupID++
	r.s.d.groups[g.ID] = *g
	return nil
}

func (r *groupRepo) Get(_ context.Context, id int64) (*domain.Group, error) {
	r.s.lock()
	defer r.s.unlock()
	g, ok := r.s.d.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := g
	return &cp, nil
}

func (r *groupRepo) GetByName(_ context.Context, name string) (*domain.Group, error) {
	r.s.lock()
	defer r.s.unlock()
	for _, g := range r.s.d.groups {
		if g.Name == name {
			cp := g
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *groupRepo) Update(_ context.Context, g *domain.Group) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.groups[g.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.d.groups[g.ID] = *g
	return nil
}

func (r *groupRepo) List(_ context.Context) ([]*domain.Group, error) {
	r.s.lock()
	defer r.s.unlock()
	return r.listWhere(func(domain.Group) bool { return true }), nil
}

func (r *groupRepo) ListDefault(_ context.Context) ([]*domain.Group, error) {
	r.s.lock()
	defer r.s.unlock()
	return r.listWhere(func(g domain.Group) bool { return g.IsDefault }), nil
}

func (r *groupRepo) listWhere(keep func(domain.Group) bool) []*domain.Group {
	var out []*domain.Group
	for _, g := range r.s.d.groups {
		if keep(g) {
			cp := g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *groupRepo) ListByPlayer(_ context.Context, playerID int64) ([]*domain.Group, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.Group
	for gid, members := range r.s.d.members {
		if _, ok := members[playerID]; !ok {
			continue
		}
		g, ok := r.s.d.groups[gid]
		if ok {
			cp := g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *groupRepo) AddMember(_ context.Context, groupID, playerID int64) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.groups[groupID]; !ok {
		return domain.ErrNotFound
	}
	m, ok := r.s.d.members[groupID]
	if !ok {
		m = map[int64]struct{}{}
		r.s.d.members[groupID] = m
	}
	m[playerID] = struct{}{}
	return nil
}

func (r *groupRepo) RemoveMember(_ context.Context, groupID, playerID int64) error {
	r.s.lock()
	defer r.s.unlock()
	if m, ok := r.s.d.members[groupID]; ok {
		delete(m, playerID)
	}
	return nil
}

type appRepo struct{ s *memStore }

func (r *appRepo) Find(_ context.Context, playerID, groupID int64) (*domain.GroupApplication, error) {
	r.s.lock()
	defer r.s.unlock()
	a, ok := r.s.d.applications[appKey{playerID, groupID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (r *appRepo) ListByPlayer(_ context.Context, playerID int64) ([]*domain.GroupApplication, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.GroupApplication
	for k, a := range r.s.d.applications {
		if k.playerID == playerID {
			cp := a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (r *appRepo) Save(_ context.Context, a *domain.GroupApplication) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.applications[appKey{a.PlayerID, a.GroupID}] = *a
	return nil
}

func (r *appRepo) Delete(_ context.Context, playerID, groupID int64) error {
	r.s.lock()
	defer r.s.unlock()
	delete(r.s.d.applications, appKey{playerID, groupID})
	return nil
}

type roleRepo struct{ s *memStore }

func (r *roleRepo) Get(_ context.Context, name string) (*domain.Role, error) {
	r.s.lock()
	defer r.s.unlock()
	role, ok := r.s.d.roles[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := role
	return &cp, nil
}

func (r *roleRepo) List(_ context.Context) ([]*domain.Role, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.Role
	for _, role := range r.s.d.roles {
		cp := role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *roleRepo) Create(_ context.Context, role *domain.Role) error {
	r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.roles[role.Name]; ok {
		return domain.ErrDuplicate
	}
	r.s.d.roles[role.Name] = *role
	return nil
}

type removedRepo struct{ s *memStore }

func (r *removedRepo) Create(_ context.Context, rc *domain.RemovedCharacter) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.removed = append(r.s.d.removed, *rc)
	return nil
}

func (r *removedRepo) ListByOldPlayer(_ context.Context, playerID int64) ([]*domain.RemovedCharacter, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.RemovedCharacter
	for _, rc := range r.s.d.removed {
		if rc.OldPlayerID == playerID {
			cp := rc
			out = append(out, &cp)
		}
	}
	return out, nil
}

type corpRepo struct{ s *memStore }

func (r *corpRepo) Get(_ context.Context, id int64) (*domain.Corporation, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.d.corporations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (r *corpRepo) Upsert(_ context.Context, c *domain.Corporation) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.corporations[c.ID] = *c
	return nil
}

func (r *corpRepo) ListWithGroups(_ context.Context) ([]*domain.Corporation, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.Corporation
	for _, c := range r.s.d.corporations {
		if len(c.GroupIDs) > 0 {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type allianceRepo struct{ s *memStore }

func (r *allianceRepo) Get(_ context.Context, id int64) (*domain.Alliance, error) {
	r.s.lock()
	defer r.s.unlock()
	a, ok := r.s.d.alliances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (r *allianceRepo) Upsert(_ context.Context, a *domain.Alliance) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.alliances[a.ID] = *a
	return nil
}

func (r *allianceRepo) ListWithGroups(_ context.Context) ([]*domain.Alliance, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*domain.Alliance
	for _, a := range r.s.d.alliances {
		if len(a.GroupIDs) > 0 {
			cp := a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type settingsRepo struct{ s *memStore }

func (r *settingsRepo) Get(_ context.Context, name string) (string, error) {
	r.s.lock()
	defer r.s.unlock()
	return r.s.d.settings[name], nil
}

func (r *settingsRepo) Set(_ context.Context, name, value string) error {
	r.s.lock()
	defer r.s.unlock()
	r.s.d.settings[name] = value
	return nil
}
