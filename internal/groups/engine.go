// Package groups recomputes derived roles and repairs group memberships
// against admin-configured policy. Membership is treated as a derived fact:
// every sync re-validates it instead of trusting write-time checks.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/metrics"
	"github.com/evecore/evecore/internal/observability/logger"
)

// ErrGroupSelfReference is returned when an admin tries to add a group to
// its own required or forbidden list.
var ErrGroupSelfReference = errors.New("groups: group cannot require or forbid itself")

// Notifier sends the one-shot "your token went invalid" notice. Optional.
type Notifier interface {
	NotifyInvalidToken(ctx context.Context, player *domain.Player) error
}

// Engine is the role/group authorization engine. All mutating entry points
// expect to run inside the caller's transaction; any persistence error is
// fatal for the enclosing request.
type Engine struct {
	store     domain.Store
	maxPasses int
	notifier  Notifier
}

func NewEngine(store domain.Store, maxPasses int) *Engine {
	if maxPasses <= 0 {
		maxPasses = 5
	}
	return &Engine{store: store, maxPasses: maxPasses}
}

// WithNotifier attaches the invalid-token mail notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// SyncRoles recomputes the derived part of the player's role set: roles
// granted by each login variant for which the player holds at least one
// character with a currently valid token, plus "user" for valid default or
// managed tokens. Manually assigned roles are left alone.
func (e *Engine) SyncRoles(ctx context.Context, playerID int64) error {
	player, err := e.store.Players().Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}

	tokens, err := e.store.EsiTokens().ListByPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}
	validByLogin := make(map[string]bool)
	for _, t := range tokens {
		if t.Valid {
			validByLogin[t.EveLogin] = true
		}
	}

	customLogins, err := e.store.EveLogins().List(ctx)
	if err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}

	// The derivable namespace: everything the engine may grant or revoke.
	derivable := map[string]bool{domain.RoleUser: true}
	derived := make(map[string]bool)

	if validByLogin[login.NameDefault] || validByLogin[login.NameManaged] {
		derived[domain.RoleUser] = true
	}
	for _, l := range customLogins {
		for _, role := range l.Roles {
			derivable[role] = true
			if validByLogin[l.Name] {
				derived[role] = true
			}
		}
	}

	newRoles := make([]string, 0, len(player.Roles)+len(derived))
	for _, r := range player.Roles {
		if !derivable[r] {
			newRoles = append(newRoles, r) // manually assigned, keep
		}
	}
	for r := range derived {
		newRoles = append(newRoles, r)
	}

	if !sameSet(player.Roles, newRoles) {
		player.Roles = newRoles
		if err := e.store.Players().Update(ctx, player); err != nil {
			return fmt.Errorf("sync roles: persist: %w", err)
		}
	}

	e.maintainInvalidTokenNotice(ctx, player, derived[domain.RoleUser])
	return nil
}

// EffectiveRoles filters the player's persisted roles by each role's own
// required-group constraint. Read-time check; nothing is persisted.
func (e *Engine) EffectiveRoles(ctx context.Context, player *domain.Player) ([]string, error) {
	member, err := e.membershipSet(ctx, player.ID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(player.Roles))
	for _, name := range player.Roles {
		role, err := e.store.Roles().Get(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				out = append(out, name)
				continue
			}
			return nil, err
		}
		if satisfiesAll(role.RequiredGroups, member) {
			out = append(out, name)
		}
	}
	return out, nil
}

// SyncGroups validates and repairs the player's memberships:
//
//  1. auto-assigns default groups and corporation/alliance mapped groups
//     (skipped for managed accounts),
//  2. removes memberships violating required/forbidden constraints,
//  3. promotes auto-acceptable applications whose constraints hold.
//
// Constraints are evaluated against the snapshot taken at the start of each
// pass, so the outcome does not depend on iteration order; passes repeat
// until a fixed point, bounded by maxPasses. Hitting the bound means the
// admin configuration is contradictory: logged, not retried.
func (e *Engine) SyncGroups(ctx context.Context, playerID int64) error {
	player, err := e.store.Players().Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("sync groups: %w", err)
	}

	if player.Status != domain.PlayerStatusManaged {
		if err := e.assignAutoGroups(ctx, player); err != nil {
			return err
		}
	}

	for pass := 0; ; pass++ {
		if pass >= e.maxPasses {
			logger.From(ctx).Error("group sync did not converge",
				logger.Component("groups"), logger.PlayerID(playerID), logger.Count(pass))
			metrics.GroupSyncPasses.Observe(float64(pass))
			return nil
		}
		changed, err := e.syncPass(ctx, player)
		if err != nil {
			return err
		}
		if !changed {
			metrics.GroupSyncPasses.Observe(float64(pass + 1))
			return nil
		}
	}
}

func (e *Engine) syncPass(ctx context.Context, player *domain.Player) (bool, error) {
	snapshot, err := e.membershipSet(ctx, player.ID)
	if err != nil {
		return false, err
	}

	changed := false

	memberships, err := e.store.Groups().ListByPlayer(ctx, player.ID)
	if err != nil {
		return false, fmt.Errorf("sync groups: %w", err)
	}
	for _, g := range memberships {
		if allowedMember(g, snapshot) {
			continue
		}
		if err := e.removeMemberAndApplication(ctx, player.ID, g); err != nil {
			return false, err
		}
		changed = true
	}

	// Promote auto-acceptable pending applications. Evaluated against the
	// same snapshot as the removals above.
	apps, err := e.store.GroupApplications().ListByPlayer(ctx, player.ID)
	if err != nil {
		return false, fmt.Errorf("sync groups: %w", err)
	}
	for _, app := range apps {
		if app.Status != domain.ApplicationStatusPending {
			continue
		}
		g, err := e.store.Groups().Get(ctx, app.GroupID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return false, fmt.Errorf("sync groups: %w", err)
		}
		if !g.AutoAccept || g.Visibility != domain.GroupVisibilityPublic {
			continue
		}
		if snapshot[g.ID] || !allowedMember(g, snapshot) {
			continue
		}
		if err := e.store.Groups().AddMember(ctx, g.ID, player.ID); err != nil {
			return false, fmt.Errorf("sync groups: add member: %w", err)
		}
		app.Status = domain.ApplicationStatusAccepted
		if err := e.store.GroupApplications().Save(ctx, app); err != nil {
			return false, fmt.Errorf("sync groups: save application: %w", err)
		}
		logger.From(ctx).Info("application auto-accepted",
			logger.Component("groups"), logger.PlayerID(player.ID), logger.GroupName(g.Name))
		changed = true
	}

	return changed, nil
}

// assignAutoGroups adds default groups and groups mapped to the player's
// corporations and alliances, and removes mapped groups the player no
// longer qualifies for. Only groups that appear in some mapping are ever
// removed here.
func (e *Engine) assignAutoGroups(ctx context.Context, player *domain.Player) error {
	defaults, err := e.store.Groups().ListDefault(ctx)
	if err != nil {
		return fmt.Errorf("sync groups: %w", err)
	}
	member, err := e.membershipSet(ctx, player.ID)
	if err != nil {
		return err
	}
	for _, g := range defaults {
		if member[g.ID] {
			continue
		}
		if err := e.store.Groups().AddMember(ctx, g.ID, player.ID); err != nil {
			return fmt.Errorf("sync groups: add default group: %w", err)
		}
		member[g.ID] = true
	}

	corpMap, allianceMap, autoGroups, err := e.loadMappings(ctx)
	if err != nil {
		return err
	}
	if len(autoGroups) == 0 {
		return nil
	}

	chars, err := e.store.Characters().ListByPlayer(ctx, player.ID)
	if err != nil {
		return fmt.Errorf("sync groups: %w", err)
	}
	should := make(map[int64]bool)
	for _, c := range chars {
		if c.CorporationID == 0 {
			continue
		}
		for _, gid := range corpMap[c.CorporationID] {
			should[gid] = true
		}
		if corp, err := e.store.Corporations().Get(ctx, c.CorporationID); err == nil && corp.AllianceID != 0 {
			for _, gid := range allianceMap[corp.AllianceID] {
				should[gid] = true
			}
		}
	}

	for gid := range autoGroups {
		switch {
		case should[gid] && !member[gid]:
			if err := e.store.Groups().AddMember(ctx, gid, player.ID); err != nil {
				return fmt.Errorf("sync groups: add mapped group: %w", err)
			}
		case !should[gid] && member[gid]:
			g, err := e.store.Groups().Get(ctx, gid)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return fmt.Errorf("sync groups: %w", err)
			}
			if err := e.removeMemberAndApplication(ctx, player.ID, g); err != nil {
				return err
			}
		}
	}

	player.LastUpdate = time.Now()
	if err := e.store.Players().Update(ctx, player); err != nil {
		return fmt.Errorf("sync groups: persist: %w", err)
	}
	return nil
}

func (e *Engine) loadMappings(ctx context.Context) (map[int64][]int64, map[int64][]int64, map[int64]bool, error) {
	corps, err := e.store.Corporations().ListWithGroups(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sync groups: %w", err)
	}
	alliances, err := e.store.Alliances().ListWithGroups(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sync groups: %w", err)
	}

	corpMap := make(map[int64][]int64, len(corps))
	allianceMap := make(map[int64][]int64, len(alliances))
	auto := make(map[int64]bool)
	for _, c := range corps {
		corpMap[c.ID] = c.GroupIDs
		for _, gid := range c.GroupIDs {
			auto[gid] = true
		}
	}
	for _, a := range alliances {
		allianceMap[a.ID] = a.GroupIDs
		for _, gid := range a.GroupIDs {
			auto[gid] = true
		}
	}
	return corpMap, allianceMap, auto, nil
}

// removeMemberAndApplication drops the membership and any application for
// the pair, so the player does not stay "accepted" into a group they were
// just removed from.
func (e *Engine) removeMemberAndApplication(ctx context.Context, playerID int64, g *domain.Group) error {
	if err := e.store.Groups().RemoveMember(ctx, g.ID, playerID); err != nil {
		return fmt.Errorf("sync groups: remove member: %w", err)
	}
	if err := e.store.GroupApplications().Delete(ctx, playerID, g.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("sync groups: remove application: %w", err)
	}
	logger.From(ctx).Info("membership removed by constraint",
		logger.Component("groups"), logger.PlayerID(playerID), logger.GroupName(g.Name))
	return nil
}

func (e *Engine) membershipSet(ctx context.Context, playerID int64) (map[int64]bool, error) {
	memberships, err := e.store.Groups().ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("sync groups: %w", err)
	}
	set := make(map[int64]bool, len(memberships))
	for _, g := range memberships {
		set[g.ID] = true
	}
	return set, nil
}

// allowedMember evaluates invariant: member of every required group and of
// no forbidden group. Direct constraints only, no transitivity.
func allowedMember(g *domain.Group, member map[int64]bool) bool {
	if !satisfiesAll(g.RequiredGroups, member) {
		return false
	}
	for _, fid := range g.ForbiddenGroups {
		if member[fid] {
			return false
		}
	}
	return true
}

func satisfiesAll(required []int64, member map[int64]bool) bool {
	for _, rid := range required {
		if !member[rid] {
			return false
		}
	}
	return true
}

// ValidateGroupPolicy rejects a group whose required or forbidden list
// contains the group itself. Called from the admin write path.
func ValidateGroupPolicy(g *domain.Group) error {
	for _, id := range g.RequiredGroups {
		if id == g.ID {
			return ErrGroupSelfReference
		}
	}
	for _, id := range g.ForbiddenGroups {
		if id == g.ID {
			return ErrGroupSelfReference
		}
	}
	return nil
}

func (e *Engine) maintainInvalidTokenNotice(ctx context.Context, player *domain.Player, hasValidDefault bool) {
	switch {
	case hasValidDefault && player.InvalidTokenMailSent:
		player.InvalidTokenMailSent = false
		if err := e.store.Players().Update(ctx, player); err != nil {
			logger.From(ctx).Warn("reset invalid-token notice failed",
				logger.Component("groups"), logger.PlayerID(player.ID), logger.Err(err))
		}
	case !hasValidDefault && !player.InvalidTokenMailSent && e.notifier != nil &&
		player.Status == domain.PlayerStatusStandard:
		if err := e.notifier.NotifyInvalidToken(ctx, player); err != nil {
			logger.From(ctx).Warn("invalid-token notice failed",
				logger.Component("groups"), logger.PlayerID(player.ID), logger.Err(err))
			return
		}
		player.InvalidTokenMailSent = true
		if err := e.store.Players().Update(ctx, player); err != nil {
			logger.From(ctx).Warn("persist invalid-token notice failed",
				logger.Component("groups"), logger.PlayerID(player.ID), logger.Err(err))
		}
	}
}

// GroupsDisabled is the read-time deactivation predicate: true while the
// require-valid-token switch is on, the account is standard, one of its
// characters sits in a configured deactivation corporation or alliance, and
// its default token has been invalid for longer than the configured delay.
// Consumers must treat "disabled" as "no groups visible"; stored membership
// rows are never touched here.
func (e *Engine) GroupsDisabled(ctx context.Context, player *domain.Player) (bool, error) {
	if player.Status == domain.PlayerStatusManaged {
		return false, nil
	}

	enabled, err := e.store.Settings().Get(ctx, domain.SettingGroupsRequireValidToken)
	if err != nil {
		return false, err
	}
	if enabled != "1" {
		return false, nil
	}

	corpList, err := e.settingIDList(ctx, domain.SettingDeactivationCorporations)
	if err != nil {
		return false, err
	}
	allianceList, err := e.settingIDList(ctx, domain.SettingDeactivationAlliances)
	if err != nil {
		return false, err
	}
	if len(corpList) == 0 && len(allianceList) == 0 {
		return false, nil
	}

	chars, err := e.store.Characters().ListByPlayer(ctx, player.ID)
	if err != nil {
		return false, err
	}
	inScope := false
	for _, c := range chars {
		if c.CorporationID == 0 {
			continue
		}
		if corpList[c.CorporationID] {
			inScope = true
			break
		}
		if corp, err := e.store.Corporations().Get(ctx, c.CorporationID); err == nil &&
			corp.AllianceID != 0 && allianceList[corp.AllianceID] {
			inScope = true
			break
		}
	}
	if !inScope {
		return false, nil
	}

	delay, err := e.deactivationDelay(ctx)
	if err != nil {
		return false, err
	}
	cutoff := time.Now().Add(-delay)
	for _, c := range chars {
		if !c.ValidToken && !c.ValidTokenTime.IsZero() && c.ValidTokenTime.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) deactivationDelay(ctx context.Context) (time.Duration, error) {
	v, err := e.store.Settings().Get(ctx, domain.SettingAccountDeactivationDelay)
	if err != nil {
		return 0, err
	}
	hours, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || hours < 0 {
		return 0, nil
	}
	return time.Duration(hours) * time.Hour, nil
}

func (e *Engine) settingIDList(ctx context.Context, name string) (map[int64]bool, error) {
	v, err := e.store.Settings().Get(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil && id > 0 {
			out[id] = true
		}
	}
	return out, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]bool, len(a))
	for _, s := range a {
		m[s] = true
	}
	for _, s := range b {
		if !m[s] {
			return false
		}
	}
	return true
}
