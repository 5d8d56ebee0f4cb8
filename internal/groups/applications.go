package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evecore/evecore/internal/domain"
)

var (
	// ErrGroupNotPublic: players can only apply to public groups.
	ErrGroupNotPublic = errors.New("groups: group is not public")
	// ErrAlreadyMember is returned when applying to a group the player is
	// already a member of.
	ErrAlreadyMember = errors.New("groups: already a member")
)

// Apply files a membership application. A pending application for the same
// pair is overwritten; an accepted one is left alone. Auto-accept groups
// are materialized by the next SyncGroups pass.
func (e *Engine) Apply(ctx context.Context, playerID, groupID int64) (*domain.GroupApplication, error) {
	g, err := e.store.Groups().Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	if g.Visibility != domain.GroupVisibilityPublic {
		return nil, ErrGroupNotPublic
	}

	member, err := e.membershipSet(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if member[groupID] {
		return nil, ErrAlreadyMember
	}

	app, err := e.store.GroupApplications().Find(ctx, playerID, groupID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("apply: %w", err)
	}
	if app != nil && app.Status == domain.ApplicationStatusAccepted {
		return app, nil
	}
	if app == nil {
		app = &domain.GroupApplication{PlayerID: playerID, GroupID: groupID}
	}
	app.Status = domain.ApplicationStatusPending
	app.Created = time.Now()
	if err := e.store.GroupApplications().Save(ctx, app); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	return app, nil
}
