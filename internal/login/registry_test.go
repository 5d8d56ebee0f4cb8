package login

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/store/memory"
)

func newTestRegistry(t *testing.T) (*Registry, domain.Store) {
	t.Helper()
	store := memory.New()
	return NewRegistry("esi-scope.one.v1 esi-scope.two.v1", store.EveLogins(), store.Settings()), store
}

func TestLookupDefault(t *testing.T) {
	r, _ := newTestRegistry(t)

	v, err := r.Lookup(context.Background(), NameDefault)
	require.NoError(t, err)
	assert.Equal(t, KindAuthenticate, v.Kind)
	assert.Equal(t, []string{"esi-scope.one.v1", "esi-scope.two.v1"}, v.Scopes)
	assert.Equal(t, "/#login", v.RedirectPath)
}

func TestLookupManagedGated(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{NameManaged, NameManagedAlt} {
		_, err := r.Lookup(ctx, name)
		assert.ErrorIs(t, err, ErrVariantForbidden, name)
	}

	require.NoError(t, store.Settings().Set(ctx, domain.SettingAllowLoginManaged, "1"))

	v, err := r.Lookup(ctx, NameManaged)
	require.NoError(t, err)
	assert.True(t, v.ManagedGated)
	assert.Empty(t, v.Scopes)

	// the switch is re-read every time: flipping it back closes the gate
	require.NoError(t, store.Settings().Set(ctx, domain.SettingAllowLoginManaged, "0"))
	_, err = r.Lookup(ctx, NameManaged)
	assert.ErrorIs(t, err, ErrVariantForbidden)
}

func TestLookupDirector(t *testing.T) {
	r, _ := newTestRegistry(t)

	v, err := r.Lookup(context.Background(), NameDirector)
	require.NoError(t, err)
	assert.Equal(t, KindDirector, v.Kind)
	assert.Equal(t, []string{EveRoleDirector}, v.EveRoles)
	assert.Len(t, v.Scopes, 3)
}

func TestLookupUnknownInternal(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Lookup(context.Background(), "core.does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestLookupCustom(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Lookup(ctx, "tracking")
	assert.ErrorIs(t, err, ErrUnknownVariant)

	require.NoError(t, store.EveLogins().Create(ctx, &domain.EveLogin{
		Name:      "tracking",
		EsiScopes: "esi-corporations.track_members.v1",
		EveRoles:  []string{"Director"},
		Roles:     []string{"tracking"},
	}))

	v, err := r.Lookup(ctx, "tracking")
	require.NoError(t, err)
	assert.Equal(t, KindCustom, v.Kind)
	assert.Equal(t, []string{"esi-corporations.track_members.v1"}, v.Scopes)
	assert.Equal(t, []string{"tracking"}, v.Roles)
	assert.Equal(t, "/#login-custom", v.RedirectPath)
}
