package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evecore/evecore/internal/domain"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Players().Create(ctx, &domain.Player{Name: "Kept"}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.Players().Create(ctx, &domain.Player{Name: "Discarded"}); err != nil {
			return err
		}
		if err := tx.Characters().Create(ctx, &domain.Character{ID: 100, Name: "Discarded"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Players().FindByName(ctx, "Discarded")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Characters().Get(ctx, 100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Players().FindByName(ctx, "Kept")
	assert.NoError(t, err)
}

func TestWithTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return tx.Players().Create(ctx, &domain.Player{Name: "Pilot"})
	})
	require.NoError(t, err)

	p, err := s.Players().FindByName(ctx, "Pilot")
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
}

func TestWithTxNested(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Store) error {
		return tx.WithTx(ctx, func(ctx context.Context, inner domain.Store) error {
			return inner.Players().Create(ctx, &domain.Player{Name: "Pilot"})
		})
	})
	require.NoError(t, err)

	_, err = s.Players().FindByName(context.Background(), "Pilot")
	assert.NoError(t, err)
}

func TestCharacterCreateDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Characters().Create(ctx, &domain.Character{ID: 100, Name: "Pilot"}))
	err := s.Characters().Create(ctx, &domain.Character{ID: 100, Name: "Pilot"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestRepositoriesReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := &domain.Player{Name: "Pilot"}
	require.NoError(t, s.Players().Create(ctx, p))

	got, err := s.Players().Get(ctx, p.ID)
	require.NoError(t, err)
	got.Name = "Mutated"

	again, err := s.Players().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pilot", again.Name)
}

func TestSettingsDefaultEmpty(t *testing.T) {
	s := New()
	ctx := context.Background()

	v, err := s.Settings().Get(ctx, "unset")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Settings().Set(ctx, "k", "1"))
	v, err = s.Settings().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
