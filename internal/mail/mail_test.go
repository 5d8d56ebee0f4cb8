package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/store/memory"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) ValidAccessToken(context.Context, int64, string) (string, error) {
	return s.token, s.err
}

func seedPlayer(t *testing.T, store domain.Store) *domain.Player {
	t.Helper()
	ctx := context.Background()
	player := &domain.Player{Name: "Pilot"}
	require.NoError(t, store.Players().Create(ctx, player))
	require.NoError(t, store.Characters().Create(ctx, &domain.Character{
		ID: 100, PlayerID: player.ID, Name: "Pilot", Main: true,
	}))
	return player
}

func TestNotifyInvalidToken(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	player := seedPlayer(t, store)
	require.NoError(t, store.Settings().Set(ctx, domain.SettingMailCharacterID, "900"))

	var gotPath, gotAuth string
	var gotBody map[string]any
	esi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer esi.Close()

	n := NewNotifier(NotifierDeps{
		Store:      store,
		Tokens:     staticTokens{token: "access"},
		ESIBaseURL: esi.URL,
	})
	require.NoError(t, n.NotifyInvalidToken(ctx, player))

	assert.Equal(t, "/latest/characters/900/mail/", gotPath)
	assert.Equal(t, "Bearer access", gotAuth)
	assert.Equal(t, invalidTokenSubject, gotBody["subject"])

	recipients, ok := gotBody["recipients"].([]any)
	require.True(t, ok)
	require.Len(t, recipients, 1)
	first := recipients[0].(map[string]any)
	assert.EqualValues(t, 100, first["recipient_id"])
}

func TestNotifyInvalidTokenNoMailCharacter(t *testing.T) {
	store := memory.New()
	player := seedPlayer(t, store)

	n := NewNotifier(NotifierDeps{Store: store, Tokens: staticTokens{token: "access"}})
	err := n.NotifyInvalidToken(context.Background(), player)
	assert.ErrorIs(t, err, ErrNoMailCharacter)
}

func TestNotifyInvalidTokenNoMain(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	player := &domain.Player{Name: "Empty"}
	require.NoError(t, store.Players().Create(ctx, player))

	n := NewNotifier(NotifierDeps{Store: store, Tokens: staticTokens{token: "access"}})
	err := n.NotifyInvalidToken(ctx, player)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotifyInvalidTokenESIError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	player := seedPlayer(t, store)
	require.NoError(t, store.Settings().Set(ctx, domain.SettingMailCharacterID, "900"))

	esi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer esi.Close()

	n := NewNotifier(NotifierDeps{
		Store:      store,
		Tokens:     staticTokens{token: "access"},
		ESIBaseURL: esi.URL,
	})
	assert.Error(t, n.NotifyInvalidToken(ctx, player))
}

func TestNotifyInvalidTokenStaleToken(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	player := seedPlayer(t, store)
	require.NoError(t, store.Settings().Set(ctx, domain.SettingMailCharacterID, "900"))

	n := NewNotifier(NotifierDeps{
		Store:  store,
		Tokens: staticTokens{err: domain.ErrNotFound},
	})
	assert.ErrorIs(t, n.NotifyInvalidToken(ctx, player), domain.ErrNotFound)
}
