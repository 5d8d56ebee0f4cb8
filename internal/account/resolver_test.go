package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/session"
	"github.com/evecore/evecore/internal/sso"
	"github.com/evecore/evecore/internal/store/memory"
)

type fakeSSO struct {
	exchangeErr error
	identity    *sso.Identity
	verifyErr   error
	roles       bool
	rolesErr    error
}

func (f *fakeSSO) Exchange(context.Context, string) (*sso.TokenPair, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &sso.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(20 * time.Minute),
	}, nil
}

func (f *fakeSSO) VerifyIdentity(context.Context, string) (*sso.Identity, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.identity, nil
}

func (f *fakeSSO) VerifyRoles(context.Context, int64, string, []string) (bool, error) {
	return f.roles, f.rolesErr
}

type fixture struct {
	store    domain.Store
	resolver *Resolver
	sso      *fakeSSO
}

const testScopes = "esi-scope.one.v1"

func newResolverFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	provider := &fakeSSO{}
	registry := login.NewRegistry(testScopes, store.EveLogins(), store.Settings())
	resolver := NewResolver(ResolverDeps{
		Store:    store,
		Registry: registry,
		SSO:      provider,
		Verifier: provider,
		Roles:    provider,
	})
	return &fixture{store: store, resolver: resolver, sso: provider}
}

func identityFor(charID int64, name, ownerHash string) *sso.Identity {
	return &sso.Identity{
		CharacterID:   charID,
		CharacterName: name,
		OwnerHash:     ownerHash,
		Scopes:        []string{"esi-scope.one.v1"},
	}
}

// login runs a full default-variant flow for the given identity.
func (f *fixture) login(t *testing.T, sess *session.Session, variant string, id *sso.Identity) *Result {
	t.Helper()
	f.sso.identity = id
	state, err := login.IssueState(sess, variant)
	require.NoError(t, err)
	return f.resolver.HandleCallback(context.Background(), sess, state, "code")
}

func TestHandleCallbackNewCharacter(t *testing.T) {
	f := newResolverFixture(t)
	sess := session.New("sid")

	res := f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))

	require.True(t, res.Success)
	assert.Equal(t, "Login successful.", res.Message)
	assert.Equal(t, "/#login", res.RedirectPath)
	assert.Equal(t, int64(100), res.CharacterID)

	ctx := context.Background()
	char, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	assert.True(t, char.Main)
	assert.Equal(t, "h1", char.OwnerHash)
	assert.True(t, char.ValidToken)

	player, err := f.store.Players().Get(ctx, char.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "Pilot", player.Name)
	assert.Equal(t, 1, player.LoginCount)
	assert.True(t, player.HasRole(domain.RoleUser))

	tok, err := f.store.EsiTokens().Get(ctx, 100, login.NameDefault)
	require.NoError(t, err)
	assert.Equal(t, "refresh", tok.RefreshToken)
}

func TestHandleCallbackReLoginIdempotent(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))
	require.True(t, res.Success)
	first, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)

	res = f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))
	require.True(t, res.Success)

	second, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.PlayerID, second.PlayerID)

	player, err := f.store.Players().Get(ctx, second.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, 2, player.LoginCount)

	chars, err := f.store.Characters().ListByPlayer(ctx, player.ID)
	require.NoError(t, err)
	assert.Len(t, chars, 1)
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	f := newResolverFixture(t)
	sess := session.New("sid")
	f.sso.identity = identityFor(100, "Pilot", "h1")

	state, err := login.IssueState(sess, login.NameDefault)
	require.NoError(t, err)

	res := f.resolver.HandleCallback(context.Background(), sess, state+"tampered", "code")
	assert.False(t, res.Success)
	assert.Equal(t, "OAuth state mismatch.", res.Message)

	// the state was consumed, replaying the genuine value fails too
	res = f.resolver.HandleCallback(context.Background(), sess, state, "code")
	assert.False(t, res.Success)
}

func TestHandleCallbackScopeMismatch(t *testing.T) {
	f := newResolverFixture(t)
	sess := session.New("sid")

	id := identityFor(100, "Pilot", "h1")
	id.Scopes = []string{"esi-scope.one.v1", "esi-extra.v1"} // superset fails
	res := f.login(t, sess, login.NameDefault, id)

	assert.False(t, res.Success)
	assert.Equal(t, "Required scopes do not match granted scopes.", res.Message)
	_, err := f.store.Characters().Get(context.Background(), 100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	f := newResolverFixture(t)
	sess := session.New("sid")
	f.sso.exchangeErr = sso.ErrTokenExchangeFailed

	res := f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to get the access token.", res.Message)
	assert.Equal(t, "/#login", res.RedirectPath)
}

func TestHandleCallbackOwnerHashTransfer(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	res := f.login(t, session.New("a"), login.NameDefault, identityFor(100, "Pilot", "h1"))
	require.True(t, res.Success)
	moved, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	oldPlayerID := moved.PlayerID

	// same character id, new owner hash: a different person owns it now
	res = f.login(t, session.New("b"), login.NameDefault, identityFor(100, "Pilot", "h2"))
	require.True(t, res.Success)

	moved, err = f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	assert.NotEqual(t, oldPlayerID, moved.PlayerID)
	assert.Equal(t, "h2", moved.OwnerHash)
	assert.True(t, moved.Main)

	// provenance row references the old player
	removed, err := f.store.RemovedCharacters().ListByOldPlayer(ctx, oldPlayerID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, int64(100), removed[0].CharacterID)
	assert.Equal(t, domain.RemovedReasonOwnerChanged, removed[0].Reason)
	require.NotNil(t, removed[0].NewPlayerID)
	assert.Equal(t, moved.PlayerID, *removed[0].NewPlayerID)

	// the old account no longer lists the character
	chars, err := f.store.Characters().ListByPlayer(ctx, oldPlayerID)
	require.NoError(t, err)
	assert.Empty(t, chars)
}

func TestHandleCallbackAddAlt(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Main", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))

	res = f.login(t, sess, login.NameAlt, identityFor(200, "Alt", "h2"))
	require.True(t, res.Success)
	assert.Equal(t, "Character added to player account.", res.Message)
	assert.Equal(t, "/#login-alt", res.RedirectPath)

	main, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	alt, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, main.PlayerID, alt.PlayerID)
	assert.False(t, alt.Main)
}

func TestHandleCallbackAddAltRequiresLogin(t *testing.T) {
	f := newResolverFixture(t)

	res := f.login(t, session.New("sid"), login.NameAlt, identityFor(200, "Alt", "h2"))
	assert.False(t, res.Success)
	assert.Equal(t, "Not logged in, login first.", res.Message)
}

func TestHandleCallbackAltCrossClaimRejected(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// character 200 lives on account A
	res := f.login(t, session.New("a"), login.NameDefault, identityFor(200, "Victim", "h2"))
	require.True(t, res.Success)
	before, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)

	// account B tries to claim it as an alt with the same owner hash
	sessB := session.New("b")
	res = f.login(t, sessB, login.NameDefault, identityFor(100, "Attacker", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sessB.Set(session.KeyCharacterID, res.CharacterID))

	res = f.login(t, sessB, login.NameAlt, identityFor(200, "Victim", "h2"))
	assert.False(t, res.Success)
	assert.Equal(t, "Character already belongs to another account.", res.Message)

	after, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, before.PlayerID, after.PlayerID)
}

func TestHandleCallbackAltOwnerChangeMoves(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	res := f.login(t, session.New("a"), login.NameDefault, identityFor(200, "Traded", "h2"))
	require.True(t, res.Success)
	oldChar, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)

	sessB := session.New("b")
	res = f.login(t, sessB, login.NameDefault, identityFor(100, "Buyer", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sessB.Set(session.KeyCharacterID, res.CharacterID))

	// the owner hash changed: the character was transferred, the claim is
	// legitimate
	res = f.login(t, sessB, login.NameAlt, identityFor(200, "Traded", "h3"))
	require.True(t, res.Success)

	after, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)
	assert.NotEqual(t, oldChar.PlayerID, after.PlayerID)
	assert.False(t, after.Main)

	removed, err := f.store.RemovedCharacters().ListByOldPlayer(ctx, oldChar.PlayerID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
}

func TestHandleCallbackAltLoginDisabled(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Main", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))
	res = f.login(t, sess, login.NameAlt, identityFor(200, "Alt", "h2"))
	require.True(t, res.Success)

	require.NoError(t, f.store.Settings().Set(ctx, domain.SettingDisableAltLogin, "1"))

	// the alt can no longer start a default login
	res = f.login(t, session.New("c"), login.NameDefault, identityFor(200, "Alt", "h2"))
	assert.False(t, res.Success)
	assert.Equal(t, "Login with alt characters is disabled.", res.Message)

	// the main still can
	res = f.login(t, session.New("d"), login.NameDefault, identityFor(100, "Main", "h1"))
	assert.True(t, res.Success)
}

func TestHandleCallbackDirectorLogin(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	f.sso.roles = true

	id := identityFor(300, "Boss", "h3")
	id.Scopes = []string{
		login.ScopeRoles, login.ScopeTracking, login.ScopeStructures,
	}
	res := f.login(t, session.New("sid"), login.NameDirector, id)
	require.True(t, res.Success)
	assert.Equal(t, "/#login-director", res.RedirectPath)
	assert.Zero(t, res.CharacterID) // service login, no session binding

	slot, err := f.store.Settings().Get(ctx, domain.SettingDirectorCharacterID)
	require.NoError(t, err)
	assert.Equal(t, "300", slot)

	tok, err := f.store.EsiTokens().Get(ctx, 300, login.NameDirector)
	require.NoError(t, err)
	assert.True(t, tok.HasRoles)

	// no player account was created for the service character
	_, err = f.store.Characters().Get(ctx, 300)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleCallbackDirectorWithoutRole(t *testing.T) {
	f := newResolverFixture(t)
	f.sso.roles = false

	id := identityFor(300, "NotBoss", "h3")
	id.Scopes = []string{
		login.ScopeRoles, login.ScopeTracking, login.ScopeStructures,
	}
	res := f.login(t, session.New("sid"), login.NameDirector, id)
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to add director character.", res.Message)
}

func TestHandleCallbackMailLoginRequiresSettingsRole(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Admin", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))

	mailIdentity := identityFor(400, "Mailer", "h4")
	mailIdentity.Scopes = []string{login.ScopeMail}

	// without the settings role the login is refused
	res = f.login(t, sess, login.NameMail, mailIdentity)
	assert.False(t, res.Success)

	char, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	player, err := f.store.Players().Get(ctx, char.PlayerID)
	require.NoError(t, err)
	player.Roles = append(player.Roles, domain.RoleSettings)
	require.NoError(t, f.store.Players().Update(ctx, player))

	res = f.login(t, sess, login.NameMail, mailIdentity)
	require.True(t, res.Success)
	assert.Equal(t, "Mail character authenticated.", res.Message)

	slot, err := f.store.Settings().Get(ctx, domain.SettingMailCharacterID)
	require.NoError(t, err)
	assert.Equal(t, "400", slot)
}

func TestHandleCallbackCustomVariant(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	f.sso.roles = true

	require.NoError(t, f.store.EveLogins().Create(ctx, &domain.EveLogin{
		Name:      "tracking",
		EsiScopes: "esi-corporations.track_members.v1",
		EveRoles:  []string{"Director"},
		Roles:     []string{"tracking"},
	}))

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))

	id := identityFor(100, "Pilot", "h1")
	id.Scopes = []string{"esi-corporations.track_members.v1"}
	res = f.login(t, sess, "tracking", id)
	require.True(t, res.Success)
	assert.Equal(t, "/#login-custom", res.RedirectPath)

	// the variant role is granted while the token is valid
	char, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	player, err := f.store.Players().Get(ctx, char.PlayerID)
	require.NoError(t, err)
	assert.True(t, player.HasRole("tracking"))
}

func TestHandleCallbackCustomVariantForeignCharacter(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	f.sso.roles = true

	require.NoError(t, f.store.EveLogins().Create(ctx, &domain.EveLogin{
		Name: "tracking", EsiScopes: "esi-corporations.track_members.v1",
	}))

	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Pilot", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))

	// token for a character that is not on this account
	id := identityFor(999, "Other", "h9")
	id.Scopes = []string{"esi-corporations.track_members.v1"}
	res = f.login(t, sess, "tracking", id)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not found on this account")
}

func TestHandleCallbackManagedGatedAtCallback(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Settings().Set(ctx, domain.SettingAllowLoginManaged, "1"))

	sess := session.New("sid")
	f.sso.identity = identityFor(100, "Pilot", "h1")
	f.sso.identity.Scopes = nil
	state, err := login.IssueState(sess, login.NameManaged)
	require.NoError(t, err)

	// switch flipped between redirect and callback
	require.NoError(t, f.store.Settings().Set(ctx, domain.SettingAllowLoginManaged, "0"))

	res := f.resolver.HandleCallback(ctx, sess, state, "code")
	assert.False(t, res.Success)
}

func TestHandleCallbackAssureMainPromotesOldest(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// account with a main and two alts of different ages
	sess := session.New("sid")
	res := f.login(t, sess, login.NameDefault, identityFor(100, "Main", "h1"))
	require.True(t, res.Success)
	require.NoError(t, sess.Set(session.KeyCharacterID, res.CharacterID))
	res = f.login(t, sess, login.NameAlt, identityFor(200, "OldAlt", "h2"))
	require.True(t, res.Success)
	res = f.login(t, sess, login.NameAlt, identityFor(300, "NewAlt", "h3"))
	require.True(t, res.Success)

	oldMain, err := f.store.Characters().Get(ctx, 100)
	require.NoError(t, err)
	oldPlayerID := oldMain.PlayerID

	// the main was sold: its owner hash changes on the next default login
	res = f.login(t, session.New("b"), login.NameDefault, identityFor(100, "Main", "h9"))
	require.True(t, res.Success)

	// the oldest remaining character is promoted and the account renamed
	promoted, err := f.store.Characters().Get(ctx, 200)
	require.NoError(t, err)
	assert.True(t, promoted.Main)
	other, err := f.store.Characters().Get(ctx, 300)
	require.NoError(t, err)
	assert.False(t, other.Main)

	player, err := f.store.Players().Get(ctx, oldPlayerID)
	require.NoError(t, err)
	assert.Equal(t, "OldAlt", player.Name)
}

// dupStore forces every character insert into a unique violation, the
// storage-level view of the losing tab of two concurrent callbacks.
type dupStore struct{ domain.Store }

func (s dupStore) Characters() domain.CharacterRepository {
	return dupChars{s.Store.Characters()}
}

func (s dupStore) WithTx(ctx context.Context, fn func(context.Context, domain.Store) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return fn(ctx, dupStore{tx})
	})
}

type dupChars struct{ domain.CharacterRepository }

func (dupChars) Create(context.Context, *domain.Character) error {
	return domain.ErrDuplicate
}

func TestHandleCallbackDuplicateRace(t *testing.T) {
	store := dupStore{memory.New()}
	provider := &fakeSSO{identity: identityFor(100, "Pilot", "h1")}
	registry := login.NewRegistry(testScopes, store.EveLogins(), store.Settings())
	resolver := NewResolver(ResolverDeps{
		Store: store, Registry: registry,
		SSO: provider, Verifier: provider, Roles: provider,
	})

	sess := session.New("sid")
	state, err := login.IssueState(sess, login.NameDefault)
	require.NoError(t, err)

	res := resolver.HandleCallback(context.Background(), sess, state, "code")
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to authenticate user.", res.Message)
	assert.Equal(t, "/#login", res.RedirectPath)

	// the transaction rolled back: no half-created player survives
	_, err = store.Players().FindByName(context.Background(), "Pilot")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
