// Package account resolves a verified SSO identity into player/character
// state: creating accounts, attaching alts, re-parenting transferred
// characters, and storing service tokens.
package account

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/groups"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/metrics"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/session"
	"github.com/evecore/evecore/internal/sso"
)

// Stage of the callback state machine, recorded for logging.
type Stage string

const (
	StageStarted          Stage = "started"
	StageStateVerified    Stage = "state-verified"
	StageTokenExchanged   Stage = "token-exchanged"
	StageIdentityVerified Stage = "identity-verified"
	StageScopeChecked     Stage = "scope-checked"
	StageResolved         Stage = "resolved"
	StageRolesSynced      Stage = "roles-synced"
	StageCompleted        Stage = "completed"
)

// Result is the terminal outcome of one callback. Success/Message go into
// the session result slot; RedirectPath is where the browser is sent.
type Result struct {
	Success      bool
	Message      string
	RedirectPath string
	CharacterID  int64 // 0 unless a default/managed login succeeded
	Stage        Stage
}

// User-facing outcome messages.
const (
	msgLoginSuccess   = "Login successful."
	msgLoginFailed    = "Failed to authenticate user."
	msgAltSuccess     = "Character added to player account."
	msgAltFailed      = "Failed to add alt to account."
	msgAltNotLoggedIn = "Not logged in, login first."
	msgAltClaimed     = "Character already belongs to another account."
	msgAltDisabled    = "Login with alt characters is disabled."
	msgMailSuccess    = "Mail character authenticated."
	msgMailFailed     = "Failed to add mail character."
	msgDirectorOK     = "ESI token for character with director role added."
	msgDirectorFailed = "Failed to add director character."
	msgTokenAdded     = "ESI token added."
	msgTokenNotOnAcct = "ESI token not added: character not found on this account, please add it first."
	msgTokenNoRoles   = "ESI token not added: character does not have required role(s)."
	msgStateMismatch  = "OAuth state mismatch."
	msgExchangeFailed = "Failed to get the access token."
	msgVerifyFailed   = "Failed to verify the identity."
	msgScopeMismatch  = "Required scopes do not match granted scopes."
	msgGenericFailed  = "Authentication failed, please try again."
)

// Exchanger trades an authorization code for a token pair.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*sso.TokenPair, error)
}

// Resolver drives the callback from state verification to the session
// result. No persistent writes happen before the Resolved stage; the write
// phase runs in a single transaction.
type Resolver struct {
	store    domain.Store
	registry *login.Registry
	sso      Exchanger
	verifier sso.IdentityVerifier
	roles    sso.RoleVerifier

	newEngine func(domain.Store) *groups.Engine
}

type ResolverDeps struct {
	Store     domain.Store
	Registry  *login.Registry
	SSO       Exchanger
	Verifier  sso.IdentityVerifier
	Roles     sso.RoleVerifier
	NewEngine func(domain.Store) *groups.Engine
}

func NewResolver(d ResolverDeps) *Resolver {
	newEngine := d.NewEngine
	if newEngine == nil {
		newEngine = func(s domain.Store) *groups.Engine {
			return groups.NewEngine(s, 0)
		}
	}
	return &Resolver{
		store:     d.Store,
		registry:  d.Registry,
		sso:       d.SSO,
		verifier:  d.Verifier,
		roles:     d.Roles,
		newEngine: newEngine,
	}
}

// HandleCallback runs the whole state machine for one SSO callback and
// always returns a terminal Result; errors are folded into it. The caller
// writes the result slot and issues the redirect.
func (r *Resolver) HandleCallback(ctx context.Context, sess *session.Session, receivedState, code string) *Result {
	start := time.Now()
	defer func() { metrics.LoginDuration.Observe(time.Since(start).Seconds()) }()
	stage := StageStarted

	// Recover the variant from the stored state before verification so a
	// failure still redirects to the right front-end path.
	redirect := "/"
	storedName := login.VariantFromState(sess.GetString(session.KeyAuthState))

	variantName, err := login.VerifyState(sess, receivedState)
	if err != nil {
		return r.fail(ctx, stage, storedName, redirect, msgStateMismatch, err)
	}
	stage = StageStateVerified

	variant, err := r.registry.Lookup(ctx, variantName)
	if err != nil {
		// Unknown variant or managed switch flipped mid-flight.
		return r.fail(ctx, stage, variantName, redirect, msgGenericFailed, err)
	}
	redirect = variant.RedirectPath

	pair, err := r.sso.Exchange(ctx, code)
	if err != nil {
		return r.fail(ctx, stage, variantName, redirect, msgExchangeFailed, err)
	}
	stage = StageTokenExchanged

	identity, err := r.verifier.VerifyIdentity(ctx, pair.AccessToken)
	if err != nil {
		return r.fail(ctx, stage, variantName, redirect, msgVerifyFailed, err)
	}
	stage = StageIdentityVerified

	if !login.ScopesMatch(identity.Scopes, variant.Scopes) {
		return r.fail(ctx, stage, variantName, redirect, msgScopeMismatch, login.ErrScopeMismatch)
	}
	stage = StageScopeChecked

	res := &Result{RedirectPath: redirect, Stage: stage}
	err = r.store.WithTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return r.resolve(ctx, tx, sess, variant, identity, pair, res)
	})
	if err != nil {
		// Includes the unique-violation loser of two racing callbacks: the
		// transaction rolled back cleanly, the user just retries.
		return r.fail(ctx, res.Stage, variantName, redirect, orMessage(res.Message, msgGenericFailed), err)
	}
	res.Stage = StageCompleted

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	metrics.LoginAttempts.WithLabelValues(variantName, outcome).Inc()

	logger.From(ctx).Info("login completed",
		logger.Component("account"),
		logger.Variant(variantName),
		logger.CharacterID(identity.CharacterID),
		logger.Any("success", res.Success),
	)
	return res
}

// resolve runs the Resolved branch and the role/group sync inside one
// transaction. It fills res; returning an error rolls everything back.
func (r *Resolver) resolve(ctx context.Context, tx domain.Store, sess *session.Session,
	variant *login.Variant, identity *sso.Identity, pair *sso.TokenPair, res *Result) error {

	engine := r.newEngine(tx)

	switch variant.Kind {
	case login.KindAuthenticate:
		playerID, err := r.authenticate(ctx, tx, identity, pair, variant.Name, res)
		if err != nil || !res.Success {
			return err
		}
		res.Stage = StageResolved
		if err := syncAll(ctx, engine, playerID); err != nil {
			res.Message = msgLoginFailed
			return err
		}
		res.Stage = StageRolesSynced

	case login.KindAddAlt:
		playerID, err := r.addAlt(ctx, tx, sess, identity, pair, variant.Name, res)
		if err != nil || !res.Success {
			return err
		}
		res.Stage = StageResolved
		if err := syncAll(ctx, engine, playerID); err != nil {
			res.Message = msgAltFailed
			return err
		}
		res.Stage = StageRolesSynced

	case login.KindMail:
		if err := r.storeServiceToken(ctx, tx, sess, variant, identity, pair,
			domain.SettingMailCharacterID, domain.RoleSettings, res); err != nil {
			return err
		}
		res.Stage = StageRolesSynced

	case login.KindDirector:
		if err := r.storeServiceToken(ctx, tx, sess, variant, identity, pair,
			domain.SettingDirectorCharacterID, "", res); err != nil {
			return err
		}
		res.Stage = StageRolesSynced

	case login.KindCustom:
		playerID, err := r.addCustomToken(ctx, tx, sess, variant, identity, pair, res)
		if err != nil || !res.Success {
			return err
		}
		res.Stage = StageResolved
		if err := syncAll(ctx, engine, playerID); err != nil {
			res.Message = msgGenericFailed
			return err
		}
		res.Stage = StageRolesSynced
	}
	return nil
}

func syncAll(ctx context.Context, engine *groups.Engine, playerID int64) error {
	if err := engine.SyncRoles(ctx, playerID); err != nil {
		return err
	}
	return engine.SyncGroups(ctx, playerID)
}

// authenticate handles default and managed logins: first login creates a
// player with a main character; an owner-hash change moves the character to
// a fresh account with a provenance row; otherwise tokens refresh in place.
// Returns the player id owning the character so the caller can sync it.
func (r *Resolver) authenticate(ctx context.Context, tx domain.Store,
	identity *sso.Identity, pair *sso.TokenPair, variantName string, res *Result) (int64, error) {

	char, err := tx.Characters().Get(ctx, identity.CharacterID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		char, err = r.createPlayerWithMain(ctx, tx, identity)
		if err != nil {
			res.Message = msgLoginFailed
			return 0, err
		}

	case err != nil:
		res.Message = msgLoginFailed
		return 0, err

	case char.OwnerHash != identity.OwnerHash:
		char, err = r.moveToNewAccount(ctx, tx, char, identity)
		if err != nil {
			res.Message = msgLoginFailed
			return 0, err
		}

	default:
		// Existing character, unchanged owner.
		if disabled, err := r.altLoginDisabled(ctx, tx); err != nil {
			res.Message = msgLoginFailed
			return 0, err
		} else if disabled && !char.Main {
			res.Success = false
			res.Message = msgAltDisabled
			return 0, nil
		}
	}

	if err := r.updateCharacterAndToken(ctx, tx, char, identity, pair, variantName); err != nil {
		res.Message = msgLoginFailed
		return 0, err
	}

	player, err := tx.Players().Get(ctx, char.PlayerID)
	if err != nil {
		res.Message = msgLoginFailed
		return 0, err
	}
	player.LoginCount++
	if err := tx.Players().Update(ctx, player); err != nil {
		res.Message = msgLoginFailed
		return 0, err
	}

	res.Success = true
	res.Message = msgLoginSuccess
	res.CharacterID = char.ID
	return char.PlayerID, nil
}

// addAlt attaches the character to the player of the current session.
func (r *Resolver) addAlt(ctx context.Context, tx domain.Store, sess *session.Session,
	identity *sso.Identity, pair *sso.TokenPair, variantName string, res *Result) (int64, error) {

	current, err := currentPlayer(ctx, tx, sess)
	if err != nil {
		if errors.Is(err, errNotAuthenticated) {
			res.Success = false
			res.Message = msgAltNotLoggedIn
			return 0, nil
		}
		res.Message = msgAltFailed
		return 0, err
	}

	alt, err := tx.Characters().Get(ctx, identity.CharacterID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		alt = &domain.Character{
			ID:       identity.CharacterID,
			PlayerID: current.ID,
			Name:     identity.CharacterName,
			Created:  time.Now(),
		}
		if err := tx.Characters().Create(ctx, alt); err != nil {
			res.Message = msgAltFailed
			return 0, err
		}

	case err != nil:
		res.Message = msgAltFailed
		return 0, err

	case alt.PlayerID != current.ID:
		if alt.OwnerHash == identity.OwnerHash {
			// Same live identity claimed by a second account: rejected.
			// Ownership only moves when the provider reports a new owner.
			res.Success = false
			res.Message = msgAltClaimed
			return 0, nil
		}
		alt.Main = false
		if err := r.moveCharacter(ctx, tx, alt, current.ID, domain.RemovedReasonOwnerChanged); err != nil {
			res.Message = msgAltFailed
			return 0, err
		}
	}

	if err := r.updateCharacterAndToken(ctx, tx, alt, identity, pair, variantName); err != nil {
		res.Message = msgAltFailed
		return 0, err
	}

	res.Success = true
	res.Message = msgAltSuccess
	return current.ID, nil
}

// storeServiceToken handles mail and director logins: no player-facing
// character is created; the token lands in a system-configuration slot for
// background jobs. requiredRole gates mail logins to settings admins;
// director logins are gated on the in-game role claim instead.
func (r *Resolver) storeServiceToken(ctx context.Context, tx domain.Store, sess *session.Session,
	variant *login.Variant, identity *sso.Identity, pair *sso.TokenPair,
	slot, requiredRole string, res *Result) error {

	failMsg := msgMailFailed
	okMsg := msgMailSuccess
	if variant.Kind == login.KindDirector {
		failMsg = msgDirectorFailed
		okMsg = msgDirectorOK
	}

	if requiredRole != "" {
		player, err := currentPlayer(ctx, tx, sess)
		if err != nil || !player.HasRole(requiredRole) {
			res.Success = false
			res.Message = failMsg
			return nil
		}
	}

	if len(variant.EveRoles) > 0 {
		ok, err := r.roles.VerifyRoles(ctx, identity.CharacterID, pair.AccessToken, variant.EveRoles)
		if err != nil || !ok {
			if err != nil {
				logger.From(ctx).Warn("role verification failed",
					logger.Component("account"), logger.CharacterID(identity.CharacterID), logger.Err(err))
			}
			res.Success = false
			res.Message = failMsg
			return nil
		}
	}

	if err := tx.Settings().Set(ctx, slot, strconv.FormatInt(identity.CharacterID, 10)); err != nil {
		res.Message = failMsg
		return err
	}
	if err := tx.EsiTokens().Upsert(ctx, &domain.EsiToken{
		CharacterID:  identity.CharacterID,
		EveLogin:     variant.Name,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Scopes:       joinScopes(identity.Scopes),
		Valid:        true,
		ValidChanged: time.Now(),
		HasRoles:     len(variant.EveRoles) > 0,
	}); err != nil {
		res.Message = failMsg
		return err
	}

	res.Success = true
	res.Message = okMsg
	return nil
}

// addCustomToken refreshes a plugin-variant token for a character that must
// already sit on the authenticated account.
func (r *Resolver) addCustomToken(ctx context.Context, tx domain.Store, sess *session.Session,
	variant *login.Variant, identity *sso.Identity, pair *sso.TokenPair, res *Result) (int64, error) {

	current, err := currentPlayer(ctx, tx, sess)
	if err != nil {
		if errors.Is(err, errNotAuthenticated) {
			res.Success = false
			res.Message = msgAltNotLoggedIn
			return 0, nil
		}
		res.Message = msgGenericFailed
		return 0, err
	}

	char, err := tx.Characters().Get(ctx, identity.CharacterID)
	if err != nil || char.PlayerID != current.ID {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			res.Message = msgGenericFailed
			return 0, err
		}
		res.Success = false
		res.Message = msgTokenNotOnAcct
		return 0, nil
	}

	if len(variant.EveRoles) > 0 {
		ok, err := r.roles.VerifyRoles(ctx, identity.CharacterID, pair.AccessToken, variant.EveRoles)
		if err != nil || !ok {
			res.Success = false
			res.Message = msgTokenNoRoles
			return 0, nil
		}
	}

	if err := tx.EsiTokens().Upsert(ctx, &domain.EsiToken{
		CharacterID:  char.ID,
		EveLogin:     variant.Name,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Scopes:       joinScopes(identity.Scopes),
		Valid:        true,
		ValidChanged: time.Now(),
		HasRoles:     len(variant.EveRoles) > 0,
	}); err != nil {
		res.Message = msgGenericFailed
		return 0, err
	}

	res.Success = true
	res.Message = msgTokenAdded
	return current.ID, nil
}

func (r *Resolver) createPlayerWithMain(ctx context.Context, tx domain.Store, identity *sso.Identity) (*domain.Character, error) {
	player := &domain.Player{
		Name:   identity.CharacterName,
		Status: domain.PlayerStatusStandard,
	}
	if err := tx.Players().Create(ctx, player); err != nil {
		return nil, err
	}
	char := &domain.Character{
		ID:       identity.CharacterID,
		PlayerID: player.ID,
		Name:     identity.CharacterName,
		Main:     true,
		Created:  time.Now(),
	}
	if err := tx.Characters().Create(ctx, char); err != nil {
		return nil, err
	}
	return char, nil
}

// moveToNewAccount re-parents a character whose owner hash changed during a
// default login: it gets a brand-new player account, the old one keeps its
// other characters (and is kept even when empty, for audit).
func (r *Resolver) moveToNewAccount(ctx context.Context, tx domain.Store,
	char *domain.Character, identity *sso.Identity) (*domain.Character, error) {

	newPlayer := &domain.Player{
		Name:   identity.CharacterName,
		Status: domain.PlayerStatusStandard,
	}
	if err := tx.Players().Create(ctx, newPlayer); err != nil {
		return nil, err
	}

	oldPlayerID := char.PlayerID
	char.Main = true
	if err := r.moveCharacter(ctx, tx, char, newPlayer.ID, domain.RemovedReasonOwnerChanged); err != nil {
		return nil, err
	}

	// The old account lost a character; repair its main flag and groups.
	if err := assureMain(ctx, tx, oldPlayerID); err != nil {
		return nil, err
	}
	if err := syncAll(ctx, r.newEngine(tx), oldPlayerID); err != nil {
		return nil, err
	}
	return char, nil
}

// moveCharacter is the two-phase re-parenting: detach, attach, provenance.
// Runs inside the caller's transaction so the character has exactly one
// owner at every observable instant.
func (r *Resolver) moveCharacter(ctx context.Context, tx domain.Store,
	char *domain.Character, newPlayerID int64, reason string) error {

	oldPlayerID := char.PlayerID
	char.PlayerID = newPlayerID
	if err := tx.Characters().Update(ctx, char); err != nil {
		return err
	}

	newID := newPlayerID
	rc := &domain.RemovedCharacter{
		ID:            uuid.NewString(),
		CharacterID:   char.ID,
		CharacterName: char.Name,
		OldPlayerID:   oldPlayerID,
		NewPlayerID:   &newID,
		Reason:        reason,
		RemovedAt:     time.Now(),
	}
	if err := tx.RemovedCharacters().Create(ctx, rc); err != nil {
		return err
	}

	if err := assureMain(ctx, tx, oldPlayerID); err != nil {
		return err
	}

	logger.From(ctx).Info("character moved",
		logger.Component("account"),
		logger.CharacterID(char.ID),
		logger.PlayerID(newPlayerID),
		logger.String("reason", reason),
	)
	return nil
}

// updateCharacterAndToken refreshes the character row and the variant token
// from a fresh authentication.
func (r *Resolver) updateCharacterAndToken(ctx context.Context, tx domain.Store,
	char *domain.Character, identity *sso.Identity, pair *sso.TokenPair, variantName string) error {

	char.Name = identity.CharacterName
	char.OwnerHash = identity.OwnerHash
	char.LastLogin = time.Now()
	char.ValidToken = true
	char.ValidTokenTime = time.Now()
	if err := tx.Characters().Update(ctx, char); err != nil {
		return err
	}

	return tx.EsiTokens().Upsert(ctx, &domain.EsiToken{
		CharacterID:  char.ID,
		EveLogin:     variantName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		Scopes:       joinScopes(identity.Scopes),
		Valid:        true,
		ValidChanged: time.Now(),
	})
}

func (r *Resolver) altLoginDisabled(ctx context.Context, tx domain.Store) (bool, error) {
	v, err := tx.Settings().Get(ctx, domain.SettingDisableAltLogin)
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// assureMain makes the oldest remaining character main when the account
// lost its main, and renames the account after it.
func assureMain(ctx context.Context, tx domain.Store, playerID int64) error {
	chars, err := tx.Characters().ListByPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	var oldest *domain.Character
	for _, c := range chars {
		if c.Main {
			return nil
		}
		if oldest == nil || c.Created.Before(oldest.Created) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil // empty account is left intact for audit
	}
	oldest.Main = true
	if err := tx.Characters().Update(ctx, oldest); err != nil {
		return err
	}
	player, err := tx.Players().Get(ctx, playerID)
	if err != nil {
		return err
	}
	player.Name = oldest.Name
	return tx.Players().Update(ctx, player)
}

func (r *Resolver) fail(ctx context.Context, stage Stage, variant, redirect, message string, err error) *Result {
	if variant == "" {
		variant = "unknown"
	}
	metrics.LoginAttempts.WithLabelValues(variant, "failure").Inc()
	logger.From(ctx).Warn("login failed",
		logger.Component("account"),
		logger.Variant(variant),
		logger.Stage(string(stage)),
		logger.Err(err),
	)
	return &Result{
		Success:      false,
		Message:      message,
		RedirectPath: redirect,
		Stage:        StageCompleted,
	}
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func orMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
