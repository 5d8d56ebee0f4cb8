// Package domain holds the entities of the account-management core and the
// repository contracts implemented by the store adapters.
package domain

import "time"

// PlayerStatus is the account self-service mode.
type PlayerStatus string

const (
	// PlayerStatusStandard accounts manage group membership via applications.
	PlayerStatusStandard PlayerStatus = "standard"
	// PlayerStatusManaged accounts are administered externally; the group
	// engine and the deactivation policy leave them alone.
	PlayerStatusManaged PlayerStatus = "managed"
)

// Player is the aggregate root: one person, owning one or more characters.
type Player struct {
	ID     int64
	Name   string
	Status PlayerStatus

	// Roles is the persisted role-name set, manual and derived combined.
	// The role engine owns the derived part.
	Roles []string

	// PasswordHash is the optional argon2id hash for the non-SSO fallback
	// login. Empty means SSO only.
	PasswordHash string

	LoginCount int
	LastUpdate time.Time

	// InvalidTokenMailSent latches the one-shot deactivation notice.
	InvalidTokenMailSent bool
}

// HasRole reports whether the player currently holds the named role.
func (p *Player) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Character is an EVE character. Its ID is externally assigned and immutable;
// it belongs to exactly one player at any instant.
type Character struct {
	ID       int64
	PlayerID int64
	Name     string
	Main     bool

	// OwnerHash is the identity fingerprint from the SSO provider. It
	// changes when the character is transferred to another EVE account.
	OwnerHash string

	Created   time.Time
	LastLogin time.Time

	// ValidToken mirrors the validity of the default-variant token and
	// ValidTokenTime records when it last flipped (deactivation policy).
	ValidToken     bool
	ValidTokenTime time.Time

	CorporationID int64 // 0 = unknown
}

// EsiToken is the stored OAuth token pair for one (character, login variant).
type EsiToken struct {
	CharacterID  int64
	EveLogin     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       string

	Valid        bool
	ValidChanged time.Time

	// HasRoles is set when the in-game roles required by the variant were
	// verified at login time.
	HasRoles bool
}

// Expired reports whether the access token needs a refresh.
func (t *EsiToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// EveLogin is a login-variant configuration record. Internal variants use
// reserved "core." names; plugins create custom ones.
type EveLogin struct {
	Name        string
	Description string

	// EsiScopes is the space-separated required scope set.
	EsiScopes string

	// EveRoles are in-game corporation roles verified before the token is
	// accepted (director logins).
	EveRoles []string

	// Roles are core role names granted while any character on the account
	// holds a valid token of this variant.
	Roles []string
}

// GroupVisibility controls who can see and apply to a group.
type GroupVisibility string

const (
	GroupVisibilityPrivate GroupVisibility = "private"
	GroupVisibilityPublic  GroupVisibility = "public"
)

// Group with its admin-configured constraint policy.
type Group struct {
	ID         int64
	Name       string
	Visibility GroupVisibility
	AutoAccept bool
	IsDefault  bool

	// RequiredGroups and ForbiddenGroups are direct, non-transitive
	// constraints evaluated by the group engine.
	RequiredGroups  []int64
	ForbiddenGroups []int64

	// Managers are player ids allowed to handle applications.
	Managers []int64
}

// ApplicationStatus of a group application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusDenied   ApplicationStatus = "denied"
)

// GroupApplication links a player to a group they asked to join. A new
// application overwrites a pending one for the same pair.
type GroupApplication struct {
	ID       int64
	PlayerID int64
	GroupID  int64
	Status   ApplicationStatus
	Created  time.Time
}

// Role is a named permission. A role with RequiredGroups is only effective
// while the player satisfies them.
type Role struct {
	Name           string
	RequiredGroups []int64
}

// Core role names.
const (
	RoleUser      = "user"
	RoleAnonymous = "anonymous"
	RoleSettings  = "settings"
)

// Removal reasons for RemovedCharacter provenance rows.
const (
	RemovedReasonOwnerChanged        = "moved-owner-changed"
	RemovedReasonMoved               = "moved"
	RemovedReasonDeletedManually     = "deleted-manually"
	RemovedReasonDeletedOwnerChanged = "deleted-owner-changed"
)

// RemovedCharacter records that a character left a player account, by
// transfer or deletion. Kept for audit; never deleted with the player.
type RemovedCharacter struct {
	ID            string // uuid
	CharacterID   int64
	CharacterName string
	OldPlayerID   int64
	NewPlayerID   *int64 // nil when the character was deleted outright
	Reason        string
	RemovedAt     time.Time
	DeletedByID   *int64 // acting admin for manual removals
}

// Corporation and Alliance carry the id→group mapping used by the
// auto-assignment pass. Their member data itself comes from ESI and is out
// of scope here.
type Corporation struct {
	ID         int64
	Name       string
	Ticker     string
	AllianceID int64 // 0 = none
	GroupIDs   []int64
}

type Alliance struct {
	ID       int64
	Name     string
	Ticker   string
	GroupIDs []int64
}

// System setting names read by the core.
const (
	SettingAllowLoginManaged       = "allow_login_managed"
	SettingGroupsRequireValidToken = "groups_require_valid_token"
	SettingAccountDeactivationDelay = "account_deactivation_delay"
	SettingDeactivationCorporations = "account_deactivation_corporations"
	SettingDeactivationAlliances    = "account_deactivation_alliances"
	SettingDisableAltLogin          = "disable_alt_login"
	SettingMailCharacterID          = "mail_character_id"
	SettingDirectorCharacterID      = "director_character_id"
)
