// Package login is the catalog of login variants and the CSRF state token
// that ties an SSO callback back to the variant and session that started it.
package login

import (
	"context"
	"errors"
	"strings"

	"github.com/evecore/evecore/internal/domain"
)

// Reserved internal variant names. Custom variants created by plugins must
// not use the "core." prefix.
const (
	NameDefault    = "core.default"
	NameAlt        = "core.alt"
	NameManaged    = "core.managed"
	NameManagedAlt = "core.managed-alt"
	NameMail       = "core.mail"
	NameDirector   = "core.director"

	InternalPrefix = "core."
)

// ESI scopes requested by the internal variants.
const (
	ScopeMail       = "esi-mail.send_mail.v1"
	ScopeRoles      = "esi-characters.read_corporation_roles.v1"
	ScopeTracking   = "esi-corporations.track_members.v1"
	ScopeStructures = "esi-universe.read_structures.v1"
)

// In-game role required for director logins.
const EveRoleDirector = "Director"

// Kind selects the resolver branch a variant takes after identity
// verification.
type Kind int

const (
	// KindAuthenticate creates or logs in a player account (default, managed).
	KindAuthenticate Kind = iota
	// KindAddAlt attaches the character to the already-authenticated player.
	KindAddAlt
	// KindMail stores the mail service token in a system slot.
	KindMail
	// KindDirector stores a director service token, gated on in-game roles.
	KindDirector
	// KindCustom refreshes an extra ESI token on an existing character.
	KindCustom
)

// Variant is one resolved login configuration.
type Variant struct {
	Name         string
	Kind         Kind
	Scopes       []string
	Roles        []string // roles granted while a valid token of this variant exists
	EveRoles     []string // in-game roles verified before accepting the token
	ManagedGated bool
	RedirectPath string
}

var (
	// ErrUnknownVariant maps to 404 on /login/{name}.
	ErrUnknownVariant = errors.New("login: unknown variant")
	// ErrVariantForbidden maps to 403: managed logins are switched off.
	ErrVariantForbidden = errors.New("login: variant forbidden")
)

// Registry resolves variant names to configurations. Internal variants are
// static; custom ones come from the EveLogin store.
type Registry struct {
	defaultScopes []string
	logins        domain.EveLoginRepository
	settings      domain.SettingsRepository
}

// NewRegistry builds a registry. defaultScopes is the space-separated scope
// set requested for default and alt logins.
func NewRegistry(defaultScopes string, logins domain.EveLoginRepository, settings domain.SettingsRepository) *Registry {
	return &Registry{
		defaultScopes: SplitScopes(defaultScopes),
		logins:        logins,
		settings:      settings,
	}
}

// Lookup resolves a variant by name. Managed variants fail closed with
// ErrVariantForbidden while the system switch is off; this runs before the
// redirect to the provider, not only at callback time.
func (r *Registry) Lookup(ctx context.Context, name string) (*Variant, error) {
	switch name {
	case NameDefault:
		return &Variant{Name: name, Kind: KindAuthenticate, Scopes: r.defaultScopes,
			Roles: []string{domain.RoleUser}, RedirectPath: "/#login"}, nil
	case NameAlt:
		return &Variant{Name: name, Kind: KindAddAlt, Scopes: r.defaultScopes,
			RedirectPath: "/#login-alt"}, nil
	case NameManaged:
		if err := r.checkManaged(ctx); err != nil {
			return nil, err
		}
		return &Variant{Name: name, Kind: KindAuthenticate,
			Roles: []string{domain.RoleUser}, ManagedGated: true, RedirectPath: "/#login"}, nil
	case NameManagedAlt:
		if err := r.checkManaged(ctx); err != nil {
			return nil, err
		}
		return &Variant{Name: name, Kind: KindAddAlt, ManagedGated: true,
			RedirectPath: "/#login-alt"}, nil
	case NameMail:
		return &Variant{Name: name, Kind: KindMail, Scopes: []string{ScopeMail},
			RedirectPath: "/#login-mail"}, nil
	case NameDirector:
		return &Variant{Name: name, Kind: KindDirector,
			Scopes:   []string{ScopeRoles, ScopeTracking, ScopeStructures},
			EveRoles: []string{EveRoleDirector}, RedirectPath: "/#login-director"}, nil
	}

	if strings.HasPrefix(name, InternalPrefix) {
		// Reserved namespace, but not a known internal variant.
		return nil, ErrUnknownVariant
	}

	rec, err := r.logins.Get(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnknownVariant
		}
		return nil, err
	}
	return &Variant{
		Name:         rec.Name,
		Kind:         KindCustom,
		Scopes:       SplitScopes(rec.EsiScopes),
		Roles:        rec.Roles,
		EveRoles:     rec.EveRoles,
		RedirectPath: "/#login-custom",
	}, nil
}

func (r *Registry) checkManaged(ctx context.Context) error {
	v, err := r.settings.Get(ctx, domain.SettingAllowLoginManaged)
	if err != nil {
		return err
	}
	if v != "1" {
		return ErrVariantForbidden
	}
	return nil
}

// SplitScopes splits a space-separated scope string, dropping empties.
func SplitScopes(s string) []string {
	return strings.Fields(s)
}
