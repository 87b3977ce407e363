package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Username string     `json:"username"`
	Name     string     `json:"name,omitempty"`
	Roles    rolesClaim `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// rolesClaim accepts either a list of role names or a single name.
type rolesClaim []string

func (r *rolesClaim) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("roles claim must be a string or a list of strings")
	}
	*r = rolesClaim{single}
	return nil
}

type verdict int

const (
	verdictInvalid verdict = iota
	verdictExpired
	verdictValid
)

// Authorizer evaluates tokens against the configured secrets. It has no
// side effects and keeps no per-request state.
type Authorizer struct {
	secrets Secrets
	now     func() time.Time
}

type Option func(*Authorizer)

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthorizer(secrets Secrets, opts ...Option) *Authorizer {
	a := &Authorizer{secrets: secrets, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Disabled reports whether no secret is configured at all.
func (a *Authorizer) Disabled() bool { return a.secrets.IsZero() }

// SharedSecret reports whether tokens are checked against one shared
// secret carrying a roles claim.
func (a *Authorizer) SharedSecret() bool { return a.secrets.Shared != "" }

// Authorize decides whether token may call an endpoint accepting any of
// required. With a shared secret the roles come from the token's roles
// claim. With per-role secrets the roles are those whose secret verifies
// the token; a token verified only by a role that does not satisfy the
// check is Forbidden, while one no secret verifies is Unauthorized.
// When a role the check accepts has no secret of its own the check fails
// open: a token that verifies and satisfies it keeps its principal, any
// other request gets the Anonymous principal.
func (a *Authorizer) Authorize(token string, required ...Role) Decision {
	if a.secrets.Shared != "" {
		return a.authorizeShared(strings.TrimSpace(token), required)
	}
	return a.authorizePerRole(strings.TrimSpace(token), required)
}

func (a *Authorizer) authorizeShared(token string, required []Role) Decision {
	if token == "" {
		return Decision{Outcome: Unauthorized, Reason: ReasonMissing}
	}
	c, v := a.verify(token, a.secrets.Shared)
	switch v {
	case verdictExpired:
		return Decision{Outcome: Unauthorized, Reason: ReasonExpired}
	case verdictInvalid:
		return Decision{Outcome: Unauthorized, Reason: ReasonInvalid}
	}

	var roles []Role
	for _, raw := range c.Roles {
		if role, ok := ParseRole(raw); ok && !containsRole(roles, role) {
			roles = append(roles, role)
		}
	}
	return a.decide(principalFrom(c, roles), required)
}

func (a *Authorizer) authorizePerRole(token string, required []Role) Decision {
	if a.openFor(required) {
		if token != "" {
			if d := a.verifyPerRole(token, required); d.Outcome == Granted {
				return d
			}
		}
		return Decision{Outcome: Granted, Principal: Anonymous(), FailOpen: true}
	}
	if token == "" {
		return Decision{Outcome: Unauthorized, Reason: ReasonMissing}
	}
	return a.verifyPerRole(token, required)
}

func (a *Authorizer) verifyPerRole(token string, required []Role) Decision {

	var (
		roles   []Role
		valid   *claims
		expired bool
	)
	for _, role := range AllRoles {
		secret := a.secrets.forRole(role)
		if secret == "" {
			continue
		}
		c, v := a.verify(token, secret)
		switch v {
		case verdictValid:
			roles = append(roles, role)
			if valid == nil {
				valid = c
			}
		case verdictExpired:
			expired = true
		}
	}
	if valid == nil {
		if expired {
			return Decision{Outcome: Unauthorized, Reason: ReasonExpired}
		}
		return Decision{Outcome: Unauthorized, Reason: ReasonInvalid}
	}
	return a.decide(principalFrom(valid, roles), required)
}

func (a *Authorizer) decide(p Principal, required []Role) Decision {
	if len(required) == 0 || p.Satisfies(required...) {
		return Decision{Outcome: Granted, Principal: p}
	}
	return Decision{Outcome: Forbidden, Principal: p}
}

// openFor reports whether a role accepted by the check has no secret, so no
// token could ever be verified as that role.
func (a *Authorizer) openFor(required []Role) bool {
	if len(required) == 0 {
		return a.secrets.IsZero()
	}
	for _, r := range required {
		if a.secrets.forRole(r) == "" {
			return true
		}
	}
	return false
}

// OpenRoles lists the roles whose checks fail open. Nothing is open with a
// shared secret.
func (a *Authorizer) OpenRoles() []Role {
	if a.SharedSecret() {
		return nil
	}
	var open []Role
	for _, r := range AllRoles {
		if a.secrets.forRole(r) == "" {
			open = append(open, r)
		}
	}
	return open
}

func (a *Authorizer) verify(token, secret string) (*claims, verdict) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	switch {
	case err == nil:
		return c, verdictValid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, verdictExpired
	default:
		return nil, verdictInvalid
	}
}

func principalFrom(c *claims, roles []Role) Principal {
	p := Principal{Username: c.Username, Name: c.Name, Roles: roles}
	if p.Username == "" {
		p.Username = c.Subject
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time.UTC()
		p.ExpiresAt = &exp
	}
	return p
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
