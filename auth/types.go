// Package auth decides whether a bearer token may use an endpoint.
package auth

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleReader Role = "reader"
	RoleLogger Role = "logger"
	RoleAdmin  Role = "admin"
)

// AllRoles is ordered from least to most privileged.
var AllRoles = []Role{RoleReader, RoleLogger, RoleAdmin}

// ParseRole accepts the role names used in token claims, singular or
// plural; "auditor" is the reader role.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "reader", "readers", "auditor", "auditors":
		return RoleReader, true
	case "logger", "loggers":
		return RoleLogger, true
	case "admin", "admins":
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	return r == RoleReader || r == RoleLogger || r == RoleAdmin
}

// Principal is the identity decoded from one request's token.
type Principal struct {
	Username  string     `json:"username"`
	Name      string     `json:"name,omitempty"`
	Roles     []Role     `json:"roles"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (p Principal) Has(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Satisfies reports whether p may call an endpoint that accepts any of
// required. Admin satisfies every check.
func (p Principal) Satisfies(required ...Role) bool {
	if p.Has(RoleAdmin) {
		return true
	}
	for _, r := range required {
		if p.Has(r) {
			return true
		}
	}
	return false
}

// Descriptor is the opaque actor string kept in the audit trail.
func (p Principal) Descriptor() string {
	raw, err := json.Marshal(struct {
		Username string `json:"username"`
		Name     string `json:"name,omitempty"`
		Roles    []Role `json:"roles"`
	}{p.Username, p.Name, p.Roles})
	if err != nil {
		return p.Username
	}
	return string(raw)
}

// Anonymous is the principal granted when security is disabled.
func Anonymous() Principal {
	roles := make([]Role, len(AllRoles))
	copy(roles, AllRoles)
	return Principal{Username: "anonymous", Name: "Anonymous", Roles: roles}
}

type Outcome int

const (
	Unauthorized Outcome = iota
	Forbidden
	Granted
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthorized"
	}
}

// Reason qualifies an Unauthorized outcome. It is for logs only and never
// reaches the client.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonMissing Reason = "missing"
	ReasonInvalid Reason = "invalid"
	ReasonExpired Reason = "expired"
)

// Decision is the result of one authorization check. Principal is set for
// Granted and Forbidden; FailOpen marks a grant made without any secret.
type Decision struct {
	Outcome   Outcome
	Principal Principal
	Reason    Reason
	FailOpen  bool
}

// Secrets is the process-wide signing configuration: one shared secret
// whose tokens carry a roles claim, or one secret per role.
type Secrets struct {
	Shared  string
	Readers string
	Loggers string
	Admins  string
}

func (s Secrets) IsZero() bool {
	return s.Shared == "" && s.Readers == "" && s.Loggers == "" && s.Admins == ""
}

func (s Secrets) forRole(role Role) string {
	switch role {
	case RoleReader:
		return s.Readers
	case RoleLogger:
		return s.Loggers
	case RoleAdmin:
		return s.Admins
	default:
		return ""
	}
}
