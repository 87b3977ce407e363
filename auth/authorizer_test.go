package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/PipeOpsHQ/segb/auth/authtest"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestAuthorize_NoSecretsFailsOpen(t *testing.T) {
	a := NewAuthorizer(Secrets{}, WithClock(clock))
	d := a.Authorize("", RoleAdmin)
	if d.Outcome != Granted || !d.FailOpen {
		t.Fatalf("expected fail-open grant, got %+v", d)
	}
	for _, role := range AllRoles {
		if !d.Principal.Has(role) {
			t.Fatalf("anonymous principal lacks %s", role)
		}
	}
	if !a.Disabled() {
		t.Fatalf("expected authorizer to report disabled")
	}
}

func TestAuthorize_SharedSecretTable(t *testing.T) {
	const secret = "shared"
	a := NewAuthorizer(Secrets{Shared: secret}, WithClock(clock))
	later := fixedNow.Add(time.Hour)

	cases := []struct {
		name     string
		token    string
		required []Role
		want     Outcome
		reason   Reason
	}{
		{"missing token", "", []Role{RoleLogger}, Unauthorized, ReasonMissing},
		{"garbage", "not-a-jwt", []Role{RoleLogger}, Unauthorized, ReasonInvalid},
		{"wrong secret", authtest.Token(t, "other", "bob", []string{"admin"}, later), []Role{RoleLogger}, Unauthorized, ReasonInvalid},
		{"expired", authtest.Token(t, secret, "bob", []string{"logger"}, fixedNow.Add(-time.Minute)), []Role{RoleLogger}, Unauthorized, ReasonExpired},
		{"logger on logger route", authtest.Token(t, secret, "bob", []string{"logger"}, later), []Role{RoleLogger}, Granted, ReasonNone},
		{"logger on auditor route", authtest.Token(t, secret, "bob", []string{"logger"}, later), []Role{RoleReader}, Forbidden, ReasonNone},
		{"auditor alias", authtest.Token(t, secret, "eve", []string{"auditor"}, later), []Role{RoleReader}, Granted, ReasonNone},
		{"admin everywhere", authtest.Token(t, secret, "root", []string{"admin"}, later), []Role{RoleReader}, Granted, ReasonNone},
		{"no roles claim", authtest.Token(t, secret, "nobody", nil, later), []Role{RoleReader}, Forbidden, ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := a.Authorize(tc.token, tc.required...)
			if d.Outcome != tc.want || d.Reason != tc.reason {
				t.Fatalf("got %s/%q, want %s/%q", d.Outcome, d.Reason, tc.want, tc.reason)
			}
			if d.FailOpen {
				t.Fatalf("configured secret must never fail open")
			}
		})
	}
}

func TestAuthorize_SharedSecretAcceptsSingleRoleString(t *testing.T) {
	const secret = "shared"
	a := NewAuthorizer(Secrets{Shared: secret}, WithClock(clock))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "bob",
		"roles":    "loggers",
		"exp":      fixedNow.Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if d := a.Authorize(tok, RoleLogger); d.Outcome != Granted {
		t.Fatalf("expected grant for single role string, got %s", d.Outcome)
	}
}

func TestAuthorize_RejectsOtherAlgorithms(t *testing.T) {
	const secret = "shared"
	a := NewAuthorizer(Secrets{Shared: secret}, WithClock(clock))
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"username": "bob", "roles": []string{"admin"}}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if d := a.Authorize(tok, RoleAdmin); d.Outcome != Unauthorized {
		t.Fatalf("expected HS512 token to be rejected, got %s", d.Outcome)
	}
}

func TestAuthorize_PerRoleSecretsTable(t *testing.T) {
	secrets := Secrets{Readers: "r-secret", Loggers: "l-secret", Admins: "a-secret"}
	a := NewAuthorizer(secrets, WithClock(clock))
	later := fixedNow.Add(time.Hour)

	reader := authtest.Token(t, secrets.Readers, "eve", nil, later)
	logger := authtest.Token(t, secrets.Loggers, "bob", nil, later)
	admin := authtest.Token(t, secrets.Admins, "root", nil, later)
	expiredLogger := authtest.Token(t, secrets.Loggers, "bob", nil, fixedNow.Add(-time.Second))
	unknown := authtest.Token(t, "elsewhere", "mallory", nil, later)

	cases := []struct {
		name     string
		token    string
		required []Role
		want     Outcome
		reason   Reason
		role     Role
	}{
		{"logger writes", logger, []Role{RoleLogger}, Granted, ReasonNone, RoleLogger},
		{"logger reads history", logger, []Role{RoleReader}, Forbidden, ReasonNone, RoleLogger},
		{"logger clears graph", logger, []Role{RoleAdmin}, Forbidden, ReasonNone, RoleLogger},
		{"reader writes", reader, []Role{RoleLogger}, Forbidden, ReasonNone, RoleReader},
		{"reader reads", reader, []Role{RoleReader}, Granted, ReasonNone, RoleReader},
		{"admin writes", admin, []Role{RoleLogger}, Granted, ReasonNone, RoleAdmin},
		{"admin reads", admin, []Role{RoleReader}, Granted, ReasonNone, RoleAdmin},
		{"expired logger", expiredLogger, []Role{RoleLogger}, Unauthorized, ReasonExpired, ""},
		{"unknown signer", unknown, []Role{RoleReader}, Unauthorized, ReasonInvalid, ""},
		{"missing", "", []Role{RoleAdmin}, Unauthorized, ReasonMissing, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := a.Authorize(tc.token, tc.required...)
			if d.Outcome != tc.want || d.Reason != tc.reason {
				t.Fatalf("got %s/%q, want %s/%q", d.Outcome, d.Reason, tc.want, tc.reason)
			}
			if tc.role != "" && !d.Principal.Has(tc.role) {
				t.Fatalf("principal %+v lacks %s", d.Principal, tc.role)
			}
		})
	}
}

func TestAuthorize_PerRoleFailsOpenForRolesWithoutSecret(t *testing.T) {
	secrets := Secrets{Readers: "r-secret", Admins: "a-secret"}
	a := NewAuthorizer(secrets, WithClock(clock))
	later := fixedNow.Add(time.Hour)
	admin := authtest.Token(t, secrets.Admins, "root", nil, later)
	reader := authtest.Token(t, secrets.Readers, "eve", nil, later)

	cases := []struct {
		name     string
		token    string
		required []Role
		want     Outcome
		failOpen bool
		user     string
	}{
		{"logger route without token", "", []Role{RoleLogger}, Granted, true, "anonymous"},
		{"logger route with admin token", admin, []Role{RoleLogger}, Granted, false, "root"},
		{"logger route with reader token", reader, []Role{RoleLogger}, Granted, true, "anonymous"},
		{"logger route with garbage", "not-a-jwt", []Role{RoleLogger}, Granted, true, "anonymous"},
		{"reader route without token", "", []Role{RoleReader}, Unauthorized, false, ""},
		{"reader route with reader token", reader, []Role{RoleReader}, Granted, false, "eve"},
		{"admin route without token", "", []Role{RoleAdmin}, Unauthorized, false, ""},
		{"admin route with reader token", reader, []Role{RoleAdmin}, Forbidden, false, "eve"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := a.Authorize(tc.token, tc.required...)
			if d.Outcome != tc.want || d.FailOpen != tc.failOpen {
				t.Fatalf("got %s fail-open=%v, want %s fail-open=%v", d.Outcome, d.FailOpen, tc.want, tc.failOpen)
			}
			if tc.user != "" && d.Principal.Username != tc.user {
				t.Fatalf("got principal %+v, want %s", d.Principal, tc.user)
			}
		})
	}

	if diff := cmp.Diff([]Role{RoleLogger}, a.OpenRoles()); diff != "" {
		t.Fatalf("open roles mismatch (-want +got):\n%s", diff)
	}
}

func TestAuthorize_AdminSecretAloneLeavesOtherRolesOpen(t *testing.T) {
	a := NewAuthorizer(Secrets{Loggers: "l-secret", Admins: "a-secret"}, WithClock(clock))
	if d := a.Authorize("", RoleReader); d.Outcome != Granted || !d.FailOpen {
		t.Fatalf("reader route has no reader secret and must fail open, got %+v", d)
	}
	if d := a.Authorize("", RoleLogger); d.Outcome != Unauthorized {
		t.Fatalf("logger route has a secret and must require a token, got %+v", d)
	}
	if d := a.Authorize("", RoleAdmin); d.Outcome != Unauthorized {
		t.Fatalf("admin route has a secret and must require a token, got %+v", d)
	}
}

func TestOpenRoles_SharedSecretAndFullyConfigured(t *testing.T) {
	if got := NewAuthorizer(Secrets{Shared: "s"}).OpenRoles(); len(got) != 0 {
		t.Fatalf("shared secret leaves nothing open, got %v", got)
	}
	all := Secrets{Readers: "r", Loggers: "l", Admins: "a"}
	if got := NewAuthorizer(all).OpenRoles(); len(got) != 0 {
		t.Fatalf("every role has a secret, got %v", got)
	}
	if diff := cmp.Diff(AllRoles, NewAuthorizer(Secrets{}).OpenRoles()); diff != "" {
		t.Fatalf("no secrets opens every role (-want +got):\n%s", diff)
	}
}

func TestPrincipal_Descriptor(t *testing.T) {
	p := Principal{Username: "bob", Name: "Bob", Roles: []Role{RoleLogger}}
	if got := p.Descriptor(); got != `{"username":"bob","name":"Bob","roles":["logger"]}` {
		t.Fatalf("unexpected descriptor %s", got)
	}
}

func TestParseRole(t *testing.T) {
	for raw, want := range map[string]Role{"Auditors": RoleReader, "readers": RoleReader, "LOGGER": RoleLogger, "admins": RoleAdmin} {
		got, ok := ParseRole(raw)
		if !ok || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseRole("root"); ok {
		t.Fatalf("unknown role accepted")
	}
}
