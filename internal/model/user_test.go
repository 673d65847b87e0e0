package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUserJSONOmitsPasswordHash(t *testing.T) {
	u := User{
		ID:           1,
		Provider:     ProviderLocal,
		ProviderID:   "a@x.com",
		Email:        "a@x.com",
		Name:         "Ann",
		PasswordHash: "$2a$04$secret",
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	out := string(b)
	if strings.Contains(out, "secret") || strings.Contains(out, "password") {
		t.Errorf("serialized user leaks the password hash: %s", out)
	}
	for _, key := range []string{`"id"`, `"provider"`, `"providerId"`, `"email"`, `"name"`, `"avatarUrl"`} {
		if !strings.Contains(out, key) {
			t.Errorf("serialized user is missing %s: %s", key, out)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !(&User{Provider: ProviderLocal}).IsLocal() {
		t.Error("IsLocal() = false for a local user")
	}
	if (&User{Provider: ProviderGoogle}).IsLocal() {
		t.Error("IsLocal() = true for a google user")
	}
}
