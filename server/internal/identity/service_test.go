package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestHasPermission(t *testing.T) {
	codes := []string{"nodes:read", "users:read"}

	if !HasPermission(codes, "users:read") {
		t.Error("HasPermission() = false, want true for a held code")
	}
	if !HasPermission(codes, "missing:code", "nodes:read") {
		t.Error("HasPermission() = false, want true when any required code matches")
	}
	if HasPermission(codes, "nodes:create") {
		t.Error("HasPermission() = true, want false for an unheld code")
	}
	if HasPermission(nil, "nodes:read") {
		t.Error("HasPermission(nil, ...) = true, want false")
	}
}

func TestNodePermissionCodes(t *testing.T) {
	id := uuid.New()

	read := NodeReadCode(id)
	write := NodeWriteCode(id)

	if read == write {
		t.Error("NodeReadCode and NodeWriteCode produced the same code")
	}
	if read != "node:read:"+id.String() {
		t.Errorf("NodeReadCode() = %q, want node:read:%s", read, id)
	}
	if write != "node:write:"+id.String() {
		t.Errorf("NodeWriteCode() = %q, want node:write:%s", write, id)
	}
}

func TestHasAnyWithPrefix(t *testing.T) {
	id := uuid.New()
	codes := []string{NodeReadCode(id)}

	if !HasAnyWithPrefix(codes, "node:read:") {
		t.Error("HasAnyWithPrefix() = false, want true when a code matches the prefix")
	}
	if HasAnyWithPrefix(codes, "node:write:") {
		t.Error("HasAnyWithPrefix() = true, want false when no code matches the prefix")
	}
	if HasAnyWithPrefix(nil, "node:read:") {
		t.Error("HasAnyWithPrefix(nil, ...) = true, want false")
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Admin@Example.com": "admin@example.com",
		"  user@test.io  ":  "user@test.io",
		"already@lower.com": "already@lower.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
