package authz

import (
	"context"
	"testing"

	"covoiturage/pkg/apperr"
)

func TestRoleNames(t *testing.T) {
	want := map[string]bool{"admin": true, "passenger": true, "driver": true}
	got := RoleNames()
	if len(got) != len(want) {
		t.Fatalf("RoleNames() = %v", got)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected role %q", name)
		}
	}
	if !want[string(DefaultRole)] {
		t.Errorf("default role %q not in set", DefaultRole)
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("Require() on bare context = %v, want authentication", err)
	}

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RolePassenger})
	id, err := Require(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "u1" || id.Role != RolePassenger {
		t.Errorf("Require() = %+v", id)
	}
}

func TestCanUpdateUser(t *testing.T) {
	tests := []struct {
		name   string
		caller Identity
		target string
		want   apperr.Kind
		ok     bool
	}{
		{"Owner", Identity{UserID: "u1", Role: RolePassenger}, "u1", 0, true},
		{"Admin", Identity{UserID: "a1", Role: RoleAdmin}, "u1", 0, true},
		{"Other passenger", Identity{UserID: "u2", Role: RolePassenger}, "u1", apperr.KindAuthorization, false},
		{"Other driver", Identity{UserID: "d1", Role: RoleDriver}, "u1", apperr.KindAuthorization, false},
		{"Unknown role", Identity{UserID: "x", Role: "root"}, "u1", apperr.KindAuthorization, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanUpdateUser(tt.caller, tt.target)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !apperr.Is(err, tt.want) {
				t.Fatalf("error = %v, want kind %v", err, tt.want)
			}
		})
	}
}

func TestCanDeleteUser(t *testing.T) {
	admin := Identity{UserID: "a1", Role: RoleAdmin}

	if err := CanDeleteUser(admin, "u1"); err != nil {
		t.Fatalf("admin deleting another user: %v", err)
	}
	if err := CanDeleteUser(admin, "a1"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("admin self-delete should be rejected with 422, got %v", err)
	}
	if err := CanDeleteUser(Identity{UserID: "u1", Role: RolePassenger}, "u1"); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("non-admin delete should be forbidden, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no identity")
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleDriver})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u1" || id.Role != RoleDriver {
		t.Fatalf("FromContext() = %+v, %v", id, ok)
	}
}
