package users_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
	"covoiturage/internal/users/usertest"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/validation"
)

func newService(t *testing.T, opts ...users.Option) (*users.Service, *usertest.Store) {
	t.Helper()
	store := usertest.NewStore()
	opts = append([]users.Option{users.WithHashCost(bcrypt.MinCost)}, opts...)
	return users.NewService(store, opts...), store
}

func registerReq(phone string) users.CreateRequest {
	return users.CreateRequest{
		Name:                 validation.Of("Awa"),
		Username:             validation.Of("awa"),
		PhoneNumber:          validation.Of(phone),
		Password:             validation.Of("secret1"),
		PasswordConfirmation: validation.Of("secret1"),
	}
}

func fieldErrors(t *testing.T, err error) apperr.Fields {
	t.Helper()
	ae, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("err = %v (%T), want *apperr.Error", err, err)
	}
	return ae.Fields
}

func TestRegister(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, registerReq("690 00 00 01"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.PhoneNumber != "+237690000001" {
		t.Errorf("phone = %q, want normalized", u.PhoneNumber)
	}
	if u.Role != authz.RolePassenger {
		t.Errorf("role = %q, want passenger", u.Role)
	}
	if u.PasswordHash == "secret1" {
		t.Error("password stored in plain text")
	}
	if store.Len() != 1 {
		t.Errorf("store has %d users, want 1", store.Len())
	}

	_, err = svc.Register(ctx, registerReq("0690000001"))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("duplicate phone err = %v, want conflict", err)
	}
	if _, ok := fieldErrors(t, err)["phone_number"]; !ok {
		t.Error("conflict not reported on phone_number")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*users.CreateRequest)
		field  string
	}{
		{"missing name", func(r *users.CreateRequest) { r.Name = validation.Field[string]{} }, "name"},
		{"blank username", func(r *users.CreateRequest) { r.Username = validation.Of("  ") }, "username"},
		{"short password", func(r *users.CreateRequest) {
			r.Password = validation.Of("abc")
			r.PasswordConfirmation = validation.Of("abc")
		}, "password"},
		{"unconfirmed password", func(r *users.CreateRequest) { r.PasswordConfirmation = validation.Of("other1") }, "password"},
		{"password over 72 bytes", func(r *users.CreateRequest) {
			r.Password = validation.Of(strings.Repeat("a", 73))
			r.PasswordConfirmation = r.Password
		}, "password"},
		{"oversized phone", func(r *users.CreateRequest) { r.PhoneNumber = validation.Of(strings.Repeat("6", 300)) }, "phone_number"},
		{"bad email", func(r *users.CreateRequest) { r.Email = validation.Of("nope") }, "email"},
		{"unknown role", func(r *users.CreateRequest) { r.Role = validation.Of("pilot") }, "role"},
		{"numeric name", func(r *users.CreateRequest) { r.Name = validation.Field[string]{Set: true, Invalid: true} }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			req := registerReq("690000001")
			tt.mutate(&req)

			_, err := svc.Register(context.Background(), req)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if _, ok := fieldErrors(t, err)[tt.field]; !ok {
				t.Errorf("no error on %q: %v", tt.field, fieldErrors(t, err))
			}
			if store.Len() != 0 {
				t.Error("invalid request persisted a user")
			}
		})
	}
}

func TestRegisterLongPhone(t *testing.T) {
	svc, _ := newService(t)
	long := strings.Repeat("6", 40)

	u, err := svc.Register(context.Background(), registerReq(long))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.HasSuffix(u.PhoneNumber, long) {
		t.Errorf("phone = %q", u.PhoneNumber)
	}
}

func TestPasswordAtBcryptLimit(t *testing.T) {
	svc, _ := newService(t)
	req := registerReq("690000001")
	req.Password = validation.Of(strings.Repeat("é", 36))
	req.PasswordConfirmation = req.Password

	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("72-byte password: %v", err)
	}
}

func TestCreateChecksPhone(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, registerReq("690000001")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"taken in another form", "+237690000001", "The phone number has already been taken."},
		{"letters", "69a000001", "The phone number format is invalid."},
		{"too long", "690 000 000 000 000 000 01", "The phone number must not be greater than 20 characters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, registerReq(tt.phone))
			got := fieldErrors(t, err)["phone_number"]
			if len(got) == 0 || got[0] != tt.want {
				t.Errorf("phone_number errors = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, registerReq("690000001")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(ctx, "0690000001", "secret1"); err != nil {
		t.Errorf("Authenticate with local form: %v", err)
	}
	for _, tc := range []struct{ phone, password string }{
		{"690000001", "wrong"},
		{"690000002", "secret1"},
	} {
		_, err := svc.Authenticate(ctx, tc.phone, tc.password)
		if !apperr.Is(err, apperr.KindAuthentication) {
			t.Errorf("Authenticate(%q, %q) err = %v, want authentication", tc.phone, tc.password, err)
		}
	}
}

func TestList(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"Alice", "Bob", "Alicia"} {
		store.Put(users.User{Name: name, PhoneNumber: "+2376900000" + string(rune('1'+i)), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	page, err := svc.List(ctx, users.ListParams{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0].Name != "Alicia" {
		t.Errorf("first page = %+v, want newest first", page.Items)
	}
	if page.Pagination.Total != 3 || page.Pagination.LastPage != 2 {
		t.Errorf("pagination = %+v", page.Pagination)
	}

	page, err = svc.List(ctx, users.ListParams{Search: "ALI", Page: 1, PerPage: 500})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 2 || page.Pagination.PerPage != users.MaxPerPage {
		t.Errorf("search pagination = %+v", page.Pagination)
	}

	page, err = svc.List(ctx, users.ListParams{Search: "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.LastPage != 1 || page.Pagination.CurrentPage != 1 || len(page.Items) != 0 {
		t.Errorf("empty search = %+v", page.Pagination)
	}

	page, err = svc.List(ctx, users.ListParams{Page: math.MaxInt / 100, PerPage: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 || page.Pagination.Total != 3 {
		t.Errorf("far page = %d items, %+v", len(page.Items), page.Pagination)
	}
}

func TestListSearch(t *testing.T) {
	svc, store := newService(t)
	mail := "binta@example.cm"
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", CreatedAt: at})
	store.Put(users.User{Name: "Binta", PhoneNumber: "+237677000002", Email: &mail, CreatedAt: at})
	store.Put(users.User{Name: "Chidi", PhoneNumber: "+2348030000003", CreatedAt: at})

	tests := []struct {
		search string
		want   []string
	}{
		{"237690", []string{"Awa"}},
		{"+237", []string{"Awa", "Binta"}},
		{"example.cm", []string{"Binta"}},
		{"BINTA@", []string{"Binta"}},
		{"  803  ", []string{"Chidi"}},
		{"%", nil},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			page, err := svc.List(context.Background(), users.ListParams{Search: tt.search})
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, u := range page.Items {
				got = append(got, u.Name)
			}
			if !sameNames(got, tt.want) {
				t.Errorf("List(%q) = %v, want %v", tt.search, got, tt.want)
			}
			if page.Pagination.Total != int64(len(tt.want)) {
				t.Errorf("total = %d, want %d", page.Pagination.Total, len(tt.want))
			}
		})
	}
}

func sameNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := map[string]bool{}
	for _, n := range got {
		seen[n] = true
	}
	for _, n := range want {
		if !seen[n] {
			return false
		}
	}
	return true
}

func TestUpdate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	owner := store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", Role: authz.RolePassenger})
	other := store.Put(users.User{Name: "Ben", PhoneNumber: "+237690000002", Role: authz.RolePassenger})
	admin := store.Put(users.User{Name: "Root", PhoneNumber: "+237690000003", Role: authz.RoleAdmin})

	asOwner := authz.Identity{UserID: owner.ID, Role: owner.Role}
	asOther := authz.Identity{UserID: other.ID, Role: other.Role}
	asAdmin := authz.Identity{UserID: admin.ID, Role: admin.Role}

	t.Run("owner partial update", func(t *testing.T) {
		u, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{
			Name:     validation.Of(" Awa N. "),
			Latitude: validation.Of(4.05),
			IsOnline: validation.Of(true),
		})
		if err != nil {
			t.Fatal(err)
		}
		if u.Name != "Awa N." || u.Latitude == nil || *u.Latitude != 4.05 || !u.IsOnline {
			t.Errorf("updated = %+v", u)
		}
		if u.PhoneNumber != owner.PhoneNumber {
			t.Error("absent field was changed")
		}
	})

	t.Run("null clears coordinate", func(t *testing.T) {
		u, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{Latitude: validation.NullOf[float64]()})
		if err != nil {
			t.Fatal(err)
		}
		if u.Latitude != nil {
			t.Errorf("latitude = %v, want nil", *u.Latitude)
		}
	})

	t.Run("other user forbidden", func(t *testing.T) {
		_, err := svc.Update(ctx, asOther, owner.ID, users.UpdateRequest{Name: validation.Of("x")})
		if !apperr.Is(err, apperr.KindAuthorization) {
			t.Errorf("err = %v, want authorization", err)
		}
	})

	t.Run("non-admin role change forbidden", func(t *testing.T) {
		_, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{Role: validation.Of("admin")})
		if !apperr.Is(err, apperr.KindAuthorization) {
			t.Errorf("err = %v, want authorization", err)
		}
	})

	t.Run("admin changes role", func(t *testing.T) {
		u, err := svc.Update(ctx, asAdmin, owner.ID, users.UpdateRequest{Role: validation.Of("driver")})
		if err != nil {
			t.Fatal(err)
		}
		if u.Role != authz.RoleDriver {
			t.Errorf("role = %q, want driver", u.Role)
		}
	})

	t.Run("out of range longitude", func(t *testing.T) {
		_, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{Longitude: validation.Of(181.0)})
		if _, ok := fieldErrors(t, err)["longitude"]; !ok {
			t.Errorf("err = %v, want longitude error", err)
		}
	})

	t.Run("phone taken by other", func(t *testing.T) {
		_, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{PhoneNumber: validation.Of("0690000002")})
		if _, ok := fieldErrors(t, err)["phone_number"]; !ok {
			t.Errorf("err = %v, want phone_number error", err)
		}
	})

	t.Run("own phone kept", func(t *testing.T) {
		if _, err := svc.Update(ctx, asOwner, owner.ID, users.UpdateRequest{PhoneNumber: validation.Of("690000001")}); err != nil {
			t.Errorf("re-sending own phone: %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := svc.Update(ctx, asAdmin, "nope", users.UpdateRequest{})
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("err = %v, want not found", err)
		}
	})
}

func TestDelete(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	target := store.Put(users.User{Name: "Awa", PhoneNumber: "+237690000001", Role: authz.RolePassenger})
	admin := store.Put(users.User{Name: "Root", PhoneNumber: "+237690000003", Role: authz.RoleAdmin})
	asAdmin := authz.Identity{UserID: admin.ID, Role: authz.RoleAdmin}

	tests := []struct {
		name   string
		caller authz.Identity
		id     string
		want   apperr.Kind
	}{
		{"non-admin", authz.Identity{UserID: target.ID, Role: authz.RolePassenger}, admin.ID, apperr.KindAuthorization},
		{"self", asAdmin, admin.ID, apperr.KindValidation},
		{"missing", asAdmin, "nope", apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Delete(ctx, tt.caller, tt.id)
			if !apperr.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if err := svc.Delete(ctx, asAdmin, target.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d users, want 1", store.Len())
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, registerReq("690000001"))
	if err != nil {
		t.Fatal(err)
	}
	caller := authz.Identity{UserID: u.ID, Role: u.Role}

	err = svc.ChangePassword(ctx, caller, users.ChangePasswordRequest{
		CurrentPassword:         validation.Of("wrong1"),
		NewPassword:             validation.Of("newpass"),
		NewPasswordConfirmation: validation.Of("newpass"),
	})
	if _, ok := fieldErrors(t, err)["current_password"]; !ok {
		t.Fatalf("err = %v, want current_password error", err)
	}

	long := strings.Repeat("x", 73)
	err = svc.ChangePassword(ctx, caller, users.ChangePasswordRequest{
		CurrentPassword:         validation.Of("secret1"),
		NewPassword:             validation.Of(long),
		NewPasswordConfirmation: validation.Of(long),
	})
	if got := fieldErrors(t, err)["new_password"]; len(got) == 0 || got[0] != "The new password must not be greater than 72 bytes." {
		t.Fatalf("new_password errors = %v", got)
	}

	err = svc.ChangePassword(ctx, caller, users.ChangePasswordRequest{
		CurrentPassword:         validation.Of("secret1"),
		NewPassword:             validation.Of("newpass"),
		NewPasswordConfirmation: validation.Of("newpass"),
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "690000001", "newpass"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "690000001", "secret1"); err == nil {
		t.Error("old password still accepted")
	}
}

func TestStats(t *testing.T) {
	douala, err := time.LoadLocation("Africa/Douala")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	// Wednesday 2026-03-11 10:00 local.
	now := time.Date(2026, 3, 11, 10, 0, 0, 0, douala)
	svc, store := newService(t, users.WithLocation(douala), users.WithClock(func() time.Time { return now }))

	admin := store.Put(users.User{Name: "Root", PhoneNumber: "+1", Role: authz.RoleAdmin, CreatedAt: now.Add(-time.Hour)})
	store.Put(users.User{Name: "Mon", PhoneNumber: "+2", CreatedAt: time.Date(2026, 3, 9, 8, 0, 0, 0, douala)})
	store.Put(users.User{Name: "Mar1", PhoneNumber: "+3", CreatedAt: time.Date(2026, 3, 1, 0, 30, 0, 0, douala)})
	store.Put(users.User{Name: "Feb", PhoneNumber: "+4", CreatedAt: time.Date(2026, 2, 28, 23, 0, 0, 0, douala)})

	st, err := svc.Stats(context.Background(), authz.Identity{UserID: admin.ID, Role: authz.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	want := users.Stats{TotalUsers: 4, UsersToday: 1, UsersThisWeek: 2, UsersThisMonth: 3}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	_, err = svc.Stats(context.Background(), authz.Identity{UserID: "x", Role: authz.RoleDriver})
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("non-admin err = %v, want authorization", err)
	}
}
