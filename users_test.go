package main

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"expensemgr/models"
)

func TestUserRoutesRequireAdmin(t *testing.T) {
	r := testRouter(t)
	routes := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/users", ""},
		{http.MethodGet, "/api/users/5", ""},
		{http.MethodPost, "/api/users", `{}`},
		{http.MethodPut, "/api/users/5", `{}`},
		{http.MethodDelete, "/api/users/5", ""},
		{http.MethodPost, "/api/users/5/reset-password", `{"newPassword":"secret1"}`},
	}
	for _, role := range []string{models.RoleEmployee, models.RoleManager} {
		tok := tokenFor(t, 3, role)
		for _, rt := range routes {
			resp := performRequest(r, rt.method, rt.path, strings.NewReader(rt.body), tok, "application/json")
			if resp.Code != http.StatusForbidden {
				t.Errorf("%s %s %s: status=%d want 403", role, rt.method, rt.path, resp.Code)
			}
		}
	}
}

func TestUserHandlersValidateBeforeLookup(t *testing.T) {
	r := testRouter(t)
	tok := tokenFor(t, 1, models.RoleAdmin)
	cases := []struct {
		name, method, path, body string
	}{
		{"create missing fields", http.MethodPost, "/api/users", `{"email":"new@example.com"}`},
		{"create bad role", http.MethodPost, "/api/users", `{"name":"N","email":"n@example.com","password":"secret1","role":"owner"}`},
		{"create short password", http.MethodPost, "/api/users", `{"name":"N","email":"n@example.com","password":"abc","role":"employee"}`},
		{"reset short password", http.MethodPost, "/api/users/5/reset-password", `{"newPassword":"abc"}`},
		{"reset missing password", http.MethodPost, "/api/users/5/reset-password", `{}`},
		{"bad id", http.MethodGet, "/api/users/abc", ""},
	}
	for _, tc := range cases {
		resp := performRequest(r, tc.method, tc.path, strings.NewReader(tc.body), tok, "application/json")
		if resp.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d want 400 body=%s", tc.name, resp.Code, resp.Body.String())
		}
	}
}

func TestUserUpdates(t *testing.T) {
	const admin, target uint = 1, 5
	got, err := userUpdates(updateUserRequest{Name: ptr(" Dana "), Role: ptr(models.RoleManager), ManagerID: ptr(uint(0))}, target, admin)
	if err != nil {
		t.Fatalf("userUpdates: %v", err)
	}
	if got["name"] != "Dana" || got["role"] != models.RoleManager {
		t.Errorf("unexpected updates %v", got)
	}
	if v, ok := got["manager_id"]; !ok || v != nil {
		t.Errorf("managerId 0 should clear the manager, got %v", got)
	}
	if got, _ := userUpdates(updateUserRequest{ManagerID: ptr(uint(2))}, target, admin); got["manager_id"] != uint(2) {
		t.Errorf("manager_id = %v", got["manager_id"])
	}

	cases := []struct {
		name   string
		req    updateUserRequest
		target uint
		want   error
	}{
		{"nothing", updateUserRequest{}, target, errNoUserFields},
		{"self manager", updateUserRequest{ManagerID: ptr(target)}, target, errSelfManager},
		{"blank name", updateUserRequest{Name: ptr("  ")}, target, nil},
		{"demote self", updateUserRequest{Role: ptr(models.RoleEmployee)}, admin, nil},
		{"deactivate self", updateUserRequest{Active: ptr(false)}, admin, nil},
	}
	for _, tc := range cases {
		_, err := userUpdates(tc.req, tc.target, admin)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestAdminUserViewHidesHash(t *testing.T) {
	mgr := uint(2)
	v := adminUserView(models.User{ID: 5, Name: "Dana", Email: "d@example.com", Role: models.RoleEmployee, ManagerID: &mgr, PasswordHash: []byte("h"), Active: true})
	if _, ok := v["passwordHash"]; ok {
		t.Fatalf("view exposes hash: %v", v)
	}
	if v["managerId"] != &mgr || v["active"] != true {
		t.Fatalf("unexpected view %v", v)
	}
}
