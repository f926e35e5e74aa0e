package auth

import (
	"context"
	"errors"
	"testing"
)

type fakeGrants struct {
	ids   []string
	err   error
	calls int
}

func (f *fakeGrants) ListGrantedSchoolIDs(_ context.Context, _ string) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func superAdminClaims() *Claims {
	return &Claims{
		AccountID:   "sa-1",
		AccountKind: "super-admin",
		Role:        "super-admin",
		TenantID:    "tenant-1",
	}
}

func TestResolveSuperAdminWithoutGrants(t *testing.T) {
	grants := &fakeGrants{}
	scope, err := Resolve(context.Background(), superAdminClaims(), grants)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if scope.Kind != ScopeAllSchools {
		t.Fatalf("expected ScopeAllSchools, got %v", scope.Kind)
	}
	if !scope.AllowsSchool("any-school") {
		t.Fatalf("all-schools scope must allow any school in tenant")
	}
	if scope.SchoolIDs() != nil {
		t.Fatalf("all-schools scope must not enumerate schools")
	}
}

func TestResolveSuperAdminWithGrants(t *testing.T) {
	grants := &fakeGrants{ids: []string{"school-a", "school-b"}}
	scope, err := Resolve(context.Background(), superAdminClaims(), grants)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if scope.Kind != ScopeSchoolSet {
		t.Fatalf("expected ScopeSchoolSet, got %v", scope.Kind)
	}
	if !scope.AllowsSchool("school-a") || !scope.AllowsSchool("school-b") {
		t.Fatalf("granted schools must be allowed")
	}
	if scope.AllowsSchool("school-c") {
		t.Fatalf("ungranted school must be denied")
	}

	// Removing a grant narrows the resolved set on re-resolution.
	grants.ids = []string{"school-a"}
	scope, err = Resolve(context.Background(), superAdminClaims(), grants)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if scope.AllowsSchool("school-b") {
		t.Fatalf("removed grant must no longer be allowed")
	}
}

func TestResolveEmptyGrantSetAfterDeletionGrantsNothing(t *testing.T) {
	// A ScopeSchoolSet that lost its last member must not silently widen;
	// only the explicit all-schools value allows everything.
	scope := ScopeSet{Kind: ScopeSchoolSet, TenantID: "tenant-1", Schools: map[string]struct{}{}}
	if scope.AllowsSchool("school-a") {
		t.Fatalf("empty explicit set must deny")
	}
}

func TestResolveSingleSchoolRoles(t *testing.T) {
	for _, kind := range []string{"admin", "teacher", "student", "parent"} {
		claims := &Claims{
			AccountID:   "acc-1",
			AccountKind: kind,
			TenantID:    "tenant-1",
			SchoolID:    "school-1",
		}
		grants := &fakeGrants{ids: []string{"ignored"}}
		scope, err := Resolve(context.Background(), claims, grants)
		if err != nil {
			t.Fatalf("resolve error for %s: %v", kind, err)
		}
		if scope.Kind != ScopeSingleSchool {
			t.Fatalf("expected ScopeSingleSchool for %s", kind)
		}
		if grants.calls != 0 {
			t.Fatalf("grant lookup must only happen for super-admins")
		}
		if !scope.AllowsSchool("school-1") || scope.AllowsSchool("school-2") {
			t.Fatalf("single-school scope wrong for %s", kind)
		}
	}
}

func TestResolveMissingSchoolAssignment(t *testing.T) {
	claims := &Claims{AccountID: "acc-1", AccountKind: "teacher", TenantID: "tenant-1"}
	if _, err := Resolve(context.Background(), claims, &fakeGrants{}); !errors.Is(err, ErrNoSchoolAssignment) {
		t.Fatalf("expected ErrNoSchoolAssignment, got %v", err)
	}
}

func TestResolvePropagatesGrantErrors(t *testing.T) {
	grants := &fakeGrants{err: errors.New("store down")}
	if _, err := Resolve(context.Background(), superAdminClaims(), grants); err == nil {
		t.Fatalf("expected grant source error to propagate")
	}
}
