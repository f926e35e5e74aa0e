package auth

import (
	"context"
	"errors"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

// ScopeKind is an explicit tag: "all schools" is a value of its own, never
// inferred from an empty school set at check sites.
type ScopeKind int

const (
	// ScopeAllSchools grants every school in the claim's tenant. Produced
	// for a super-admin with zero school access grants.
	ScopeAllSchools ScopeKind = iota + 1
	// ScopeSchoolSet grants exactly the schools listed in grants. An empty
	// set after grant deletion grants nothing; widening back to the whole
	// tenant requires an explicit clear of the grant rows.
	ScopeSchoolSet
	// ScopeSingleSchool is the non-super-admin case: the account's own
	// school assignment.
	ScopeSingleSchool
)

type ScopeSet struct {
	Kind     ScopeKind
	TenantID string
	Schools  map[string]struct{}
}

var ErrNoSchoolAssignment = errors.New("account has no school assignment")

// GrantSource lists the school IDs granted to a super-admin. Implemented by
// the repository and decorated by the redis scope cache.
type GrantSource interface {
	ListGrantedSchoolIDs(ctx context.Context, superAdminID string) ([]string, error)
}

// Resolve computes the caller's scope from its claims. It is pure apart from
// one grant lookup, performed only for super-admins, and is safe to call
// repeatedly and concurrently.
func Resolve(ctx context.Context, claims *Claims, grants GrantSource) (ScopeSet, error) {
	if claims.AccountKind == string(model.KindSuperAdmin) {
		ids, err := grants.ListGrantedSchoolIDs(ctx, claims.AccountID)
		if err != nil {
			return ScopeSet{}, err
		}
		if len(ids) == 0 {
			return ScopeSet{Kind: ScopeAllSchools, TenantID: claims.TenantID}, nil
		}
		schools := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			schools[id] = struct{}{}
		}
		return ScopeSet{Kind: ScopeSchoolSet, TenantID: claims.TenantID, Schools: schools}, nil
	}

	if claims.SchoolID == "" {
		return ScopeSet{}, ErrNoSchoolAssignment
	}
	return ScopeSet{
		Kind:     ScopeSingleSchool,
		TenantID: claims.TenantID,
		Schools:  map[string]struct{}{claims.SchoolID: {}},
	}, nil
}

// AllowsSchool reports whether the scope covers a school. For ScopeAllSchools
// the school must still be verified to belong to the scope's tenant by the
// caller's query.
func (s ScopeSet) AllowsSchool(schoolID string) bool {
	switch s.Kind {
	case ScopeAllSchools:
		return true
	case ScopeSchoolSet, ScopeSingleSchool:
		_, ok := s.Schools[schoolID]
		return ok
	default:
		return false
	}
}

func (s ScopeSet) AllowsTenant(tenantID string) bool {
	return s.TenantID != "" && s.TenantID == tenantID
}

// SchoolIDs returns the explicit school list, or nil for ScopeAllSchools so
// repository queries can skip the school filter and constrain by tenant only.
func (s ScopeSet) SchoolIDs() []string {
	if s.Kind == ScopeAllSchools {
		return nil
	}
	ids := make([]string, 0, len(s.Schools))
	for id := range s.Schools {
		ids = append(ids, id)
	}
	return ids
}
