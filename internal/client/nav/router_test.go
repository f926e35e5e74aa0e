package nav

import (
	"testing"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

var allKinds = []model.AccountKind{
	model.KindSuperAdmin,
	model.KindAdmin,
	model.KindTeacher,
	model.KindStudent,
	model.KindParent,
}

func TestEveryKindHasASubtree(t *testing.T) {
	seen := map[string]model.AccountKind{}
	for _, kind := range allKinds {
		home := HomePath(kind)
		if home == LoginPath {
			t.Fatalf("kind %s has no subtree", kind)
		}
		if other, dup := seen[home]; dup {
			t.Fatalf("kinds %s and %s share subtree %s", kind, other, home)
		}
		seen[home] = kind
	}
}

func TestOwnSubtreeIsReachable(t *testing.T) {
	for _, kind := range allKinds {
		home := HomePath(kind)
		for _, path := range []string{home, home + "/dashboard", home + "/settings/profile"} {
			decision := Route(kind, path)
			if decision.Redirect != "" {
				t.Fatalf("kind %s must reach %s, got redirect %s", kind, path, decision.Redirect)
			}
		}
	}
}

func TestForeignPathsRedirectToOwnHome(t *testing.T) {
	for _, kind := range allKinds {
		home := HomePath(kind)
		for _, other := range allKinds {
			if other == kind {
				continue
			}
			decision := Route(kind, HomePath(other)+"/anything")
			if decision.Redirect != home {
				t.Fatalf("kind %s on %s's path: redirect %q, want own home %q",
					kind, other, decision.Redirect, home)
			}
		}
		// Arbitrary paths outside every subtree also land home.
		if decision := Route(kind, "/totally/elsewhere"); decision.Redirect != home {
			t.Fatalf("kind %s: expected redirect to %s, got %q", kind, home, decision.Redirect)
		}
	}
}

func TestNoSessionOnlyReachesAuth(t *testing.T) {
	if decision := Route("", LoginPath); decision.Redirect != "" {
		t.Fatalf("login page must be reachable without a session")
	}
	if decision := Route("", RegisterPath); decision.Redirect != "" {
		t.Fatalf("register page must be reachable without a session")
	}
	for _, path := range []string{"/teacher", "/super-admin/schools", "/anything"} {
		if decision := Route("", path); decision.Redirect != LoginPath {
			t.Fatalf("path %s without session: redirect %q, want %q", path, decision.Redirect, LoginPath)
		}
	}
}

func TestUnknownKindFailsClosed(t *testing.T) {
	if decision := Route("intruder", "/admin"); decision.Redirect != LoginPath {
		t.Fatalf("unknown kind must redirect to login, got %q", decision.Redirect)
	}
}

func TestSubtreePrefixIsSegmentAware(t *testing.T) {
	// /admin must not leak into /administrators-like paths.
	if decision := Route(model.KindAdmin, "/administration"); decision.Redirect == "" {
		t.Fatalf("prefix match must be segment aware")
	}
}
