// Package nav maps an account kind to its exclusive navigation subtree. The
// mapping is a total table over the five kinds; there is no default branch
// that could silently widen access.
package nav

import (
	"strings"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	authSubtree  = "/auth"
)

var subtrees = map[model.AccountKind]string{
	model.KindSuperAdmin: "/super-admin",
	model.KindAdmin:      "/admin",
	model.KindTeacher:    "/teacher",
	model.KindStudent:    "/student",
	model.KindParent:     "/parent",
}

// Decision is the routing outcome: the subtree the caller may browse and,
// when the requested path falls outside it, where to send them instead.
type Decision struct {
	Subtree  string
	Redirect string // empty when the requested path is allowed
}

// HomePath is the landing page inside a role's subtree.
func HomePath(kind model.AccountKind) string {
	subtree, ok := subtrees[kind]
	if !ok {
		// Unknown kinds fail closed to the login page.
		return LoginPath
	}
	return subtree
}

// Route decides whether requestedPath is reachable for the given account
// kind. A nil session (kind == "") may only reach the auth subtree; a
// mismatched subtree redirects to the caller's own home, never to another
// role's pages.
func Route(kind model.AccountKind, requestedPath string) Decision {
	if kind == "" {
		if within(requestedPath, authSubtree) {
			return Decision{Subtree: authSubtree}
		}
		return Decision{Subtree: authSubtree, Redirect: LoginPath}
	}

	subtree, ok := subtrees[kind]
	if !ok {
		return Decision{Subtree: authSubtree, Redirect: LoginPath}
	}
	if within(requestedPath, subtree) {
		return Decision{Subtree: subtree}
	}
	return Decision{Subtree: subtree, Redirect: subtree}
}

func within(path, subtree string) bool {
	return path == subtree || strings.HasPrefix(path, subtree+"/")
}
