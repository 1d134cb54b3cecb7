package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auth-apps/rbacd/pkg/middleware"
	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
	"github.com/auth-apps/rbacd/pkg/session"
)

// Server wires the HTTP routes to the store, cache and session registry
type Server struct {
	router   *mux.Router
	store    *rbac.Store
	cache    *rbac.Cache
	sessions *session.Registry
	gate     *middleware.Gate
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewServer creates the API server and registers its routes
func NewServer(store *rbac.Store, cache *rbac.Cache, sessions *session.Registry, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    store,
		cache:    cache,
		sessions: sessions,
		gate:     middleware.NewGate(sessions, logger),
		logger:   logger.WithComponent("api"),
		metrics:  metrics,
	}

	s.router.Use(middleware.RequestLogging(logger))
	if metrics != nil {
		s.router.Use(middleware.Metrics(metrics))
	}

	s.setupRoutes()
	return s
}

// protect chains Require and a permission check around a handler
func (s *Server) protect(code string, h http.HandlerFunc) http.Handler {
	return s.gate.Require(s.gate.RequirePermission(code)(h))
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Authentication
	v1.HandleFunc("/users/login", s.login).Methods("POST")
	v1.HandleFunc("/users/logout", s.logout).Methods("POST")
	v1.Handle("/users/me", s.gate.Require(http.HandlerFunc(s.me))).Methods("GET")
	v1.Handle("/users/permissions", s.gate.Require(http.HandlerFunc(s.myPermissions))).Methods("GET")

	// Users
	v1.Handle("/users", s.protect(rbac.PermUsersList, s.listUsers)).Methods("GET")
	v1.Handle("/users", s.protect(rbac.PermUsersEdit, s.createUser)).Methods("POST")
	v1.Handle("/users/{id}", s.protect(rbac.PermUsersList, s.getUser)).Methods("GET")
	v1.Handle("/users/{id}", s.protect(rbac.PermUsersEdit, s.updateUser)).Methods("PUT")
	v1.Handle("/users/{id}", s.protect(rbac.PermUsersEdit, s.deleteUser)).Methods("DELETE")

	// Roles
	v1.Handle("/roles", s.protect(rbac.PermRolesList, s.listRoles)).Methods("GET")
	v1.Handle("/roles", s.protect(rbac.PermRolesEdit, s.createRole)).Methods("POST")
	v1.Handle("/roles/{id}", s.protect(rbac.PermRolesList, s.getRole)).Methods("GET")
	v1.Handle("/roles/{id}", s.protect(rbac.PermRolesEdit, s.updateRole)).Methods("PUT")
	v1.Handle("/roles/{id}", s.protect(rbac.PermRolesEdit, s.deleteRole)).Methods("DELETE")
	v1.Handle("/roles/{id}/permissions", s.protect(rbac.PermRolesList, s.getRolePermissions)).Methods("GET")
	v1.Handle("/roles/{id}/permissions", s.protect(rbac.PermRolesEdit, s.linkRolePermission)).Methods("POST")
	v1.Handle("/roles/{id}/permissions/{permissionId}", s.protect(rbac.PermRolesEdit, s.unlinkRolePermission)).Methods("DELETE")

	// Permissions
	v1.Handle("/permissions", s.protect(rbac.PermPermissionsList, s.listPermissions)).Methods("GET")
	v1.Handle("/permissions", s.protect(rbac.PermPermissionsEdit, s.createPermission)).Methods("POST")
	v1.Handle("/permissions/{id}", s.protect(rbac.PermPermissionsList, s.getPermission)).Methods("GET")
	v1.Handle("/permissions/{id}", s.protect(rbac.PermPermissionsEdit, s.updatePermission)).Methods("PUT")
	v1.Handle("/permissions/{id}", s.protect(rbac.PermPermissionsEdit, s.deletePermission)).Methods("DELETE")
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// refreshCache rebuilds the RBAC cache after a mutation. Refresh
// failures are logged but do not fail the request; the write already
// committed and the periodic refresh will converge the cache.
func (s *Server) refreshCache(r *http.Request) {
	if err := s.cache.RefreshAll(r.Context(), "mutation"); err != nil {
		s.logger.WithError(err).Error("Cache refresh after mutation failed")
	}
}
