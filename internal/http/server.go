package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pramodabacco-sudo/school-sub002/internal/auth"
	"github.com/pramodabacco-sudo/school-sub002/internal/config"
	"github.com/pramodabacco-sudo/school-sub002/internal/crypto"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
	"github.com/pramodabacco-sudo/school-sub002/internal/obs"
	"github.com/pramodabacco-sudo/school-sub002/internal/repository"
	"github.com/pramodabacco-sudo/school-sub002/internal/scopecache"
)

type Server struct {
	cfg    config.Config
	store  *repository.Store
	grants *scopecache.GrantCache
}

func NewServer(cfg config.Config, store *repository.Store, grants *scopecache.GrantCache) *Server {
	return &Server{cfg: cfg, store: store, grants: grants}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(obs.Instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", obs.Handler())

	r.Post("/auth/super-admin/register", s.handleRegister)
	r.Post("/auth/{accountKind}/login", s.handleLogin)
	r.With(s.authMiddleware).Get("/auth/super-admin/me", s.handleGetMe)

	r.Route("/schools", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireSuperAdmin).Post("/", s.handleCreateSchool)
		r.Get("/", s.handleListSchools)
		r.Get("/{schoolId}", s.handleGetSchool)
	})

	r.Route("/super-admins/{superAdminId}/school-grants", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireSuperAdmin)
		r.Put("/", s.handleReplaceSchoolGrants)
		r.Delete("/", s.handleClearSchoolGrants)
	})

	r.Route("/teachers", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListTeachers)
		r.With(s.requireAdminKind).Post("/", s.handleCreateTeacher)
		r.Get("/{teacherId}", s.handleGetTeacher)
		r.With(s.requireAdminKind).Patch("/{teacherId}", s.handlePatchTeacher)
		r.With(s.requireAdminKind).Delete("/{teacherId}", s.handleDeleteTeacher)
		r.With(s.requireAdminKind).Post("/{teacherId}/assignments", s.handleCreateAssignment)
		r.With(s.requireAdminKind).Delete("/{teacherId}/assignments/{assignmentId}", s.handleDeleteAssignment)
	})

	r.Route("/attendance/teacher", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireTeacher)
		r.Get("/classes", s.handleTeacherClasses)
		r.Get("/class-students", s.handleClassStudents)
		r.Post("/mark", s.handleMarkAttendance)
		r.Get("/report/export", s.handleExportReport)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			// Expired and tampered tokens are distinguished so clients
			// can offer "log in again" vs a hard failure.
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token_expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) requireSuperAdmin(next http.Handler) http.Handler {
	return s.requireKind(next, model.KindSuperAdmin)
}

func (s *Server) requireTeacher(next http.Handler) http.Handler {
	return s.requireKind(next, model.KindTeacher)
}

// requireAdminKind admits school admins and super-admins.
func (s *Server) requireAdminKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || (claims.AccountKind != string(model.KindAdmin) && claims.AccountKind != string(model.KindSuperAdmin)) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireKind(next http.Handler, kind model.AccountKind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.AccountKind != string(kind) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveScope computes the caller's scope through the grant cache.
func (s *Server) resolveScope(r *http.Request) (auth.ScopeSet, error) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return auth.ScopeSet{}, errors.New("missing claims")
	}
	return auth.Resolve(r.Context(), claims, s.grants)
}

// Handlers: auth

type registerRequest struct {
	TenantCode string `json:"tenantCode"`
	TenantName string `json:"tenantName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

type userSummary struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	SchoolID    *string `json:"schoolId,omitempty"`
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	AccountKind string  `json:"accountKind"`
	Role        string  `json:"role"`
}

type authResponse struct {
	Token       string      `json:"token"`
	AccountKind string      `json:"accountKind"`
	Role        string      `json:"role"`
	User        userSummary `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.TenantCode = strings.ToUpper(strings.TrimSpace(req.TenantCode))
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	fields := map[string]string{}
	if req.TenantCode == "" {
		fields["tenantCode"] = "required"
	}
	if req.TenantName == "" {
		fields["tenantName"] = "required"
	}
	if req.Email == "" {
		fields["email"] = "required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if req.FirstName == "" {
		fields["firstName"] = "required"
	}
	if req.LastName == "" {
		fields["lastName"] = "required"
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	tenant := model.Tenant{
		ID:        uuid.NewString(),
		Code:      req.TenantCode,
		Name:      req.TenantName,
		CreatedAt: now,
	}
	account := model.Account{
		ID:           uuid.NewString(),
		Kind:         model.KindSuperAdmin,
		TenantID:     tenant.ID,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.RegisterTenant(r.Context(), tenant, account); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "duplicate_code_or_email")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.writeAuthResponse(w, http.StatusCreated, account)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "accountKind")
	if !model.ValidAccountKind(kind) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	account, err := s.store.GetAccountByEmail(r.Context(), model.AccountKind(kind), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if !account.Active {
		writeError(w, http.StatusUnauthorized, "account_disabled")
		return
	}

	_ = s.store.TouchLastLogin(r.Context(), account.ID, time.Now().UTC())
	s.writeAuthResponse(w, http.StatusOK, account)
}

func (s *Server) writeAuthResponse(w http.ResponseWriter, status int, account model.Account) {
	claims := auth.Claims{
		AccountID:   account.ID,
		AccountKind: string(account.Kind),
		Role:        string(account.Kind),
		TenantID:    account.TenantID,
	}
	if account.SchoolID != nil {
		claims.SchoolID = *account.SchoolID
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, claims)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, status, authResponse{
		Token:       token,
		AccountKind: string(account.Kind),
		Role:        string(account.Kind),
		User:        summarize(account),
	})
}

func summarize(account model.Account) userSummary {
	return userSummary{
		ID:          account.ID,
		TenantID:    account.TenantID,
		SchoolID:    account.SchoolID,
		Email:       account.Email,
		FirstName:   account.FirstName,
		LastName:    account.LastName,
		AccountKind: string(account.Kind),
		Role:        string(account.Kind),
	}
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || claims.AccountKind != string(model.KindSuperAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	account, err := s.store.GetAccountByID(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	writeJSON(w, http.StatusOK, summarize(account))
}

// Handlers: schools

type createSchoolRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type schoolResponse struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

func mapSchool(school model.School) schoolResponse {
	return schoolResponse{
		ID:       school.ID,
		TenantID: school.TenantID,
		Code:     school.Code,
		Name:     school.Name,
		Type:     string(school.Type),
	}
}

func (s *Server) handleCreateSchool(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createSchoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))

	fields := map[string]string{}
	if req.Code == "" {
		fields["code"] = "required"
	}
	if req.Name == "" {
		fields["name"] = "required"
	}
	if !model.ValidSchoolType(req.Type) {
		fields["type"] = "must be one of primary, high-school, degree"
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	school := model.School{
		ID:        uuid.NewString(),
		TenantID:  claims.TenantID,
		Code:      req.Code,
		Name:      req.Name,
		Type:      model.SchoolType(req.Type),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSchool(r.Context(), school); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "duplicate_school_code")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapSchool(school))
}

func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	schools, err := s.store.ListSchools(r.Context(), scope.TenantID, scope.SchoolIDs())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]schoolResponse, 0, len(schools))
	for _, school := range schools {
		resp = append(resp, mapSchool(school))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSchool(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	schoolID := chi.URLParam(r, "schoolId")
	if !scope.AllowsSchool(schoolID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	school, err := s.store.GetSchool(r.Context(), schoolID)
	// A school outside the caller's tenant looks exactly like a missing one.
	if err != nil || !scope.AllowsTenant(school.TenantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, mapSchool(school))
}

// Handlers: school access grants

type replaceGrantsRequest struct {
	SchoolIDs []string `json:"schoolIds"`
}

func (s *Server) handleReplaceSchoolGrants(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	superAdminID := chi.URLParam(r, "superAdminId")

	target, err := s.store.GetAccountByID(r.Context(), superAdminID)
	if err != nil || target.Kind != model.KindSuperAdmin || target.TenantID != claims.TenantID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req replaceGrantsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.SchoolIDs) == 0 {
		// An empty set here is almost always a mistaken clear; the DELETE
		// endpoint is the explicit way back to full tenant access.
		writeValidationError(w, map[string]string{"schoolIds": "must not be empty; use DELETE to restore full access"})
		return
	}

	if err := s.store.ReplaceSchoolGrants(r.Context(), superAdminID, claims.TenantID, req.SchoolIDs); err != nil {
		if errors.Is(err, repository.ErrSchoolOutsideTenant) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.grants.Invalidate(r.Context(), superAdminID)

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "schoolIds": req.SchoolIDs})
}

func (s *Server) handleClearSchoolGrants(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	superAdminID := chi.URLParam(r, "superAdminId")

	target, err := s.store.GetAccountByID(r.Context(), superAdminID)
	if err != nil || target.Kind != model.KindSuperAdmin || target.TenantID != claims.TenantID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := s.store.ClearSchoolGrants(r.Context(), superAdminID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.grants.Invalidate(r.Context(), superAdminID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeValidationError(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":  "validation_failed",
		"fields": fields,
	})
}
