package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pramodabacco-sudo/school-sub002/internal/auth"
	"github.com/pramodabacco-sudo/school-sub002/internal/crypto"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
	"github.com/pramodabacco-sudo/school-sub002/internal/repository"
)

type teacherResponse struct {
	ID          string     `json:"id"`
	SchoolID    *string    `json:"schoolId,omitempty"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	EmployeeNo  string     `json:"employeeNo"`
	Designation *string    `json:"designation,omitempty"`
	Active      bool       `json:"active"`
	JoinedOn    *time.Time `json:"joinedOn,omitempty"`
}

type teacherListResponse struct {
	Items  []teacherResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func mapTeacher(profile model.TeacherProfile) teacherResponse {
	return teacherResponse{
		ID:          profile.Account.ID,
		SchoolID:    profile.Account.SchoolID,
		Email:       profile.Account.Email,
		FirstName:   profile.Account.FirstName,
		LastName:    profile.Account.LastName,
		EmployeeNo:  profile.EmployeeNo,
		Designation: profile.Designation,
		Active:      profile.Account.Active,
		JoinedOn:    profile.JoinedOn,
	}
}

func (s *Server) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	query := r.URL.Query()
	filter := repository.TeacherFilter{
		TenantID:  scope.TenantID,
		SchoolIDs: scope.SchoolIDs(),
		SchoolID:  query.Get("schoolId"),
		Query:     strings.TrimSpace(query.Get("q")),
		Limit:     50,
	}
	if filter.SchoolID != "" && !scope.AllowsSchool(filter.SchoolID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if raw := query.Get("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			filter.Limit = parsed
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	page, err := s.store.ListTeachers(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	items := make([]teacherResponse, 0, len(page.Teachers))
	for _, teacher := range page.Teachers {
		items = append(items, mapTeacher(teacher))
	}
	writeJSON(w, http.StatusOK, teacherListResponse{
		Items:  items,
		Total:  page.Total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

type createTeacherRequest struct {
	SchoolID    string  `json:"schoolId"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	EmployeeNo  string  `json:"employeeNo"`
	Designation *string `json:"designation,omitempty"`
	JoinedOn    *string `json:"joinedOn,omitempty"`
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	fields := map[string]string{}
	if req.SchoolID == "" {
		fields["schoolId"] = "required"
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
	if req.EmployeeNo == "" {
		fields["employeeNo"] = "required"
	}
	var joinedOn *time.Time
	if req.JoinedOn != nil {
		parsed, err := time.Parse("2006-01-02", *req.JoinedOn)
		if err != nil {
			fields["joinedOn"] = "must be YYYY-MM-DD"
		} else {
			joinedOn = &parsed
		}
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	if !scope.AllowsSchool(req.SchoolID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	school, err := s.store.GetSchool(r.Context(), req.SchoolID)
	if err != nil || school.TenantID != claims.TenantID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	account := model.Account{
		ID:           uuid.NewString(),
		Kind:         model.KindTeacher,
		TenantID:     claims.TenantID,
		SchoolID:     &req.SchoolID,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := model.TeacherProfile{
		EmployeeNo:  req.EmployeeNo,
		Designation: req.Designation,
		JoinedOn:    joinedOn,
	}

	if err := s.store.CreateTeacher(r.Context(), account, profile); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "duplicate_email_or_employee_no")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	profile.Account = account
	writeJSON(w, http.StatusCreated, mapTeacher(profile))
}

// teacherInScope loads a teacher and applies the tenant-isolation rule: a
// missing teacher and an out-of-scope teacher produce the same outcome.
func (s *Server) teacherInScope(r *http.Request, scope auth.ScopeSet, teacherID string) (model.TeacherProfile, bool) {
	profile, err := s.store.GetTeacherProfile(r.Context(), teacherID)
	if err != nil {
		return model.TeacherProfile{}, false
	}
	if !scope.AllowsTenant(profile.Account.TenantID) {
		return model.TeacherProfile{}, false
	}
	if profile.Account.SchoolID == nil || !scope.AllowsSchool(*profile.Account.SchoolID) {
		return model.TeacherProfile{}, false
	}
	return profile, true
}

func (s *Server) handleGetTeacher(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	profile, ok := s.teacherInScope(r, scope, chi.URLParam(r, "teacherId"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, mapTeacher(profile))
}

type patchTeacherRequest struct {
	Email       *string `json:"email,omitempty"`
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	SchoolID    *string `json:"schoolId,omitempty"`
	Active      *bool   `json:"active,omitempty"`
	Designation *string `json:"designation,omitempty"`
}

func (s *Server) handlePatchTeacher(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	teacherID := chi.URLParam(r, "teacherId")
	if _, ok := s.teacherInScope(r, scope, teacherID); !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req patchTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := repository.TeacherUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Active:      req.Active,
		Designation: req.Designation,
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" {
			writeValidationError(w, map[string]string{"email": "must not be empty"})
			return
		}
		update.Email = &email
	}
	if req.SchoolID != nil {
		// Moving a teacher requires the destination school in scope too.
		if !scope.AllowsSchool(*req.SchoolID) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		update.SchoolID = req.SchoolID
	}

	if err := s.store.UpdateTeacher(r.Context(), teacherID, update); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "duplicate_email")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	profile, err := s.store.GetTeacherProfile(r.Context(), teacherID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapTeacher(profile))
}

func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	teacherID := chi.URLParam(r, "teacherId")
	if _, ok := s.teacherInScope(r, scope, teacherID); !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	deleted, err := s.store.DeleteAccount(r.Context(), teacherID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createAssignmentRequest struct {
	ClassSectionID string  `json:"classSectionId"`
	AcademicYearID string  `json:"academicYearId"`
	Subject        *string `json:"subject,omitempty"`
}

type assignmentResponse struct {
	ID             string  `json:"id"`
	TeacherID      string  `json:"teacherId"`
	ClassSectionID string  `json:"classSectionId"`
	AcademicYearID string  `json:"academicYearId"`
	Subject        *string `json:"subject,omitempty"`
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	teacherID := chi.URLParam(r, "teacherId")
	profile, ok := s.teacherInScope(r, scope, teacherID)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ClassSectionID == "" || req.AcademicYearID == "" {
		writeValidationError(w, map[string]string{
			"classSectionId": "required",
			"academicYearId": "required",
		})
		return
	}

	// The section must live in the teacher's own school.
	section, err := s.store.GetClassSection(r.Context(), req.ClassSectionID)
	if err != nil || profile.Account.SchoolID == nil || section.SchoolID != *profile.Account.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	assignment := model.TeacherAssignment{
		ID:             uuid.NewString(),
		TeacherID:      teacherID,
		ClassSectionID: req.ClassSectionID,
		AcademicYearID: req.AcademicYearID,
		Subject:        req.Subject,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateTeacherAssignment(r.Context(), assignment); err != nil {
		if repository.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "duplicate_assignment")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, assignmentResponse{
		ID:             assignment.ID,
		TeacherID:      assignment.TeacherID,
		ClassSectionID: assignment.ClassSectionID,
		AcademicYearID: assignment.AcademicYearID,
		Subject:        assignment.Subject,
	})
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	teacherID := chi.URLParam(r, "teacherId")
	if _, ok := s.teacherInScope(r, scope, teacherID); !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	deleted, err := s.store.DeleteTeacherAssignment(r.Context(), teacherID, chi.URLParam(r, "assignmentId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
