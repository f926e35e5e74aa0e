// Package api is the portal's typed HTTP client. Every call reads the bearer
// token from the session slot, and every server failure is folded into one
// Error taxonomy so screens never branch on raw status codes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pramodabacco-sudo/school-sub002/internal/client/attendance"
	"github.com/pramodabacco-sudo/school-sub002/internal/client/session"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindServer          ErrorKind = "server"
	KindTransport       ErrorKind = "transport"
)

// Error carries the server's error code plus the client-side kind it maps to.
type Error struct {
	Kind   ErrorKind
	Code   string
	Status int
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Code)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

type Client struct {
	baseURL  string
	http     *http.Client
	sessions *session.Store
}

func New(baseURL string, sessions *session.Store) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		sessions: sessions,
	}
}

type RegisterRequest struct {
	TenantCode string `json:"tenantCode"`
	TenantName string `json:"tenantName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

// Register creates a tenant with its first super-admin and signs in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (session.Session, error) {
	var auth session.Session
	if err := c.do(ctx, http.MethodPost, "/auth/super-admin/register", "", req, &auth); err != nil {
		return session.Session{}, err
	}
	if err := c.sessions.Save(auth); err != nil {
		return session.Session{}, err
	}
	return auth, nil
}

// Login authenticates against the per-kind endpoint and persists the session
// blob, replacing whatever was in the slot.
func (c *Client) Login(ctx context.Context, kind model.AccountKind, email, password string) (session.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var auth session.Session
	if err := c.do(ctx, http.MethodPost, "/auth/"+string(kind)+"/login", "", body, &auth); err != nil {
		return session.Session{}, err
	}
	if err := c.sessions.Save(auth); err != nil {
		return session.Session{}, err
	}
	return auth, nil
}

// Logout only clears the local slot; tokens are stateless server-side.
func (c *Client) Logout() error {
	return c.sessions.Clear()
}

func (c *Client) Me(ctx context.Context) (session.UserSummary, error) {
	var user session.UserSummary
	err := c.do(ctx, http.MethodGet, "/auth/super-admin/me", "", nil, &user)
	return user, err
}

// TeacherFilter is the list filter. Signature() is both the query string sent
// to the server and the cache key, so equal filters always hit the same entry.
type TeacherFilter struct {
	SchoolID string
	Query    string
	Active   *bool
	Limit    int
	Offset   int
}

func (f TeacherFilter) Signature() string {
	values := url.Values{}
	if f.SchoolID != "" {
		values.Set("schoolId", f.SchoolID)
	}
	if f.Query != "" {
		values.Set("q", f.Query)
	}
	if f.Active != nil {
		values.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		values.Set("offset", strconv.Itoa(f.Offset))
	}
	return values.Encode()
}

type Teacher struct {
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

type TeacherPage struct {
	Items  []Teacher `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

func (c *Client) ListTeachers(ctx context.Context, filter TeacherFilter) (TeacherPage, error) {
	var page TeacherPage
	err := c.do(ctx, http.MethodGet, "/teachers", filter.Signature(), nil, &page)
	return page, err
}

type School struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

func (c *Client) ListSchools(ctx context.Context) ([]School, error) {
	var schools []School
	err := c.do(ctx, http.MethodGet, "/schools", "", nil, &schools)
	return schools, err
}

type TeacherClass struct {
	ClassSectionID string  `json:"classSectionId"`
	SectionName    string  `json:"sectionName"`
	Grade          string  `json:"grade"`
	SchoolID       string  `json:"schoolId"`
	AcademicYearID string  `json:"academicYearId"`
	AcademicYear   string  `json:"academicYear"`
	Subject        *string `json:"subject,omitempty"`
}

func (c *Client) TeacherClasses(ctx context.Context) ([]TeacherClass, error) {
	var classes []TeacherClass
	err := c.do(ctx, http.MethodGet, "/attendance/teacher/classes", "", nil, &classes)
	return classes, err
}

type rosterStudent struct {
	StudentID string  `json:"studentId"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Status    *string `json:"status,omitempty"`
	Remark    *string `json:"remark,omitempty"`
}

// ClassStudents fetches the roster for one marking key. The signature
// argument matches attendance.Key.Signature, so it plugs straight into a
// syncdata.Resource fetch function.
func (c *Client) ClassStudents(ctx context.Context, signature string) ([]attendance.Student, error) {
	var rows []rosterStudent
	if err := c.do(ctx, http.MethodGet, "/attendance/teacher/class-students", signature, nil, &rows); err != nil {
		return nil, err
	}
	students := make([]attendance.Student, 0, len(rows))
	for _, row := range rows {
		s := attendance.Student{
			ID:        row.StudentID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Remark:    row.Remark,
		}
		if row.Status != nil {
			status := model.AttendanceStatus(*row.Status)
			s.Status = &status
		}
		students = append(students, s)
	}
	return students, nil
}

type markEntry struct {
	StudentID string  `json:"studentId"`
	Status    string  `json:"status"`
	Remark    *string `json:"remark,omitempty"`
}

type markRequest struct {
	ClassSectionID string      `json:"classSectionId"`
	AcademicYearID string      `json:"academicYearId"`
	Date           string      `json:"date"`
	Entries        []markEntry `json:"entries"`
}

type markResponse struct {
	Status  string `json:"status"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
}

// MarkAttendance submits one complete sheet. Matches attendance.SubmitFunc.
func (c *Client) MarkAttendance(ctx context.Context, key attendance.Key, entries []attendance.Entry) (attendance.Receipt, error) {
	req := markRequest{
		ClassSectionID: key.ClassSectionID,
		AcademicYearID: key.AcademicYearID,
		Date:           key.Date,
		Entries:        make([]markEntry, 0, len(entries)),
	}
	for _, e := range entries {
		row := markEntry{StudentID: e.StudentID, Status: string(e.Status)}
		if e.Remark != "" {
			remark := e.Remark
			row.Remark = &remark
		}
		req.Entries = append(req.Entries, row)
	}

	var resp markResponse
	if err := c.do(ctx, http.MethodPost, "/attendance/teacher/mark", "", req, &resp); err != nil {
		return attendance.Receipt{}, err
	}
	return attendance.Receipt{Present: resp.Present, Absent: resp.Absent}, nil
}

type errorEnvelope struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (c *Client) do(ctx context.Context, method, path, rawQuery string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindTransport, cause: err}
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindTransport, cause: err}
	}
	req.URL.RawQuery = rawQuery
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if current, ok, _ := c.sessions.Load(); ok {
		req.Header.Set("Authorization", "Bearer "+current.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindTransport, cause: err}
		}
		return nil
	}

	var envelope errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	apiErr := &Error{
		Kind:   kindForStatus(resp.StatusCode),
		Code:   envelope.Error,
		Status: resp.StatusCode,
		Fields: envelope.Fields,
	}
	if apiErr.Kind == KindUnauthenticated {
		// Stale or revoked token: drop the slot so the next screen is login.
		_ = c.sessions.Clear()
	}
	return apiErr
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindServer
	}
}
