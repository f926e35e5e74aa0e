package model

import "time"

// AccountKind discriminates the five account variants. Values match the
// kebab-case segments used in auth URLs and token claims.
type AccountKind string

const (
	KindSuperAdmin AccountKind = "super-admin"
	KindAdmin      AccountKind = "admin"
	KindTeacher    AccountKind = "teacher"
	KindStudent    AccountKind = "student"
	KindParent     AccountKind = "parent"
)

func ValidAccountKind(kind string) bool {
	switch AccountKind(kind) {
	case KindSuperAdmin, KindAdmin, KindTeacher, KindStudent, KindParent:
		return true
	default:
		return false
	}
}

type Account struct {
	ID           string
	Kind         AccountKind
	TenantID     string
	SchoolID     *string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Tenant struct {
	ID        string
	Code      string
	Name      string
	CreatedAt time.Time
}

type SchoolType string

const (
	SchoolPrimary SchoolType = "primary"
	SchoolHigh    SchoolType = "high-school"
	SchoolDegree  SchoolType = "degree"
)

func ValidSchoolType(t string) bool {
	switch SchoolType(t) {
	case SchoolPrimary, SchoolHigh, SchoolDegree:
		return true
	default:
		return false
	}
}

type School struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	Type      SchoolType
	CreatedAt time.Time
}

// SchoolAccessGrant narrows a super-admin to specific schools in their tenant.
// The absence of any row for a super-admin means full tenant access.
type SchoolAccessGrant struct {
	SuperAdminID string
	SchoolID     string
	CreatedAt    time.Time
}

// TeacherProfile carries the employment fields attached to a teacher account.
type TeacherProfile struct {
	Account     Account
	EmployeeNo  string
	Designation *string
	JoinedOn    *time.Time
}

type StudentProfile struct {
	Account       Account
	StudentNumber string
}

type AcademicYear struct {
	ID       string
	SchoolID string
	Name     string
	StartsOn time.Time
	EndsOn   time.Time
}

type ClassSection struct {
	ID       string
	SchoolID string
	Name     string
	Grade    string
}

// TeacherAssignment attaches a teacher to a class section for an academic
// year, optionally for one subject.
type TeacherAssignment struct {
	ID             string
	TeacherID      string
	ClassSectionID string
	AcademicYearID string
	Subject        *string
	CreatedAt      time.Time
}

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
)

type AttendanceRecord struct {
	ID             string
	ClassSectionID string
	AcademicYearID string
	StudentID      string
	Date           time.Time
	Status         AttendanceStatus
	Remark         *string
	MarkedBy       string
	MarkedAt       time.Time
}

// RosterStudent is one row of a class roster together with any mark already
// persisted for the requested date.
type RosterStudent struct {
	StudentID     string
	FirstName     string
	LastName      string
	StudentNumber string
	Status        *AttendanceStatus
	Remark        *string
}
