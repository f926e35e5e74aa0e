package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IsUniqueViolation reports a duplicate key error (unique code or email).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Accounts

const accountColumns = `id, kind, tenant_id, school_id, email, password_hash, first_name, last_name, active, last_login_at, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var acc model.Account
	err := row.Scan(
		&acc.ID,
		&acc.Kind,
		&acc.TenantID,
		&acc.SchoolID,
		&acc.Email,
		&acc.PasswordHash,
		&acc.FirstName,
		&acc.LastName,
		&acc.Active,
		&acc.LastLoginAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	return acc, err
}

func (s *Store) GetAccountByEmail(ctx context.Context, kind model.AccountKind, email string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE kind = $1 AND email = $2
	`, kind, email)
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (model.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, accountID)
	return scanAccount(row)
}

func (s *Store) TouchLastLogin(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE id = $2`, at, accountID)
	return err
}

// RegisterTenant creates the tenant and its first super-admin atomically.
func (s *Store) RegisterTenant(ctx context.Context, tenant model.Tenant, account model.Account) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, code, name, created_at)
			VALUES ($1, $2, $3, $4)
		`, tenant.ID, tenant.Code, tenant.Name, tenant.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, kind, tenant_id, school_id, email, password_hash, first_name, last_name, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, account.ID, account.Kind, account.TenantID, account.SchoolID, account.Email, account.PasswordHash,
			account.FirstName, account.LastName, account.Active, account.CreatedAt, account.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO super_admins (account_id) VALUES ($1)`, account.ID)
		return err
	})
}

// School access grants

func (s *Store) ListGrantedSchoolIDs(ctx context.Context, superAdminID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT school_id FROM school_access_grants WHERE super_admin_id = $1 ORDER BY school_id
	`, superAdminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var ErrSchoolOutsideTenant = errors.New("school does not belong to the grantee's tenant")

// ReplaceSchoolGrants swaps the grant set in one transaction. Every school
// must belong to the super-admin's own tenant.
func (s *Store) ReplaceSchoolGrants(ctx context.Context, superAdminID, tenantID string, schoolIDs []string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var inTenant int
		row := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM schools WHERE tenant_id = $1 AND id = ANY($2)
		`, tenantID, schoolIDs)
		if err := row.Scan(&inTenant); err != nil {
			return err
		}
		if inTenant != len(schoolIDs) {
			return ErrSchoolOutsideTenant
		}

		if _, err := tx.Exec(ctx, `DELETE FROM school_access_grants WHERE super_admin_id = $1`, superAdminID); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, schoolID := range schoolIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO school_access_grants (super_admin_id, school_id, created_at)
				VALUES ($1, $2, $3)
			`, superAdminID, schoolID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearSchoolGrants removes every grant row, restoring full tenant access.
// This is the only path that widens a narrowed super-admin.
func (s *Store) ClearSchoolGrants(ctx context.Context, superAdminID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM school_access_grants WHERE super_admin_id = $1`, superAdminID)
	return err
}

// Schools

func (s *Store) CreateSchool(ctx context.Context, school model.School) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schools (id, tenant_id, code, name, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, school.ID, school.TenantID, school.Code, school.Name, school.Type, school.CreatedAt)
	return err
}

func (s *Store) GetSchool(ctx context.Context, schoolID string) (model.School, error) {
	var school model.School
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, code, name, type, created_at FROM schools WHERE id = $1
	`, schoolID)
	err := row.Scan(&school.ID, &school.TenantID, &school.Code, &school.Name, &school.Type, &school.CreatedAt)
	return school, err
}

// ListSchools returns the tenant's schools, restricted to schoolIDs when the
// caller's scope enumerates them (nil means the whole tenant).
func (s *Store) ListSchools(ctx context.Context, tenantID string, schoolIDs []string) ([]model.School, error) {
	query := `SELECT id, tenant_id, code, name, type, created_at FROM schools WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if schoolIDs != nil {
		query += ` AND id = ANY($2)`
		args = append(args, schoolIDs)
	}
	query += ` ORDER BY code`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schools []model.School
	for rows.Next() {
		var school model.School
		if err := rows.Scan(&school.ID, &school.TenantID, &school.Code, &school.Name, &school.Type, &school.CreatedAt); err != nil {
			return nil, err
		}
		schools = append(schools, school)
	}
	return schools, rows.Err()
}

// Teachers

type TeacherFilter struct {
	TenantID  string
	SchoolIDs []string // nil: every school in the tenant
	SchoolID  string   // optional narrowing from the query string
	Query     string   // name/email substring
	Active    *bool
	Limit     int
	Offset    int
}

type TeacherPage struct {
	Teachers []model.TeacherProfile
	Total    int
}

func (s *Store) ListTeachers(ctx context.Context, filter TeacherFilter) (TeacherPage, error) {
	where := []string{`a.kind = 'teacher'`, `a.tenant_id = $1`}
	args := []interface{}{filter.TenantID}

	if filter.SchoolIDs != nil {
		args = append(args, filter.SchoolIDs)
		where = append(where, fmt.Sprintf(`a.school_id = ANY($%d)`, len(args)))
	}
	if filter.SchoolID != "" {
		args = append(args, filter.SchoolID)
		where = append(where, fmt.Sprintf(`a.school_id = $%d`, len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = append(where, fmt.Sprintf(`(a.first_name ILIKE $%d OR a.last_name ILIKE $%d OR a.email ILIKE $%d)`, len(args), len(args), len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf(`a.active = $%d`, len(args)))
	}

	clause := strings.Join(where, " AND ")

	var total int
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts a WHERE `+clause, args...)
	if err := row.Scan(&total); err != nil {
		return TeacherPage{}, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT `+prefixedAccountColumns("a")+`, t.employee_no, t.designation, t.joined_on
		FROM accounts a
		JOIN teachers t ON t.account_id = a.id
		WHERE %s
		ORDER BY a.last_name, a.first_name
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return TeacherPage{}, err
	}
	defer rows.Close()

	var teachers []model.TeacherProfile
	for rows.Next() {
		var p model.TeacherProfile
		if err := rows.Scan(
			&p.Account.ID, &p.Account.Kind, &p.Account.TenantID, &p.Account.SchoolID,
			&p.Account.Email, &p.Account.PasswordHash, &p.Account.FirstName, &p.Account.LastName,
			&p.Account.Active, &p.Account.LastLoginAt, &p.Account.CreatedAt, &p.Account.UpdatedAt,
			&p.EmployeeNo, &p.Designation, &p.JoinedOn,
		); err != nil {
			return TeacherPage{}, err
		}
		teachers = append(teachers, p)
	}
	if err := rows.Err(); err != nil {
		return TeacherPage{}, err
	}
	return TeacherPage{Teachers: teachers, Total: total}, nil
}

func prefixedAccountColumns(alias string) string {
	cols := strings.Split(accountColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

func (s *Store) CreateTeacher(ctx context.Context, account model.Account, profile model.TeacherProfile) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, kind, tenant_id, school_id, email, password_hash, first_name, last_name, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, account.ID, account.Kind, account.TenantID, account.SchoolID, account.Email, account.PasswordHash,
			account.FirstName, account.LastName, account.Active, account.CreatedAt, account.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO teachers (account_id, employee_no, designation, joined_on)
			VALUES ($1, $2, $3, $4)
		`, account.ID, profile.EmployeeNo, profile.Designation, profile.JoinedOn)
		return err
	})
}

func (s *Store) GetTeacherProfile(ctx context.Context, teacherID string) (model.TeacherProfile, error) {
	var p model.TeacherProfile
	row := s.pool.QueryRow(ctx, `
		SELECT `+prefixedAccountColumns("a")+`, t.employee_no, t.designation, t.joined_on
		FROM accounts a
		JOIN teachers t ON t.account_id = a.id
		WHERE a.id = $1
	`, teacherID)
	err := row.Scan(
		&p.Account.ID, &p.Account.Kind, &p.Account.TenantID, &p.Account.SchoolID,
		&p.Account.Email, &p.Account.PasswordHash, &p.Account.FirstName, &p.Account.LastName,
		&p.Account.Active, &p.Account.LastLoginAt, &p.Account.CreatedAt, &p.Account.UpdatedAt,
		&p.EmployeeNo, &p.Designation, &p.JoinedOn,
	)
	return p, err
}

type TeacherUpdate struct {
	Email       *string
	FirstName   *string
	LastName    *string
	SchoolID    *string
	Active      *bool
	Designation *string
}

func (s *Store) UpdateTeacher(ctx context.Context, teacherID string, update TeacherUpdate) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		set := []string{`updated_at = NOW()`}
		args := []interface{}{}
		add := func(column string, value interface{}) {
			args = append(args, value)
			set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
		}
		if update.Email != nil {
			add("email", *update.Email)
		}
		if update.FirstName != nil {
			add("first_name", *update.FirstName)
		}
		if update.LastName != nil {
			add("last_name", *update.LastName)
		}
		if update.SchoolID != nil {
			add("school_id", *update.SchoolID)
		}
		if update.Active != nil {
			add("active", *update.Active)
		}
		args = append(args, teacherID)
		tag, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE accounts SET %s WHERE id = $%d AND kind = 'teacher'`,
			strings.Join(set, ", "), len(args),
		), args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		if update.Designation != nil {
			if _, err := tx.Exec(ctx, `UPDATE teachers SET designation = $1 WHERE account_id = $2`, *update.Designation, teacherID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAccount removes the account; profile rows cascade.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Assignments

func (s *Store) CreateTeacherAssignment(ctx context.Context, assignment model.TeacherAssignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teacher_assignments (id, teacher_id, class_section_id, academic_year_id, subject, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, assignment.ID, assignment.TeacherID, assignment.ClassSectionID, assignment.AcademicYearID, assignment.Subject, assignment.CreatedAt)
	return err
}

func (s *Store) DeleteTeacherAssignment(ctx context.Context, teacherID, assignmentID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM teacher_assignments WHERE id = $1 AND teacher_id = $2
	`, assignmentID, teacherID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListTeacherAssignments(ctx context.Context, teacherID string) ([]model.TeacherAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, teacher_id, class_section_id, academic_year_id, subject, created_at
		FROM teacher_assignments
		WHERE teacher_id = $1
		ORDER BY created_at
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.TeacherAssignment
	for rows.Next() {
		var a model.TeacherAssignment
		if err := rows.Scan(&a.ID, &a.TeacherID, &a.ClassSectionID, &a.AcademicYearID, &a.Subject, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Attendance

func (s *Store) GetClassSection(ctx context.Context, classSectionID string) (model.ClassSection, error) {
	var section model.ClassSection
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, name, grade FROM class_sections WHERE id = $1
	`, classSectionID)
	err := row.Scan(&section.ID, &section.SchoolID, &section.Name, &section.Grade)
	return section, err
}

type TeacherClass struct {
	Section      model.ClassSection
	AcademicYear model.AcademicYear
	Subject      *string
}

func (s *Store) ListTeacherClasses(ctx context.Context, teacherID string) ([]TeacherClass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cs.id, cs.school_id, cs.name, cs.grade,
		       ay.id, ay.school_id, ay.name, ay.starts_on, ay.ends_on,
		       ta.subject
		FROM teacher_assignments ta
		JOIN class_sections cs ON cs.id = ta.class_section_id
		JOIN academic_years ay ON ay.id = ta.academic_year_id
		WHERE ta.teacher_id = $1
		ORDER BY ay.starts_on DESC, cs.name
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []TeacherClass
	for rows.Next() {
		var c TeacherClass
		if err := rows.Scan(
			&c.Section.ID, &c.Section.SchoolID, &c.Section.Name, &c.Section.Grade,
			&c.AcademicYear.ID, &c.AcademicYear.SchoolID, &c.AcademicYear.Name,
			&c.AcademicYear.StartsOn, &c.AcademicYear.EndsOn,
			&c.Subject,
		); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// TeacherAssignedToClass gates roster access and marking to the teacher's own
// sections.
func (s *Store) TeacherAssignedToClass(ctx context.Context, teacherID, classSectionID, academicYearID string) (bool, error) {
	var one int
	row := s.pool.QueryRow(ctx, `
		SELECT 1 FROM teacher_assignments
		WHERE teacher_id = $1 AND class_section_id = $2 AND academic_year_id = $3
	`, teacherID, classSectionID, academicYearID)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListClassRoster returns the enrolled students with any mark already saved
// for the given date.
func (s *Store) ListClassRoster(ctx context.Context, classSectionID, academicYearID string, date time.Time) ([]model.RosterStudent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.first_name, a.last_name, st.student_number, ar.status, ar.remark
		FROM class_enrollments ce
		JOIN accounts a ON a.id = ce.student_id
		JOIN students st ON st.account_id = a.id
		LEFT JOIN attendance_records ar
		  ON ar.student_id = ce.student_id
		 AND ar.class_section_id = ce.class_section_id
		 AND ar.academic_year_id = ce.academic_year_id
		 AND ar.date = $3
		WHERE ce.class_section_id = $1 AND ce.academic_year_id = $2
		ORDER BY a.last_name, a.first_name
	`, classSectionID, academicYearID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []model.RosterStudent
	for rows.Next() {
		var student model.RosterStudent
		if err := rows.Scan(&student.StudentID, &student.FirstName, &student.LastName, &student.StudentNumber, &student.Status, &student.Remark); err != nil {
			return nil, err
		}
		roster = append(roster, student)
	}
	return roster, rows.Err()
}

// UpsertAttendance persists a full marking submission atomically. Re-marking
// the same (section, year, student, date) overwrites the previous row.
func (s *Store) UpsertAttendance(ctx context.Context, records []model.AttendanceRecord) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, record := range records {
			if _, err := tx.Exec(ctx, `
				INSERT INTO attendance_records (id, class_section_id, academic_year_id, student_id, date, status, remark, marked_by, marked_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (class_section_id, academic_year_id, student_id, date)
				DO UPDATE SET status = EXCLUDED.status, remark = EXCLUDED.remark, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at
			`, record.ID, record.ClassSectionID, record.AcademicYearID, record.StudentID, record.Date,
				record.Status, record.Remark, record.MarkedBy, record.MarkedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListAttendanceRange(ctx context.Context, classSectionID, academicYearID string, from, to time.Time) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_section_id, academic_year_id, student_id, date, status, remark, marked_by, marked_at
		FROM attendance_records
		WHERE class_section_id = $1 AND academic_year_id = $2 AND date BETWEEN $3 AND $4
		ORDER BY date, student_id
	`, classSectionID, academicYearID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var r model.AttendanceRecord
		if err := rows.Scan(&r.ID, &r.ClassSectionID, &r.AcademicYearID, &r.StudentID, &r.Date, &r.Status, &r.Remark, &r.MarkedBy, &r.MarkedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
