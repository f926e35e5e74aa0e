package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

const dateLayout = "2006-01-02"

func normalizeStatus(raw string) (model.AttendanceStatus, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "present":
		return model.StatusPresent, nil
	case "absent":
		return model.StatusAbsent, nil
	default:
		return "", fmt.Errorf("invalid status %q", raw)
	}
}

type teacherClassResponse struct {
	ClassSectionID string  `json:"classSectionId"`
	SectionName    string  `json:"sectionName"`
	Grade          string  `json:"grade"`
	SchoolID       string  `json:"schoolId"`
	AcademicYearID string  `json:"academicYearId"`
	AcademicYear   string  `json:"academicYear"`
	Subject        *string `json:"subject,omitempty"`
}

func (s *Server) handleTeacherClasses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	classes, err := s.store.ListTeacherClasses(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]teacherClassResponse, 0, len(classes))
	for _, class := range classes {
		resp = append(resp, teacherClassResponse{
			ClassSectionID: class.Section.ID,
			SectionName:    class.Section.Name,
			Grade:          class.Section.Grade,
			SchoolID:       class.Section.SchoolID,
			AcademicYearID: class.AcademicYear.ID,
			AcademicYear:   class.AcademicYear.Name,
			Subject:        class.Subject,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type rosterStudentResponse struct {
	StudentID     string  `json:"studentId"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	StudentNumber string  `json:"studentNumber"`
	Status        *string `json:"status,omitempty"`
	Remark        *string `json:"remark,omitempty"`
}

func (s *Server) handleClassStudents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	query := r.URL.Query()
	classSectionID := query.Get("classSectionId")
	academicYearID := query.Get("academicYearId")
	rawDate := query.Get("date")
	if classSectionID == "" || academicYearID == "" || rawDate == "" {
		writeValidationError(w, map[string]string{
			"classSectionId": "required",
			"academicYearId": "required",
			"date":           "required, YYYY-MM-DD",
		})
		return
	}
	date, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		writeValidationError(w, map[string]string{"date": "must be YYYY-MM-DD"})
		return
	}

	assigned, err := s.store.TeacherAssignedToClass(r.Context(), claims.AccountID, classSectionID, academicYearID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !assigned {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	roster, err := s.store.ListClassRoster(r.Context(), classSectionID, academicYearID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]rosterStudentResponse, 0, len(roster))
	for _, student := range roster {
		row := rosterStudentResponse{
			StudentID:     student.StudentID,
			FirstName:     student.FirstName,
			LastName:      student.LastName,
			StudentNumber: student.StudentNumber,
			Remark:        student.Remark,
		}
		if student.Status != nil {
			status := string(*student.Status)
			row.Status = &status
		}
		resp = append(resp, row)
	}
	writeJSON(w, http.StatusOK, resp)
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

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req markRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	fields := map[string]string{}
	if req.ClassSectionID == "" {
		fields["classSectionId"] = "required"
	}
	if req.AcademicYearID == "" {
		fields["academicYearId"] = "required"
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	if len(req.Entries) == 0 {
		fields["entries"] = "must not be empty"
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	assigned, err := s.store.TeacherAssignedToClass(r.Context(), claims.AccountID, req.ClassSectionID, req.AcademicYearID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !assigned {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	// Every entry must reference an enrolled student with a valid status.
	roster, err := s.store.ListClassRoster(r.Context(), req.ClassSectionID, req.AcademicYearID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, student := range roster {
		enrolled[student.StudentID] = struct{}{}
	}

	now := time.Now().UTC()
	records := make([]model.AttendanceRecord, 0, len(req.Entries))
	present, absent := 0, 0
	for i, entry := range req.Entries {
		status, err := normalizeStatus(entry.Status)
		if err != nil {
			writeValidationError(w, map[string]string{fmt.Sprintf("entries[%d].status", i): "must be present or absent"})
			return
		}
		if _, ok := enrolled[entry.StudentID]; !ok {
			writeValidationError(w, map[string]string{fmt.Sprintf("entries[%d].studentId", i): "not enrolled in this class section"})
			return
		}
		if status == model.StatusPresent {
			present++
		} else {
			absent++
		}
		records = append(records, model.AttendanceRecord{
			ID:             uuid.NewString(),
			ClassSectionID: req.ClassSectionID,
			AcademicYearID: req.AcademicYearID,
			StudentID:      entry.StudentID,
			Date:           date,
			Status:         status,
			Remark:         entry.Remark,
			MarkedBy:       claims.AccountID,
			MarkedAt:       now,
		})
	}

	if err := s.store.UpsertAttendance(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, markResponse{Status: "ok", Present: present, Absent: absent})
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	query := r.URL.Query()
	classSectionID := query.Get("classSectionId")
	academicYearID := query.Get("academicYearId")
	from, fromErr := time.Parse(dateLayout, query.Get("from"))
	to, toErr := time.Parse(dateLayout, query.Get("to"))
	if classSectionID == "" || academicYearID == "" || fromErr != nil || toErr != nil || to.Before(from) {
		writeValidationError(w, map[string]string{
			"classSectionId": "required",
			"academicYearId": "required",
			"from":           "required, YYYY-MM-DD",
			"to":             "required, YYYY-MM-DD, not before from",
		})
		return
	}

	assigned, err := s.store.TeacherAssignedToClass(r.Context(), claims.AccountID, classSectionID, academicYearID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !assigned {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	records, err := s.store.ListAttendanceRange(r.Context(), classSectionID, academicYearID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := "Attendance"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	headers := []string{"Date", "Student ID", "Status", "Remark", "Marked At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}
	for i, record := range records {
		remark := ""
		if record.Remark != nil {
			remark = *record.Remark
		}
		values := []interface{}{
			record.Date.Format(dateLayout),
			record.StudentID,
			string(record.Status),
			remark,
			record.MarkedAt.Format(time.RFC3339),
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.xlsx"`, from.Format(dateLayout)))
	if err := file.Write(w); err != nil {
		// Headers already sent; nothing left to report to the client.
		return
	}
}
