// Package attendance drives the teacher's marking screen: load a roster for
// one class-section/date, collect a complete set of marks, submit once.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pramodabacco-sudo/school-sub002/internal/client/syncdata"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateSaveFailed State = "save-failed"
)

var (
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrNotEditing       = errors.New("no editable roster loaded")
	ErrUnknownStudent   = errors.New("student not on roster")
)

// IncompleteRosterError rejects a submit while any student is still unmarked.
type IncompleteRosterError struct {
	Remaining int
}

func (e *IncompleteRosterError) Error() string {
	return fmt.Sprintf("%d students still unmarked", e.Remaining)
}

// Key identifies one marking sheet.
type Key struct {
	ClassSectionID string
	AcademicYearID string
	Date           string // YYYY-MM-DD
}

// Signature is the canonical cache/query encoding of the key. url.Values
// sorts keys, so equal keys always produce the same string.
func (k Key) Signature() string {
	values := url.Values{}
	values.Set("classSectionId", k.ClassSectionID)
	values.Set("academicYearId", k.AcademicYearID)
	values.Set("date", k.Date)
	return values.Encode()
}

// Student is one roster row plus any mark already persisted for the date.
type Student struct {
	ID        string
	FirstName string
	LastName  string
	Status    *model.AttendanceStatus
	Remark    *string
}

// Entry is one submitted mark.
type Entry struct {
	StudentID string
	Status    model.AttendanceStatus
	Remark    string
}

// Receipt reports a successful submit.
type Receipt struct {
	Present int
	Absent  int
}

// SubmitFunc persists a complete sheet. Entries cover every roster student.
type SubmitFunc func(ctx context.Context, key Key, entries []Entry) (Receipt, error)

type mark struct {
	status model.AttendanceStatus
	remark string
}

// Machine holds the draft for exactly one key at a time. Loading a different
// key discards the draft; loading the same key keeps it.
type Machine struct {
	mu     sync.Mutex
	roster *syncdata.Resource[[]Student]
	submit SubmitFunc

	state    State
	key      Key
	students []Student
	marks    map[string]mark
	lastErr  error
	receipt  Receipt
}

func NewMachine(roster *syncdata.Resource[[]Student], submit SubmitFunc) *Machine {
	return &Machine{
		roster: roster,
		submit: submit,
		state:  StateIdle,
		marks:  map[string]mark{},
	}
}

// Load fetches the roster for key and enters Editing. Marks already persisted
// for the date seed the draft, so a reopened sheet shows its saved state.
func (m *Machine) Load(ctx context.Context, key Key) error {
	m.mu.Lock()
	if m.state == StateSubmitting {
		m.mu.Unlock()
		return ErrSubmitInProgress
	}
	if m.state == StateEditing && m.key == key {
		m.mu.Unlock()
		return nil
	}
	m.state = StateLoading
	m.key = key
	m.mu.Unlock()

	students, err := m.roster.Get(ctx, key.Signature())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != key {
		// A newer Load took over while we were fetching.
		return syncdata.ErrAborted
	}
	if err != nil {
		m.state = StateIdle
		m.lastErr = err
		return err
	}
	m.students = students
	m.marks = make(map[string]mark, len(students))
	for _, s := range students {
		if s.Status != nil {
			entry := mark{status: *s.Status}
			if s.Remark != nil {
				entry.remark = *s.Remark
			}
			m.marks[s.ID] = entry
		}
	}
	m.state = StateEditing
	m.lastErr = nil
	return nil
}

// Mark sets one student's status. Allowed while editing and after a failed
// save; a submit in flight locks the sheet.
func (m *Machine) Mark(studentID string, status model.AttendanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(); err != nil {
		return err
	}
	if status != model.StatusPresent && status != model.StatusAbsent {
		return fmt.Errorf("invalid status %q", status)
	}
	if !m.onRoster(studentID) {
		return ErrUnknownStudent
	}
	entry := m.marks[studentID]
	entry.status = status
	m.marks[studentID] = entry
	m.state = StateEditing
	return nil
}

func (m *Machine) SetRemark(studentID, remark string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(); err != nil {
		return err
	}
	if !m.onRoster(studentID) {
		return ErrUnknownStudent
	}
	entry, ok := m.marks[studentID]
	if !ok {
		return fmt.Errorf("student %s has no status yet", studentID)
	}
	entry.remark = remark
	m.marks[studentID] = entry
	return nil
}

// MarkAllPresent fills every unmarked student; explicit marks stay untouched.
func (m *Machine) MarkAllPresent() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(); err != nil {
		return err
	}
	for _, s := range m.students {
		if _, ok := m.marks[s.ID]; !ok {
			m.marks[s.ID] = mark{status: model.StatusPresent}
		}
	}
	m.state = StateEditing
	return nil
}

// Submit persists the sheet. It refuses incomplete rosters and concurrent
// submits; after a failure the draft survives and Submit may be retried.
func (m *Machine) Submit(ctx context.Context) (Receipt, error) {
	m.mu.Lock()
	if m.state == StateSubmitting {
		m.mu.Unlock()
		return Receipt{}, ErrSubmitInProgress
	}
	if m.state != StateEditing && m.state != StateSaveFailed {
		m.mu.Unlock()
		return Receipt{}, ErrNotEditing
	}
	if remaining := len(m.students) - len(m.marks); remaining > 0 {
		m.mu.Unlock()
		return Receipt{}, &IncompleteRosterError{Remaining: remaining}
	}

	key := m.key
	entries := make([]Entry, 0, len(m.students))
	for _, s := range m.students {
		entry := m.marks[s.ID]
		entries = append(entries, Entry{StudentID: s.ID, Status: entry.status, Remark: entry.remark})
	}
	m.state = StateSubmitting
	m.mu.Unlock()

	receipt, err := m.submit(ctx, key, entries)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateSaveFailed
		m.lastErr = err
		return Receipt{}, err
	}
	m.state = StateSubmitted
	m.lastErr = nil
	m.receipt = receipt
	// The persisted sheet changed; the next open of this key must refetch.
	m.roster.Invalidate(key.Signature())
	return receipt, nil
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Key() Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

func (m *Machine) Students() []Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Student, len(m.students))
	copy(out, m.students)
	return out
}

// MarkFor reports the drafted status for one student, ok=false when unmarked.
func (m *Machine) MarkFor(studentID string) (model.AttendanceStatus, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.marks[studentID]
	return entry.status, entry.remark, ok
}

// Unmarked counts roster students without a drafted status.
func (m *Machine) Unmarked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students) - len(m.marks)
}

// Receipt reports the outcome of the last successful submit.
func (m *Machine) Receipt() Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipt
}

func (m *Machine) LastErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Machine) editable() error {
	switch m.state {
	case StateEditing, StateSaveFailed:
		return nil
	case StateSubmitting:
		return ErrSubmitInProgress
	default:
		return ErrNotEditing
	}
}

func (m *Machine) onRoster(studentID string) bool {
	for _, s := range m.students {
		if s.ID == studentID {
			return true
		}
	}
	return false
}
