package attendance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pramodabacco-sudo/school-sub002/internal/client/syncdata"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

var testKey = Key{ClassSectionID: "cs-1", AcademicYearID: "ay-1", Date: "2026-03-02"}

func testRoster(fetches *int32) *syncdata.Resource[[]Student] {
	return syncdata.NewResource(time.Minute, func(_ context.Context, _ string) ([]Student, error) {
		if fetches != nil {
			atomic.AddInt32(fetches, 1)
		}
		return []Student{
			{ID: "s1", FirstName: "Ada", LastName: "Lovelace"},
			{ID: "s2", FirstName: "Alan", LastName: "Turing"},
			{ID: "s3", FirstName: "Grace", LastName: "Hopper"},
		}, nil
	})
}

func loadedMachine(t *testing.T, submit SubmitFunc) *Machine {
	t.Helper()
	m := NewMachine(testRoster(nil), submit)
	if err := m.Load(context.Background(), testKey); err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.State() != StateEditing {
		t.Fatalf("state after load: %s", m.State())
	}
	return m
}

func countingSubmit(calls *int32, err error) SubmitFunc {
	return func(_ context.Context, _ Key, entries []Entry) (Receipt, error) {
		atomic.AddInt32(calls, 1)
		if err != nil {
			return Receipt{}, err
		}
		var r Receipt
		for _, e := range entries {
			if e.Status == model.StatusPresent {
				r.Present++
			} else {
				r.Absent++
			}
		}
		return r, nil
	}
}

func TestSubmitRequiresEveryStudentMarked(t *testing.T) {
	var calls int32
	m := loadedMachine(t, countingSubmit(&calls, nil))

	if err := m.Mark("s1", model.StatusPresent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	_, err := m.Submit(context.Background())
	var incomplete *IncompleteRosterError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteRosterError, got %v", err)
	}
	if incomplete.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2", incomplete.Remaining)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("incomplete roster must not reach the server")
	}

	if err := m.Mark("s2", model.StatusAbsent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := m.Mark("s3", model.StatusPresent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	receipt, err := m.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Present != 2 || receipt.Absent != 1 {
		t.Fatalf("receipt = %+v, want 2 present 1 absent", receipt)
	}
	if m.State() != StateSubmitted {
		t.Fatalf("state after submit: %s", m.State())
	}
}

func TestMarkAllPresentKeepsExplicitMarks(t *testing.T) {
	m := loadedMachine(t, countingSubmit(new(int32), nil))

	if err := m.Mark("s2", model.StatusAbsent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := m.MarkAllPresent(); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if m.Unmarked() != 0 {
		t.Fatalf("unmarked = %d after mark-all", m.Unmarked())
	}
	if status, _, _ := m.MarkFor("s2"); status != model.StatusAbsent {
		t.Fatalf("explicit absent overwritten to %s", status)
	}
	if status, _, _ := m.MarkFor("s1"); status != model.StatusPresent {
		t.Fatalf("s1 = %s, want present", status)
	}
}

func TestUnknownStudentRejected(t *testing.T) {
	m := loadedMachine(t, countingSubmit(new(int32), nil))
	if err := m.Mark("ghost", model.StatusPresent); !errors.Is(err, ErrUnknownStudent) {
		t.Fatalf("expected ErrUnknownStudent, got %v", err)
	}
	if err := m.Mark("s1", "late"); err == nil {
		t.Fatalf("invalid status must be rejected")
	}
}

func TestConcurrentSubmitRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m := loadedMachine(t, func(_ context.Context, _ Key, _ []Entry) (Receipt, error) {
		close(entered)
		<-release
		return Receipt{Present: 3}, nil
	})
	if err := m.MarkAllPresent(); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background())
		done <- err
	}()
	<-entered

	if _, err := m.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("second submit must be rejected, got %v", err)
	}
	if err := m.Mark("s1", model.StatusAbsent); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("marking during submit must be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestRetryAfterFailureKeepsDraft(t *testing.T) {
	var calls int32
	fail := errors.New("connection reset")
	failing := true
	m := loadedMachine(t, func(_ context.Context, _ Key, entries []Entry) (Receipt, error) {
		atomic.AddInt32(&calls, 1)
		if failing {
			return Receipt{}, fail
		}
		var r Receipt
		for _, e := range entries {
			if e.Status == model.StatusPresent {
				r.Present++
			} else {
				r.Absent++
			}
		}
		return r, nil
	})

	if err := m.Mark("s1", model.StatusAbsent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := m.MarkAllPresent(); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	if _, err := m.Submit(context.Background()); !errors.Is(err, fail) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if m.State() != StateSaveFailed {
		t.Fatalf("state after failure: %s", m.State())
	}

	// Retry without touching any mark.
	failing = false
	receipt, err := m.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if receipt.Present != 2 || receipt.Absent != 1 {
		t.Fatalf("retry receipt = %+v", receipt)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("submit calls = %d, want 2", calls)
	}
}

func TestKeySwitchDiscardsDraft(t *testing.T) {
	m := loadedMachine(t, countingSubmit(new(int32), nil))
	if err := m.MarkAllPresent(); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	other := Key{ClassSectionID: "cs-2", AcademicYearID: "ay-1", Date: "2026-03-02"}
	if err := m.Load(context.Background(), other); err != nil {
		t.Fatalf("load other key: %v", err)
	}
	if m.Unmarked() != len(m.Students()) {
		t.Fatalf("draft must be discarded on key switch, unmarked=%d", m.Unmarked())
	}

	// Reloading the same key keeps the draft.
	if err := m.Mark("s1", model.StatusPresent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := m.Load(context.Background(), other); err != nil {
		t.Fatalf("reload same key: %v", err)
	}
	if _, _, ok := m.MarkFor("s1"); !ok {
		t.Fatalf("same-key reload must keep the draft")
	}
}

func TestSubmitInvalidatesRosterCache(t *testing.T) {
	var fetches int32
	roster := testRoster(&fetches)
	m := NewMachine(roster, countingSubmit(new(int32), nil))

	if err := m.Load(context.Background(), testKey); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m.MarkAllPresent(); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if _, err := m.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := m.Load(context.Background(), testKey); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := atomic.LoadInt32(&fetches); got != 2 {
		t.Fatalf("expected refetch after submit, fetches=%d", got)
	}
}

func TestLoadSeedsExistingMarks(t *testing.T) {
	present := model.StatusPresent
	remark := "arrived late"
	roster := syncdata.NewResource(time.Minute, func(_ context.Context, _ string) ([]Student, error) {
		return []Student{
			{ID: "s1", Status: &present, Remark: &remark},
			{ID: "s2"},
		}, nil
	})
	m := NewMachine(roster, countingSubmit(new(int32), nil))
	if err := m.Load(context.Background(), testKey); err != nil {
		t.Fatalf("load: %v", err)
	}
	status, got, ok := m.MarkFor("s1")
	if !ok || status != model.StatusPresent || got != remark {
		t.Fatalf("existing mark not seeded: ok=%v status=%s remark=%q", ok, status, got)
	}
	if m.Unmarked() != 1 {
		t.Fatalf("unmarked = %d, want 1", m.Unmarked())
	}
}

func TestSubmitWithoutLoadRejected(t *testing.T) {
	m := NewMachine(testRoster(nil), countingSubmit(new(int32), nil))
	if _, err := m.Submit(context.Background()); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
}
