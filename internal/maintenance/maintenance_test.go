package maintenance

import (
	"errors"
	"testing"
)

func TestExecute_RecordsOutcome(t *testing.T) {
	s := NewService()

	fail := errors.New("compaction failed")
	s.Register(Job{Name: "good", Expr: "* * * * * *", Run: func() error { return nil }})
	s.Register(Job{Name: "bad", Expr: "* * * * * *", Run: func() error { return fail }})

	for _, job := range s.jobs {
		s.execute(job)
	}

	statuses := s.Status()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	byName := map[string]JobStatus{}
	for _, st := range statuses {
		byName[st.Name] = st
	}
	if st := byName["good"]; st.LastStatus != "ok" || st.LastError != "" || st.LastRunAt.IsZero() {
		t.Errorf("good = %+v", st)
	}
	if st := byName["bad"]; st.LastStatus != "error" || st.LastError != "compaction failed" {
		t.Errorf("bad = %+v", st)
	}
}

func TestStatus_EmptyBeforeFirstRun(t *testing.T) {
	s := NewService()
	s.Register(Job{Name: "idle", Expr: "0 0 3 * * *", Run: func() error { return nil }})

	statuses := s.Status()
	if len(statuses) != 1 || statuses[0].LastStatus != "" {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestStop_WithoutStart(t *testing.T) {
	NewService().Stop()
}
