package budget

import "testing"

func TestRecordAdmitsUnderTarget(t *testing.T) {
	s := New()
	if !s.Record(PriorityPolling, 100) {
		t.Fatalf("expected admission under target")
	}
	stats := s.Stats()
	if stats.BreakdownPolling != 100 {
		t.Fatalf("expected polling breakdown 100, got %d", stats.BreakdownPolling)
	}
}

func TestRecordRefusesOverTarget(t *testing.T) {
	s := New()
	if !s.Record(PriorityPolling, Target) {
		t.Fatalf("expected admission exactly at target")
	}
	if s.Record(PriorityPolling, 1) {
		t.Fatalf("expected refusal once polling total exceeds target")
	}
}

func TestRecordUserCanExceedTargetUpToMax(t *testing.T) {
	s := New()
	if !s.Record(PriorityPolling, Target) {
		t.Fatalf("expected polling to fill target")
	}
	// user draws from the same shared pool but is allowed up to Max, not Target.
	if !s.Record(PriorityUser, Max-Target) {
		t.Fatalf("expected user admission up to Max even though polling already hit Target")
	}
	if s.Record(PriorityUser, 1) {
		t.Fatalf("expected refusal once total reaches Max")
	}
}

func TestBackfillNeverExceedsTarget(t *testing.T) {
	s := New()
	s.Record(PriorityUser, Target) // user alone can reach Target without touching backfill's ceiling
	if s.Record(PriorityBackfill, 1) {
		t.Fatalf("backfill must be refused once user traffic alone has consumed Target")
	}
}

func TestGetBackfillBudgetDecreasesAsOthersConsume(t *testing.T) {
	s := New()
	full := s.GetBackfillBudget()
	if full != Target {
		t.Fatalf("expected fresh scheduler backfill budget == Target, got %d", full)
	}
	s.Record(PriorityUser, 200)
	after := s.GetBackfillBudget()
	if after != Target-200 {
		t.Fatalf("expected backfill budget reduced by user consumption, got %d", after)
	}
}

func TestGetRecommendedWorkersClampsToRange(t *testing.T) {
	s := New()
	// Fresh scheduler: plenty of budget, should clamp to the upper bound of 5.
	if got := s.GetRecommendedWorkers(); got != 5 {
		t.Fatalf("expected 5 recommended workers at full budget, got %d", got)
	}
	s.Record(PriorityUser, Target) // exhaust remaining backfill budget
	if got := s.GetRecommendedWorkers(); got != 1 {
		t.Fatalf("expected floor of 1 recommended worker at zero budget, got %d", got)
	}
}

func TestStatsUtilizationRounds(t *testing.T) {
	s := New()
	s.Record(PriorityUser, Max/2)
	stats := s.Stats()
	if stats.Utilization != 50 {
		t.Fatalf("expected 50%% utilization, got %d", stats.Utilization)
	}
	if stats.Max != Max || stats.Target != Target {
		t.Fatalf("expected Stats to echo Max/Target constants")
	}
}

func TestErrBudgetExhaustedMessage(t *testing.T) {
	err := &ErrBudgetExhausted{Priority: PriorityBackfill, Weight: 20, Attempts: 30}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
