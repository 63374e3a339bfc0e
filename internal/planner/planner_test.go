package planner

import (
	"fmt"
	"testing"

	"github.com/SubinY/email-sender/internal/models"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%02d", prefix, i)
	}
	return out
}

func mustPlan(t *testing.T, params Params) *Plan {
	t.Helper()
	plan, err := New(nil).Plan(params)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

func seedSize(plan *Plan) int {
	n := 0
	for _, row := range plan.Seed {
		n += len(row)
	}
	return n
}

func TestPlanSixSendersThirtyRecipients(t *testing.T) {
	plan := mustPlan(t, Params{
		SenderIDs:                ids("s", 6),
		RecipientIDs:             ids("r", 30),
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             24,
	})

	if plan.CalculatedDays != 6 {
		t.Errorf("CalculatedDays = %d, want 6", plan.CalculatedDays)
	}
	if plan.Group.TotalGroups != 3 {
		t.Errorf("TotalGroups = %d, want 3", plan.Group.TotalGroups)
	}
	if plan.Group.DaysPerGroup != 2 {
		t.Errorf("DaysPerGroup = %d, want 2", plan.Group.DaysPerGroup)
	}
	if plan.Group.SenderDailyCapacity != 24 {
		t.Errorf("SenderDailyCapacity = %d, want 24", plan.Group.SenderDailyCapacity)
	}
	if got := seedSize(plan); got != 180 {
		t.Errorf("seeded matrix size = %d, want 180", got)
	}
	if plan.TotalEmails != 180 {
		t.Errorf("TotalEmails = %d, want 180", plan.TotalEmails)
	}
}

func TestPlanFourSendersThirtyRecipients(t *testing.T) {
	plan := mustPlan(t, Params{
		SenderIDs:                ids("s", 4),
		RecipientIDs:             ids("r", 30),
		EmailsPerHour:            2,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             24,
	})

	if plan.CalculatedDays != 2 {
		t.Errorf("CalculatedDays = %d, want 2", plan.CalculatedDays)
	}
	if plan.Group.TotalGroups != 2 {
		t.Errorf("TotalGroups = %d, want 2", plan.Group.TotalGroups)
	}
	if plan.Group.DaysPerGroup != 1 {
		t.Errorf("DaysPerGroup = %d, want 1", plan.Group.DaysPerGroup)
	}
	if plan.Group.SenderDailyCapacity != 48 {
		t.Errorf("SenderDailyCapacity = %d, want 48", plan.Group.SenderDailyCapacity)
	}
	if got := seedSize(plan); got != 120 {
		t.Errorf("seeded matrix size = %d, want 120", got)
	}
}

func TestPlanThreeDayGroups(t *testing.T) {
	// Capacity 10 forces three days per group for 30 recipients.
	plan := mustPlan(t, Params{
		SenderIDs:                ids("s", 6),
		RecipientIDs:             ids("r", 30),
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 3,
		WorkingHours:             10,
	})

	if plan.CalculatedDays != 6 {
		t.Errorf("CalculatedDays = %d, want 6", plan.CalculatedDays)
	}
	if plan.Group.TotalGroups != 2 {
		t.Errorf("TotalGroups = %d, want 2", plan.Group.TotalGroups)
	}
	if plan.Group.DaysPerGroup != 3 {
		t.Errorf("DaysPerGroup = %d, want 3", plan.Group.DaysPerGroup)
	}
}

func TestPlanDiversityCap(t *testing.T) {
	cases := []Params{
		{SenderIDs: ids("s", 6), RecipientIDs: ids("r", 30), EmailsPerHour: 1, EmailsPerRecipientPerDay: 2, WorkingHours: 24},
		{SenderIDs: ids("s", 5), RecipientIDs: ids("r", 17), EmailsPerHour: 3, EmailsPerRecipientPerDay: 2, WorkingHours: 8},
		{SenderIDs: ids("s", 7), RecipientIDs: ids("r", 50), EmailsPerHour: 2, EmailsPerRecipientPerDay: 3, WorkingHours: 12},
	}

	for i, params := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			plan := mustPlan(t, params)
			for _, day := range plan.Days {
				perRecipient := make(map[string]int)
				for _, sd := range day.Senders {
					for _, r := range sd.RecipientIDs {
						perRecipient[r]++
					}
				}
				for r, count := range perRecipient {
					if count > params.EmailsPerRecipientPerDay {
						t.Errorf("day %d recipient %s hears from %d senders, cap %d",
							day.Day, r, count, params.EmailsPerRecipientPerDay)
					}
				}
			}
		})
	}
}

func TestPlanPerSenderDailyCap(t *testing.T) {
	params := Params{
		SenderIDs:                ids("s", 5),
		RecipientIDs:             ids("r", 100),
		EmailsPerHour:            3,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             8,
	}
	plan := mustPlan(t, params)
	capacity := params.EmailsPerHour * params.WorkingHours

	for _, day := range plan.Days {
		for _, sd := range day.Senders {
			if len(sd.RecipientIDs) > capacity {
				t.Errorf("day %d sender %s scheduled %d messages, capacity %d",
					day.Day, sd.SenderID, len(sd.RecipientIDs), capacity)
			}
		}
	}
}

func TestPlanLengthAlignmentAndMonotonicTimes(t *testing.T) {
	plan := mustPlan(t, Params{
		SenderIDs:                ids("s", 4),
		RecipientIDs:             ids("r", 41),
		EmailsPerHour:            2,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             6,
	})

	for _, day := range plan.Days {
		for _, sd := range day.Senders {
			if len(sd.RecipientIDs) != len(sd.PlannedTimes) {
				t.Fatalf("day %d sender %s: %d recipients vs %d times",
					day.Day, sd.SenderID, len(sd.RecipientIDs), len(sd.PlannedTimes))
			}
			for i := 1; i < len(sd.PlannedTimes); i++ {
				if sd.PlannedTimes[i] < sd.PlannedTimes[i-1] {
					t.Errorf("day %d sender %s: times not monotonic: %s after %s",
						day.Day, sd.SenderID, sd.PlannedTimes[i], sd.PlannedTimes[i-1])
				}
			}
		}
	}
}

func TestPlanCompletionBound(t *testing.T) {
	for _, tc := range []struct {
		senders, recipients, perHour, perRecipient, hours int
	}{
		{6, 30, 1, 2, 24},
		{4, 30, 2, 2, 24},
		{1, 1, 1, 1, 1},
		{9, 100, 2, 4, 5},
	} {
		plan := mustPlan(t, Params{
			SenderIDs:                ids("s", tc.senders),
			RecipientIDs:             ids("r", tc.recipients),
			EmailsPerHour:            tc.perHour,
			EmailsPerRecipientPerDay: tc.perRecipient,
			WorkingHours:             tc.hours,
		})

		groups := (tc.senders + tc.perRecipient - 1) / tc.perRecipient
		capacity := tc.perHour * tc.hours
		days := groups * ((tc.recipients + capacity - 1) / capacity)

		if plan.CalculatedDays != days {
			t.Errorf("%+v: CalculatedDays = %d, want %d", tc, plan.CalculatedDays, days)
		}
		if len(plan.Days) != days {
			t.Errorf("%+v: len(Days) = %d, want %d", tc, len(plan.Days), days)
		}
	}
}

func TestPlanMatrixCompleteness(t *testing.T) {
	params := Params{
		SenderIDs:                ids("s", 5),
		RecipientIDs:             ids("r", 23),
		EmailsPerHour:            2,
		EmailsPerRecipientPerDay: 2,
		WorkingHours:             12,
	}
	plan := mustPlan(t, params)

	want := len(params.SenderIDs) * len(params.RecipientIDs)
	if got := seedSize(plan); got != want {
		t.Errorf("seeded cells = %d, want %d", got, want)
	}
	for _, row := range plan.Seed {
		for sender, status := range row {
			if status != models.JobPending {
				t.Errorf("seed cell for %s = %s, want pending", sender, status)
			}
		}
	}
}

func TestPlanWrappedTailDoesNotDuplicatePairs(t *testing.T) {
	// 5 senders with groups of 3: the tail group wraps back to the first
	// senders, which must not be scheduled a second time.
	plan := mustPlan(t, Params{
		SenderIDs:                ids("s", 5),
		RecipientIDs:             ids("r", 10),
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 3,
		WorkingHours:             24,
	})

	if got := seedSize(plan); got != 50 {
		t.Errorf("seeded matrix size = %d, want 50", got)
	}

	pairDays := make(map[string][]int)
	for _, day := range plan.Days {
		for _, sd := range day.Senders {
			for _, r := range sd.RecipientIDs {
				key := sd.SenderID + "|" + r
				pairDays[key] = append(pairDays[key], day.Day)
			}
		}
	}
	for pair, days := range pairDays {
		if len(days) != 1 {
			t.Errorf("pair %s scheduled on %d days: %v", pair, len(days), days)
		}
	}
}

func TestPlanSingleMessage(t *testing.T) {
	plan := mustPlan(t, Params{
		SenderIDs:                []string{"s-0"},
		RecipientIDs:             []string{"r-0"},
		EmailsPerHour:            1,
		EmailsPerRecipientPerDay: 1,
		WorkingHours:             1,
	})

	if plan.CalculatedDays != 1 || plan.TotalEmails != 1 {
		t.Errorf("days=%d emails=%d, want 1/1", plan.CalculatedDays, plan.TotalEmails)
	}
	if got := plan.Days[0].Senders[0].PlannedTimes[0]; got != "00:00" {
		t.Errorf("planned time = %s, want 00:00", got)
	}
}

func TestSlotTimesSpreadsWithinHour(t *testing.T) {
	got := slotTimes(6, 4)
	want := []string{"00:00", "00:15", "00:30", "00:45", "01:00", "01:15"}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPlanInvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"no senders", Params{RecipientIDs: ids("r", 1), EmailsPerHour: 1, EmailsPerRecipientPerDay: 1}},
		{"no recipients", Params{SenderIDs: ids("s", 1), EmailsPerHour: 1, EmailsPerRecipientPerDay: 1}},
		{"zero per hour", Params{SenderIDs: ids("s", 1), RecipientIDs: ids("r", 1), EmailsPerRecipientPerDay: 1}},
		{"zero per recipient", Params{SenderIDs: ids("s", 1), RecipientIDs: ids("r", 1), EmailsPerHour: 1}},
		{"hours out of range", Params{SenderIDs: ids("s", 1), RecipientIDs: ids("r", 1), EmailsPerHour: 1, EmailsPerRecipientPerDay: 1, WorkingHours: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(nil).Plan(tt.params); err == nil {
				t.Error("expected error")
			}
		})
	}
}
