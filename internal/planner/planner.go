// Package planner computes multi-day delivery schedules for bulk send
// tasks. Planning is pure: no clock, no I/O. Senders are partitioned into
// groups that execute serially so that no recipient hears from more than
// the allowed number of distinct senders on any single day.
package planner

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/SubinY/email-sender/internal/models"
)

// Params are the planning inputs. SenderIDs must be enabled senders in
// input order; RecipientIDs the blacklist-excluded population in index
// order.
type Params struct {
	SenderIDs                []string
	RecipientIDs             []string
	EmailsPerHour            int
	EmailsPerRecipientPerDay int
	WorkingHours             int // 1..24, 0 means 24
}

// GroupInfo describes the sender grouping arithmetic of a plan
type GroupInfo struct {
	TotalGroups         int `json:"totalGroups"`
	DaysPerGroup        int `json:"daysPerGroup"`
	SendersPerGroup     int `json:"sendersPerGroup"`
	SenderDailyCapacity int `json:"senderDailyCapacity"`
}

// SenderDay is one sender's assignment for one day. RecipientIDs and
// PlannedTimes are index-aligned; PlannedTimes entries are "HH:MM".
type SenderDay struct {
	SenderID     string   `json:"senderId"`
	RecipientIDs []string `json:"recipientIds"`
	PlannedTimes []string `json:"plannedTimes"`
}

// DaySchedule is the full assignment for one 1-indexed day
type DaySchedule struct {
	Day         int         `json:"day"`
	Senders     []SenderDay `json:"perSender"`
	TotalForDay int         `json:"totalForDay"`
}

// Plan is the immutable output of planning
type Plan struct {
	TotalEmails    int                                    `json:"totalEmails"`
	CalculatedDays int                                    `json:"calculatedDays"`
	Group          GroupInfo                              `json:"groupInfo"`
	Days           []DaySchedule                          `json:"dailySchedule"`
	Seed           map[string]map[string]models.JobStatus `json:"statusMatrix"`
}

// New creates a planner with the given logger; a nil logger discards
func New(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Planner{logger: logger.With("component", "planner")}
}

// Planner computes plans
type Planner struct {
	logger *slog.Logger
}

// Plan computes the delivery schedule for the given parameters
func (p *Planner) Plan(params Params) (*Plan, error) {
	if err := validate(params); err != nil {
		return nil, err
	}

	senders := params.SenderIDs
	recipients := params.RecipientIDs
	perHour := params.EmailsPerHour
	groupSize := params.EmailsPerRecipientPerDay
	hours := params.WorkingHours
	if hours == 0 {
		hours = 24
	}

	n := len(recipients)
	capacity := perHour * hours
	totalGroups := ceilDiv(len(senders), groupSize)
	daysPerGroup := ceilDiv(n, capacity)
	calculatedDays := totalGroups * daysPerGroup

	plan := &Plan{
		CalculatedDays: calculatedDays,
		Group: GroupInfo{
			TotalGroups:         totalGroups,
			DaysPerGroup:        daysPerGroup,
			SendersPerGroup:     groupSize,
			SenderDailyCapacity: capacity,
		},
		Seed: make(map[string]map[string]models.JobStatus),
	}

	// Groups execute serially. Group g occupies days
	// g*daysPerGroup+1 .. (g+1)*daysPerGroup. The tail group is filled by
	// wrapping from the start of the sender list; a wrapped sender already
	// scheduled in an earlier group is not scheduled twice, so every
	// (sender, recipient) pair maps to exactly one job.
	scheduled := make(map[string]bool, len(senders))

	for g := 0; g < totalGroups; g++ {
		members := groupMembers(senders, g, groupSize, scheduled)

		for d := 1; d <= daysPerGroup; d++ {
			day := DaySchedule{Day: g*daysPerGroup + d}

			lo := (d - 1) * capacity
			hi := min(d*capacity, n)
			if lo >= hi {
				plan.Days = append(plan.Days, day)
				continue
			}

			for _, senderID := range members {
				batch := recipients[lo:hi]
				sd := SenderDay{
					SenderID:     senderID,
					RecipientIDs: batch,
					PlannedTimes: slotTimes(len(batch), perHour),
				}
				p.align(&sd, day.Day)

				day.Senders = append(day.Senders, sd)
				day.TotalForDay += len(sd.RecipientIDs)

				for _, recipientID := range batch {
					row := plan.Seed[recipientID]
					if row == nil {
						row = make(map[string]models.JobStatus)
						plan.Seed[recipientID] = row
					}
					row[senderID] = models.JobPending
				}
			}

			plan.Days = append(plan.Days, day)
			plan.TotalEmails += day.TotalForDay
		}
	}

	return plan, nil
}

// groupMembers returns the senders active in group g, wrapping past the end
// of the list and skipping senders already placed in an earlier group
func groupMembers(senders []string, g, groupSize int, scheduled map[string]bool) []string {
	members := make([]string, 0, groupSize)
	for i := 0; i < groupSize; i++ {
		id := senders[(g*groupSize+i)%len(senders)]
		if scheduled[id] {
			continue
		}
		scheduled[id] = true
		members = append(members, id)
	}
	return members
}

// slotTimes distributes k messages across working hours, up to perHour per
// hour, spreading each hour's share evenly over its minutes
func slotTimes(k, perHour int) []string {
	times := make([]string, 0, k)
	for i := 0; i < k; i++ {
		hour := i / perHour
		slot := i % perHour
		minute := slot * 60 / perHour
		times = append(times, fmt.Sprintf("%02d:%02d", hour, minute))
	}
	return times
}

// align repairs a recipient/time length mismatch before the plan leaves the
// planner. The generator keeps them aligned, so a repair indicates a bug
// worth surfacing.
func (p *Planner) align(sd *SenderDay, day int) {
	nr, nt := len(sd.RecipientIDs), len(sd.PlannedTimes)
	if nr == nt {
		return
	}

	p.logger.Warn("repairing misaligned sender day",
		"sender_id", sd.SenderID,
		"day", day,
		"recipients", nr,
		"times", nt,
	)

	if nt > nr {
		sd.PlannedTimes = sd.PlannedTimes[:nr]
		return
	}
	for len(sd.PlannedTimes) < nr {
		sd.PlannedTimes = append(sd.PlannedTimes, "00:00")
	}
}

func validate(params Params) error {
	if len(params.SenderIDs) == 0 {
		return fmt.Errorf("planner: no senders")
	}
	if len(params.RecipientIDs) == 0 {
		return fmt.Errorf("planner: no recipients")
	}
	if params.EmailsPerHour <= 0 {
		return fmt.Errorf("planner: emails per hour must be positive, got %d", params.EmailsPerHour)
	}
	if params.EmailsPerRecipientPerDay <= 0 {
		return fmt.Errorf("planner: emails per recipient per day must be positive, got %d", params.EmailsPerRecipientPerDay)
	}
	if params.WorkingHours < 0 || params.WorkingHours > 24 {
		return fmt.Errorf("planner: working hours must be in 1..24, got %d", params.WorkingHours)
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
