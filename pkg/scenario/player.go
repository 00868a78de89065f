package scenario

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mockassist/mockassist/internal/utils"
	"github.com/mockassist/mockassist/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

type StepResult struct {
	Index  int
	At     time.Time
	Result calendar.MutationResult
}

// Player replays scenarios against a calendar modality, driving the
// simulated clock from step to step.
type Player struct {
	calendar calendar.Modality
	clock    *utils.SimulatedClock
}

func NewPlayer(calendar calendar.Modality, clock *utils.SimulatedClock) *Player {
	return &Player{calendar: calendar, clock: clock}
}

// Run creates the scenario calendars and applies its steps in time order.
// Steps sharing an instant keep their file order. The first failing step
// stops the run; the results of the steps before it are returned.
func (p *Player) Run(ctx context.Context, sc Scenario) ([]StepResult, error) {
	p.clock.Set(sc.Start)

	for _, c := range sc.Calendars {
		if _, err := p.calendar.CreateCalendar(ctx, calendar.Calendar{ID: c.ID, Name: c.Name, Timezone: c.Timezone, Color: c.Color}); err != nil {
			return nil, fmt.Errorf("failed to create calendar %s: %w", c.ID, err)
		}
	}

	steps := timeline(sc)
	results := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if !s.at.IsZero() {
			if s.at.Before(p.clock.Now()) {
				return results, fmt.Errorf("%w: step %d at %s is before the simulated now %s",
					ErrInvalidScenario, s.index, s.at.Format(time.RFC3339), p.clock.Now().Format(time.RFC3339))
			}
			p.clock.Set(s.at)
		}

		mutation, err := s.step.Mutation.ToMutation()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", s.index, err)
		}
		result, err := p.calendar.ApplyMutation(ctx, mutation)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", s.index, err)
		}
		log.Debugf("Scenario step %d applied %s on %s", s.index, mutation.Operation(), mutation.TargetEventID())
		results = append(results, StepResult{Index: s.index, At: p.clock.Now(), Result: result})
	}

	log.Infof("Replayed scenario %q: %d steps, simulated now %s", sc.Name, len(results), p.clock.Now().Format(time.RFC3339))
	return results, nil
}

type timedStep struct {
	index int
	at    time.Time
	key   time.Time
	step  Step
}

// timeline orders the steps by instant. A step without an instant sorts with
// the step before it.
func timeline(sc Scenario) []timedStep {
	steps := make([]timedStep, 0, len(sc.Steps))
	key := sc.Start
	for i, step := range sc.Steps {
		if !step.At.IsZero() {
			key = step.At
		}
		steps = append(steps, timedStep{index: i, at: step.At, key: key, step: step})
	}
	slices.SortStableFunc(steps, func(a, b timedStep) int { return a.key.Compare(b.key) })
	return steps
}
