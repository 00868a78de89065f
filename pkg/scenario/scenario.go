package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mockassist/mockassist/pkg/calendar"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a reproducible sequence of calendar mutations stamped with
// simulated time.
type Scenario struct {
	Name      string                 `yaml:"name"`
	Start     time.Time              `yaml:"start"`
	Calendars []calendar.CalendarDTO `yaml:"calendars"`
	Steps     []Step                 `yaml:"steps"`
}

// Step applies one mutation at At. A zero At keeps the clock where the
// previous step left it.
type Step struct {
	At       time.Time            `yaml:"at"`
	Mutation calendar.MutationDTO `yaml:"mutation"`
}

func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if sc.Start.IsZero() {
		return Scenario{}, fmt.Errorf("%w: start is required", ErrInvalidScenario)
	}
	for i, step := range sc.Steps {
		if !step.At.IsZero() && step.At.Before(sc.Start) {
			return Scenario{}, fmt.Errorf("%w: step %d at %s is before the scenario start %s",
				ErrInvalidScenario, i, step.At.Format(time.RFC3339), sc.Start.Format(time.RFC3339))
		}
	}
	return sc, nil
}
