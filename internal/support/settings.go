package support

import (
	"fmt"
	"strings"
	"time"

	"eduhub/internal/config"
)

// Mode decides whether guests are assigned on connect.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Policy picks an agent during automatic assignment.
type Policy string

const (
	PolicyLoad       Policy = "load"
	PolicyRoundRobin Policy = "round_robin"
	PolicyRandom     Policy = "random"
)

const agentPlaceholder = "{agent}"

// Settings are the runtime-tunable knobs of the support desk.
type Settings struct {
	Mode                  Mode         `json:"mode"`
	Policy                Policy       `json:"policy"`
	MaxConcurrentSessions int          `json:"maxConcurrentSessions"`
	WelcomeText           string       `json:"welcomeText"`
	QueuedText            string       `json:"queuedText"`
	GuestContinuity       bool         `json:"guestContinuity"`
	WorkingHours          WorkingHours `json:"workingHours"`
}

// WorkingHours limits automatic assignment to a local-time window. A window
// whose end is before its start wraps past midnight. Empty Days means every
// day.
type WorkingHours struct {
	Enabled  bool     `json:"enabled"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Timezone string   `json:"timezone"`
	Days     []string `json:"days,omitempty"`
}

// SettingsFromConfig converts the support section of the config file.
func SettingsFromConfig(c *config.SupportConfig) Settings {
	return Settings{
		Mode:                  Mode(c.Mode),
		Policy:                Policy(c.Policy),
		MaxConcurrentSessions: c.MaxConcurrentSessions,
		WelcomeText:           c.WelcomeText,
		QueuedText:            c.QueuedText,
		GuestContinuity:       c.GuestContinuity,
		WorkingHours: WorkingHours{
			Enabled:  c.WorkingHours.Enabled,
			Start:    c.WorkingHours.Start,
			End:      c.WorkingHours.End,
			Timezone: c.WorkingHours.Timezone,
			Days:     append([]string(nil), c.WorkingHours.Days...),
		},
	}
}

func (s Settings) Validate() error {
	switch s.Mode {
	case ModeAuto, ModeManual:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidSettings, s.Mode)
	}
	switch s.Policy {
	case PolicyLoad, PolicyRoundRobin, PolicyRandom:
	default:
		return fmt.Errorf("%w: policy %q", ErrInvalidSettings, s.Policy)
	}
	if s.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("%w: max concurrent sessions must be positive", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.WelcomeText) == "" {
		return fmt.Errorf("%w: welcome text cannot be empty", ErrInvalidSettings)
	}
	return s.WorkingHours.validate()
}

// Welcome renders the welcome text for an agent.
func (s Settings) Welcome(agentName string) string {
	return strings.ReplaceAll(s.WelcomeText, agentPlaceholder, agentName)
}

func (w WorkingHours) validate() error {
	if !w.Enabled {
		return nil
	}
	if _, err := parseClock(w.Start); err != nil {
		return fmt.Errorf("%w: working hours start: %w", ErrInvalidSettings, err)
	}
	if _, err := parseClock(w.End); err != nil {
		return fmt.Errorf("%w: working hours end: %w", ErrInvalidSettings, err)
	}
	if _, err := time.LoadLocation(w.Timezone); err != nil {
		return fmt.Errorf("%w: working hours timezone: %w", ErrInvalidSettings, err)
	}
	for _, day := range w.Days {
		if _, ok := parseWeekday(day); !ok {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidSettings, day)
		}
	}
	return nil
}

// Open reports whether at falls inside the window. Disabled hours are always
// open.
func (w WorkingHours) Open(at time.Time) bool {
	if !w.Enabled {
		return true
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return false
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}

	local := at.In(loc)
	minute := local.Hour()*60 + local.Minute()

	day := local.Weekday()
	inWindow := false
	switch {
	case start == end:
		inWindow = true
	case start < end:
		inWindow = minute >= start && minute < end
	default:
		// Overnight: the part after midnight belongs to the previous day.
		if minute >= start {
			inWindow = true
		} else if minute < end {
			inWindow = true
			day = (day + 6) % 7
		}
	}
	if !inWindow {
		return false
	}
	return w.allowsDay(day)
}

func (w WorkingHours) allowsDay(day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, name := range w.Days {
		if d, ok := parseWeekday(name); ok && d == day {
			return true
		}
	}
	return false
}

// parseClock returns minutes since midnight for an HH:MM string.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if len(name) < 3 {
		return 0, false
	}
	switch name[:3] {
	case "sun":
		return time.Sunday, true
	case "mon":
		return time.Monday, true
	case "tue":
		return time.Tuesday, true
	case "wed":
		return time.Wednesday, true
	case "thu":
		return time.Thursday, true
	case "fri":
		return time.Friday, true
	case "sat":
		return time.Saturday, true
	default:
		return 0, false
	}
}
