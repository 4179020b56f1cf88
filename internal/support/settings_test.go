package support

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduhub/internal/config"
)

func testSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig().Support)
}

func TestSettingsFromConfig(t *testing.T) {
	s := testSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, ModeAuto, s.Mode)
	assert.Equal(t, PolicyLoad, s.Policy)
	assert.Equal(t, 5, s.MaxConcurrentSessions)
	assert.True(t, s.GuestContinuity)
	assert.Equal(t, "Hi! I'm Amy. How can I help you today?", s.Welcome("Amy"))
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"mode", func(s *Settings) { s.Mode = "sometimes" }},
		{"policy", func(s *Settings) { s.Policy = "fastest" }},
		{"max sessions", func(s *Settings) { s.MaxConcurrentSessions = 0 }},
		{"welcome", func(s *Settings) { s.WelcomeText = "  " }},
		{"start", func(s *Settings) { s.WorkingHours = WorkingHours{Enabled: true, Start: "9am", End: "17:00", Timezone: "UTC"} }},
		{"timezone", func(s *Settings) { s.WorkingHours = WorkingHours{Enabled: true, Start: "09:00", End: "17:00", Timezone: "Mars/Olympus"} }},
		{"day", func(s *Settings) {
			s.WorkingHours = WorkingHours{Enabled: true, Start: "09:00", End: "17:00", Timezone: "UTC", Days: []string{"funday"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestWorkingHours_Open(t *testing.T) {
	// 2026-03-02 is a Monday.
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
	}

	office := WorkingHours{Enabled: true, Start: "09:00", End: "18:00", Timezone: "UTC", Days: []string{"mon", "Tuesday", "wed", "thu", "fri"}}
	assert.True(t, office.Open(at(2, 9, 0)))
	assert.True(t, office.Open(at(2, 17, 59)))
	assert.False(t, office.Open(at(2, 18, 0)))
	assert.False(t, office.Open(at(2, 8, 59)))
	assert.False(t, office.Open(at(7, 12, 0)), "saturday is closed")

	night := WorkingHours{Enabled: true, Start: "22:00", End: "06:00", Timezone: "UTC", Days: []string{"fri"}}
	assert.True(t, night.Open(at(6, 23, 0)), "friday night")
	assert.True(t, night.Open(at(7, 5, 0)), "early saturday belongs to friday's shift")
	assert.False(t, night.Open(at(8, 5, 0)), "early sunday belongs to saturday")
	assert.False(t, night.Open(at(6, 12, 0)))

	assert.True(t, WorkingHours{}.Open(at(7, 3, 0)), "disabled hours are always open")
}

func TestWorkingHours_Timezone(t *testing.T) {
	hours := WorkingHours{Enabled: true, Start: "09:00", End: "17:00", Timezone: "Asia/Tokyo"}

	// 01:00 UTC is 10:00 in Tokyo.
	assert.True(t, hours.Open(time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)))
	assert.False(t, hours.Open(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
}
