// Package calendar provides the promotional event calendar. Windows are static
// configuration: a YAML/JSON/TOML file read through viper, or the built-in default.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

// Event names used by the default calendar.
const (
	PrimeDay         = "prime_day"
	BlackFridayCyber = "black_friday_cyber_monday"
	HolidaySeason    = "holiday_season"
)

const eventsKey = "events"

// Calendar is an immutable, date-ordered set of event windows. It is safe for
// concurrent use.
type Calendar struct {
	windows []domain.EventWindow
}

// New builds a calendar from windows, sorted by start date.
func New(windows []domain.EventWindow) (*Calendar, error) {
	out := make([]domain.EventWindow, 0, len(windows))
	for _, w := range windows {
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("calendar: event window starting %s has no name", w.Start.Format(dateLayout))
		}
		if w.End.Before(w.Start) {
			return nil, fmt.Errorf("calendar: event %s ends (%s) before it starts (%s)",
				w.Name, w.End.Format(dateLayout), w.Start.Format(dateLayout))
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return &Calendar{windows: out}, nil
}

// Windows returns a copy of the event windows.
func (c *Calendar) Windows() []domain.EventWindow {
	return append([]domain.EventWindow(nil), c.windows...)
}

// Len returns the number of windows.
func (c *Calendar) Len() int { return len(c.windows) }

// Active returns the windows containing date.
func (c *Calendar) Active(date time.Time) []domain.EventWindow {
	var out []domain.EventWindow
	for _, w := range c.windows {
		if w.Contains(date) {
			out = append(out, w)
		}
	}
	return out
}

func window(name, start, end string) domain.EventWindow {
	s, _ := time.Parse(dateLayout, start)
	e, _ := time.Parse(dateLayout, end)
	return domain.EventWindow{Name: name, Start: s, End: e}
}

// Default returns three recurring events a year for 2021 through 2024.
func Default() *Calendar {
	c, _ := New([]domain.EventWindow{
		window(PrimeDay, "2021-06-21", "2021-06-22"),
		window(BlackFridayCyber, "2021-11-26", "2021-11-29"),
		window(HolidaySeason, "2021-12-01", "2021-12-24"),

		window(PrimeDay, "2022-07-12", "2022-07-13"),
		window(BlackFridayCyber, "2022-11-25", "2022-11-28"),
		window(HolidaySeason, "2022-12-01", "2022-12-24"),

		window(PrimeDay, "2023-07-11", "2023-07-12"),
		window(BlackFridayCyber, "2023-11-24", "2023-11-27"),
		window(HolidaySeason, "2023-12-01", "2023-12-24"),

		window(PrimeDay, "2024-07-16", "2024-07-17"),
		window(BlackFridayCyber, "2024-11-29", "2024-12-02"),
		window(HolidaySeason, "2024-12-03", "2024-12-24"),
	})
	return c
}

type fileWindow struct {
	Name  string `mapstructure:"name"`
	Start any    `mapstructure:"start"`
	End   any    `mapstructure:"end"`
}

// Load reads windows from a config file with a top-level "events" list:
//
//	events:
//	  - name: prime_day
//	    start: 2024-07-16
//	    end: 2024-07-17
func Load(path string) (*Calendar, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("calendar: read %s: %w", path, err)
	}

	var raw []fileWindow
	if err := v.UnmarshalKey(eventsKey, &raw); err != nil {
		return nil, fmt.Errorf("calendar: decode %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("calendar: %s defines no events", path)
	}

	windows := make([]domain.EventWindow, 0, len(raw))
	for i, r := range raw {
		start, err := parseDay(r.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: event %d (%s) start: %w", i, r.Name, err)
		}
		end, err := parseDay(r.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: event %d (%s) end: %w", i, r.Name, err)
		}
		windows = append(windows, domain.EventWindow{Name: strings.TrimSpace(r.Name), Start: start, End: end})
	}
	return New(windows)
}

// LoadOrDefault loads path when set and falls back to Default otherwise.
func LoadOrDefault(path string) (*Calendar, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", path).Int("events", c.Len()).Msg("loaded event calendar")
	return c, nil
}

// parseDay accepts date strings and decoded timestamps; YAML decoders hand
// back either form for unquoted dates.
func parseDay(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		return parseDayString(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %v", v)
	}
}

func parseDayString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05 -0700 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
