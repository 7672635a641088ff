// ABOUTME: Calendar collaborator that inserts one Google Calendar event per itinerary activity
// ABOUTME: Activity times are read in the configured zone starting from the departure date

package gcal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// DefaultTimeZone is used when Config.TimeZone is empty.
const DefaultTimeZone = "Asia/Seoul"

const defaultActivityLength = time.Hour

// Config selects credentials and zone.
type Config struct {
	CredentialsFile string
	TimeZone        string
}

// Registrar implements agent.Calendar.
type Registrar struct {
	svc *calendar.Service
	loc *time.Location
}

var _ agent.Calendar = (*Registrar)(nil)

// New builds a Registrar from a service account credentials file.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Registrar, error) {
	if cfg.CredentialsFile == "" && len(opts) == 0 {
		return nil, fmt.Errorf("gcal: credentials: %w", agent.ErrUnavailable)
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(calendar.CalendarEventsScope))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	tz := cfg.TimeZone
	if tz == "" {
		tz = DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", tz, err)
	}
	return &Registrar{svc: svc, loc: loc}, nil
}

// RegisterItinerary inserts every activity. On failure it reports how many
// events were created before the error.
func (r *Registrar) RegisterItinerary(ctx context.Context, calendarID string, plan *itinerary.Plan, start time.Time) (int, error) {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, r.loc)
	created := 0
	for _, day := range plan.Itinerary {
		date := startDay.AddDate(0, 0, day.Day-1)
		for _, a := range day.Activities {
			begin, err := clock(date, a.Time)
			if err != nil {
				return created, fmt.Errorf("day %d %q: %w", day.Day, a.Description, err)
			}
			end := begin.Add(ParseDuration(a.Duration))

			ev := &calendar.Event{
				Summary:     a.Description,
				Location:    a.Location,
				Description: describe(a),
				Start:       &calendar.EventDateTime{DateTime: begin.Format(time.RFC3339), TimeZone: r.loc.String()},
				End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: r.loc.String()},
			}
			if _, err := r.svc.Events.Insert(calendarID, ev).Context(ctx).Do(); err != nil {
				return created, fmt.Errorf("inserting event for day %d: %w", day.Day, err)
			}
			created++
		}
	}
	return created, nil
}

func clock(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("activity time %q: %w", hhmm, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func describe(a itinerary.Activity) string {
	var b strings.Builder
	if a.Cost != nil {
		fmt.Fprintf(&b, "Cost: %.0f\n", *a.Cost)
	}
	fmt.Fprintf(&b, "Location: %s\n", a.Location)
	if a.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", a.Duration)
	}
	return b.String()
}

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:시간|hours?|hrs?|h)`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*(?:분|minutes?|mins?|m)`)
)

// ParseDuration reads lengths like "2시간 30분", "90분", "1h30m" or
// "3 hours". Unknown input falls back to one hour.
func ParseDuration(s string) time.Duration {
	var d time.Duration
	if m := hoursRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * time.Hour
		s = strings.Replace(s, m[0], "", 1)
	}
	if m := minutesRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * time.Minute
	}
	if d <= 0 {
		return defaultActivityLength
	}
	return d
}
