package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-lifecycle/internal/calendar"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

type fileConfig struct {
	Calendars map[string]calendarConfig `yaml:"calendars"`
	Policies  []policyConfig            `yaml:"policies"`
}

type calendarConfig struct {
	Timezone string              `yaml:"timezone"`
	AlwaysOn bool                `yaml:"always_on"`
	Hours    map[string][]string `yaml:"hours"`
	Holidays []string            `yaml:"holidays"`
}

type policyConfig struct {
	Name           string        `yaml:"name"`
	Classification string        `yaml:"classification"`
	Priority       string        `yaml:"priority"`
	FirstResponse  time.Duration `yaml:"first_response"`
	Resolution     time.Duration `yaml:"resolution"`
	Calendar       string        `yaml:"calendar"`
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	calendars := make([]*calendar.BusinessCalendar, 0, len(cfg.Calendars))
	for name, cc := range cfg.Calendars {
		cal, err := cc.build(name)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, cal)
	}

	policies := make([]domain.Policy, 0, len(cfg.Policies))
	for _, pc := range cfg.Policies {
		policies = append(policies, domain.Policy{
			Name:                pc.Name,
			Classification:      pc.Classification,
			Priority:            domain.TicketPriority(pc.Priority),
			FirstResponseTarget: pc.FirstResponse,
			ResolutionTarget:    pc.Resolution,
			Calendar:            pc.Calendar,
		})
	}
	return NewCatalog(calendars, policies)
}

func (cc calendarConfig) build(name string) (*calendar.BusinessCalendar, error) {
	loc := time.UTC
	if cc.Timezone != "" {
		l, err := time.LoadLocation(cc.Timezone)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", name, err)
		}
		loc = l
	}
	cal := &calendar.BusinessCalendar{
		Name:     name,
		Location: loc,
		AlwaysOn: cc.AlwaysOn,
		Hours:    make(map[time.Weekday][]calendar.Window, len(cc.Hours)),
	}
	for dayName, windows := range cc.Hours {
		wd, err := calendar.ParseWeekday(dayName)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", name, err)
		}
		for _, raw := range windows {
			w, err := calendar.ParseWindow(raw)
			if err != nil {
				return nil, fmt.Errorf("calendar %s: %w", name, err)
			}
			cal.Hours[wd] = append(cal.Hours[wd], w)
		}
	}
	for _, raw := range cc.Holidays {
		h, err := calendar.ParseHoliday(raw)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", name, err)
		}
		cal.Holidays = append(cal.Holidays, h)
	}
	return cal, nil
}
