// Package policy resolves SLA policies from static configuration.
package policy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/calendar"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// AnyClassification matches every classification for a given priority.
const AnyClassification = "*"

// Default calendar names.
const (
	CalendarBusiness = "business"
	CalendarAlwaysOn = "24x7"
)

// Resolver resolves policies and the calendars they refer to.
type Resolver interface {
	Resolve(classification string, priority domain.TicketPriority) (domain.Policy, error)
	Calendar(name string) (*calendar.BusinessCalendar, error)
}

type key struct {
	classification string
	priority       domain.TicketPriority
}

// Catalog is an immutable mapping of (classification, priority) to policy.
type Catalog struct {
	policies  map[key]domain.Policy
	calendars map[string]*calendar.BusinessCalendar
}

// NewCatalog validates calendars and policies and builds a catalog.
func NewCatalog(calendars []*calendar.BusinessCalendar, policies []domain.Policy) (*Catalog, error) {
	c := &Catalog{
		policies:  make(map[key]domain.Policy, len(policies)),
		calendars: make(map[string]*calendar.BusinessCalendar, len(calendars)),
	}
	for _, cal := range calendars {
		if err := cal.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.calendars[cal.Name]; dup {
			return nil, fmt.Errorf("policy: duplicate calendar %q", cal.Name)
		}
		c.calendars[cal.Name] = cal
	}
	for _, p := range policies {
		if !p.Priority.Valid() {
			return nil, fmt.Errorf("policy %q: unknown priority %q", p.Name, p.Priority)
		}
		if p.FirstResponseTarget < 0 || p.ResolutionTarget < 0 {
			return nil, fmt.Errorf("policy %q: negative target", p.Name)
		}
		if _, ok := c.calendars[p.Calendar]; !ok {
			return nil, fmt.Errorf("policy %q: unknown calendar %q", p.Name, p.Calendar)
		}
		if p.Classification == "" {
			p.Classification = AnyClassification
		}
		k := key{classification: p.Classification, priority: p.Priority}
		if _, dup := c.policies[k]; dup {
			return nil, fmt.Errorf("policy: duplicate mapping for %s/%s", p.Classification, p.Priority)
		}
		c.policies[k] = p
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	cat, err := NewCatalog(
		[]*calendar.BusinessCalendar{
			calendar.Weekdays(CalendarBusiness, time.UTC, 9*time.Hour, 17*time.Hour),
			calendar.AlwaysOn(CalendarAlwaysOn),
		},
		[]domain.Policy{
			{Name: "standard-low", Priority: domain.TicketPriorityLow, FirstResponseTarget: 24 * time.Hour, ResolutionTarget: 72 * time.Hour, Calendar: CalendarBusiness},
			{Name: "standard-medium", Priority: domain.TicketPriorityMedium, FirstResponseTarget: 8 * time.Hour, ResolutionTarget: 24 * time.Hour, Calendar: CalendarBusiness},
			{Name: "standard-high", Priority: domain.TicketPriorityHigh, FirstResponseTarget: 2 * time.Hour, ResolutionTarget: 8 * time.Hour, Calendar: CalendarAlwaysOn},
			{Name: "standard-urgent", Priority: domain.TicketPriorityUrgent, FirstResponseTarget: 30 * time.Minute, ResolutionTarget: 4 * time.Hour, Calendar: CalendarAlwaysOn},
		},
	)
	if err != nil {
		panic(err)
	}
	return cat
}

// Resolve returns the policy for an exact classification match, falling back
// to the wildcard classification, or PolicyNotFound.
func (c *Catalog) Resolve(classification string, priority domain.TicketPriority) (domain.Policy, error) {
	if p, ok := c.policies[key{classification: classification, priority: priority}]; ok {
		return p, nil
	}
	if p, ok := c.policies[key{classification: AnyClassification, priority: priority}]; ok {
		p.Classification = classification
		return p, nil
	}
	return domain.Policy{}, apperrors.NewPolicyNotFound(classification, string(priority))
}

// Calendar returns a named calendar.
func (c *Catalog) Calendar(name string) (*calendar.BusinessCalendar, error) {
	cal, ok := c.calendars[name]
	if !ok {
		return nil, apperrors.NewDomainError(apperrors.CodePolicyNotFound, "unknown business calendar", http.StatusUnprocessableEntity,
			map[string]any{"calendar": name})
	}
	return cal, nil
}

// Policies returns every configured policy.
func (c *Catalog) Policies() []domain.Policy {
	out := make([]domain.Policy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	return out
}
