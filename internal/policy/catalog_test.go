package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/calendar"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

func TestDefaultCatalogResolve(t *testing.T) {
	cat := Default()

	tests := []struct {
		priority      domain.TicketPriority
		firstResponse time.Duration
		resolution    time.Duration
		calendar      string
	}{
		{domain.TicketPriorityLow, 24 * time.Hour, 72 * time.Hour, CalendarBusiness},
		{domain.TicketPriorityMedium, 8 * time.Hour, 24 * time.Hour, CalendarBusiness},
		{domain.TicketPriorityHigh, 2 * time.Hour, 8 * time.Hour, CalendarAlwaysOn},
		{domain.TicketPriorityUrgent, 30 * time.Minute, 4 * time.Hour, CalendarAlwaysOn},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			p, err := cat.Resolve("billing", tt.priority)
			require.NoError(t, err)
			assert.Equal(t, tt.firstResponse, p.FirstResponseTarget)
			assert.Equal(t, tt.resolution, p.ResolutionTarget)
			assert.Equal(t, tt.calendar, p.Calendar)
			assert.Equal(t, "billing", p.Classification)

			cal, err := cat.Calendar(p.Calendar)
			require.NoError(t, err)
			assert.Equal(t, tt.calendar, cal.Name)
		})
	}
}

func TestResolvePrefersExactClassification(t *testing.T) {
	cat, err := NewCatalog(
		[]*calendar.BusinessCalendar{calendar.AlwaysOn("24x7")},
		[]domain.Policy{
			{Name: "generic", Priority: domain.TicketPriorityHigh, FirstResponseTarget: time.Hour, ResolutionTarget: 8 * time.Hour, Calendar: "24x7"},
			{Name: "vip", Classification: "vip", Priority: domain.TicketPriorityHigh, FirstResponseTarget: 15 * time.Minute, ResolutionTarget: 2 * time.Hour, Calendar: "24x7"},
		},
	)
	require.NoError(t, err)

	p, err := cat.Resolve("vip", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "vip", p.Name)

	p, err = cat.Resolve("general", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "generic", p.Name)

	_, err = cat.Resolve("vip", domain.TicketPriorityLow)
	require.ErrorIs(t, err, apperrors.ErrPolicyNotFound)
	assert.Equal(t, "vip", apperrors.ToDomainError(err).Details["classification"])
}

func TestUnknownCalendar(t *testing.T) {
	_, err := Default().Calendar("moon-base")
	assert.ErrorIs(t, err, apperrors.ErrPolicyNotFound)
}

func TestNewCatalogRejectsInvalidConfig(t *testing.T) {
	cals := []*calendar.BusinessCalendar{calendar.AlwaysOn("24x7")}

	_, err := NewCatalog(cals, []domain.Policy{{Name: "x", Priority: "critical", Calendar: "24x7"}})
	assert.ErrorContains(t, err, "unknown priority")

	_, err = NewCatalog(cals, []domain.Policy{{Name: "x", Priority: domain.TicketPriorityLow, Calendar: "nope"}})
	assert.ErrorContains(t, err, "unknown calendar")

	_, err = NewCatalog(cals, []domain.Policy{{Name: "x", Priority: domain.TicketPriorityLow, ResolutionTarget: -time.Hour, Calendar: "24x7"}})
	assert.ErrorContains(t, err, "negative")

	dup := domain.Policy{Name: "x", Priority: domain.TicketPriorityLow, Calendar: "24x7"}
	_, err = NewCatalog(cals, []domain.Policy{dup, dup})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewCatalog(append(cals, calendar.AlwaysOn("24x7")), nil)
	assert.ErrorContains(t, err, "duplicate calendar")
}

func TestLoadFile(t *testing.T) {
	cat, err := LoadFile(filepath.Join("..", "..", "config", "policies.yaml"))
	require.NoError(t, err)

	p, err := cat.Resolve("quote", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "shipment-quote-high", p.Name)
	assert.Equal(t, time.Hour, p.FirstResponseTarget)
	assert.Equal(t, 16*time.Hour, p.ResolutionTarget)

	cal, err := cat.Calendar("business")
	require.NoError(t, err)
	assert.Len(t, cal.Hours[time.Monday], 1)
	assert.Empty(t, cal.Hours[time.Saturday])
	assert.Contains(t, cal.Holidays, calendar.Holiday{Month: time.December, Day: 25})
	assert.Len(t, cat.Policies(), 5)
}

func TestParseRejectsBadCalendar(t *testing.T) {
	_, err := Parse([]byte(`
calendars:
  office:
    hours:
      funday: ["09:00-17:00"]
`))
	assert.ErrorContains(t, err, "unknown weekday")

	_, err = Parse([]byte(`
calendars:
  office:
    timezone: Mars/Olympus
`))
	assert.Error(t, err)

	_, err = Parse([]byte("policies: [oops"))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
