package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/repository/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder captures every event published on the dispatcher it wraps.
type recorder struct {
	events.Dispatcher
	mu     sync.Mutex
	events []events.Event
}

func newRecorder() *recorder {
	return &recorder{Dispatcher: events.NewInMemoryDispatcher()}
}

func (r *recorder) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return r.Dispatcher.Publish(ctx, event)
}

func (r *recorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fixture struct {
	clock   *testClock
	tickets *memory.TicketRepository
	users   *memory.UserRepository
	events  *recorder

	employee *domain.User
	manager  *domain.User
	manager2 *domain.User
	cto      *domain.User
	admin    *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newTestClock()
	f := &fixture{
		clock:   clock,
		tickets: memory.NewTicketRepository().WithClock(clock.Now),
		users:   memory.NewUserRepository(),
		events:  newRecorder(),
	}
	f.employee = f.addUser(t, "Erin Employee", "erin@company.com", domain.RoleEmployee, 0)
	f.manager = f.addUser(t, "Mona Manager", "mona@company.com", domain.RoleManager, 1)
	f.manager2 = f.addUser(t, "Mark Manager", "mark@company.com", domain.RoleManager, 2)
	f.cto = f.addUser(t, "Chris CTO", "cto@company.com", domain.RoleCTO, 3)
	f.admin = f.addUser(t, "Ada Admin", "ada@company.com", domain.RoleAdmin, 4)
	return f
}

func (f *fixture) addUser(t *testing.T, name, email string, role domain.Role, order int) *domain.User {
	t.Helper()

	user := &domain.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: f.clock.Now().Add(time.Duration(order) * time.Second),
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) newTicket(t *testing.T) *domain.Ticket {
	t.Helper()

	ticket := domain.NewTicket(f.employee.ID, "New laptop", "Current one is dead", "Hardware", domain.TicketPriorityHigh)
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func (f *fixture) reload(t *testing.T, id string) *domain.Ticket {
	t.Helper()

	ticket, err := f.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}
