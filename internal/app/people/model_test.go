package people

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatroster/internal/app/wire"
	"chatroster/internal/configs"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/transport/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestModel(t *testing.T, timeout time.Duration) (*Model, *memory.Transport) {
	t.Helper()
	tr := memory.New()
	m := NewModel(&configs.AppConfig{AnonID: "a0", RegistrationTimeout: timeout}, tr)
	return m, tr
}

func lastRegistration(t *testing.T, tr *memory.Transport) wire.RegisterUserPayload {
	t.Helper()
	emitted := tr.Emitted()
	require.NotEmpty(t, emitted)

	env := emitted[len(emitted)-1]
	require.Equal(t, wire.TypeRegisterUser, env.Type)

	var request wire.RegisterUserPayload
	require.NoError(t, json.Unmarshal(env.Payload, &request))
	return request
}

func lastWithdrawal(t *testing.T, tr *memory.Transport) (wire.LeaveUserPayload, bool) {
	t.Helper()
	emitted := tr.Emitted()
	if len(emitted) == 0 || emitted[len(emitted)-1].Type != wire.TypeLeaveUser {
		return wire.LeaveUserPayload{}, false
	}

	var leave wire.LeaveUserPayload
	require.NoError(t, json.Unmarshal(emitted[len(emitted)-1].Payload, &leave))
	return leave, true
}

func confirm(t *testing.T, tr *memory.Transport, cid, serverID string) {
	t.Helper()
	require.NoError(t, tr.Deliver(string(wire.TypeUserRegistered), []wire.UserRegisteredPayload{{
		ClientID:     cid,
		ServerID:     serverID,
		Presentation: wire.Presentation{"top": 40},
		Token:        "token-" + serverID,
	}}))
}

func TestNewModelStartsAnonymous(t *testing.T) {
	m, _ := newTestModel(t, 0)

	anon := m.CurrentUser()
	assert.Equal(t, "a0", anon.ClientID)
	assert.Equal(t, "a0", anon.ServerID)
	assert.Equal(t, AnonymousName, anon.Name)
	assert.Equal(t, StateAnonymous, m.State())
	assert.True(t, m.IsAnonymous(anon))
	assert.True(t, m.IsCurrentUser(anon))

	got, ok := m.FindByClientID("a0")
	require.True(t, ok)
	assert.Same(t, anon, got)
}

func TestNewModelDefaultsAnonID(t *testing.T) {
	m := NewModel(&configs.AppConfig{}, memory.New())
	assert.Equal(t, configs.DefaultAnonID, m.Anonymous().ClientID)
}

func TestLogoutWhileAnonymousRemovesNothing(t *testing.T) {
	m, _ := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLogoutCompleted, rec.handle)

	assert.False(t, m.Logout())

	_, ok := m.FindByClientID("a0")
	assert.True(t, ok)
	assert.Len(t, m.Roster(), 1)
	assert.Empty(t, rec.all())
}

func TestLoginEmitsRegistrationAndPends(t *testing.T) {
	m, tr := newTestModel(t, 0)

	require.NoError(t, m.Login("Alice"))

	user := m.CurrentUser()
	assert.Equal(t, StatePendingLogin, m.State())
	assert.Equal(t, "Alice", user.Name)
	assert.False(t, user.IsConfirmed())
	assert.Equal(t, DefaultPresentation(), user.Presentation)
	assert.True(t, m.IsCurrentUser(user))
	assert.False(t, m.IsAnonymous(user))

	request := lastRegistration(t, tr)
	assert.Equal(t, user.ClientID, request.ClientID)
	assert.Equal(t, "Alice", request.Name)
	assert.EqualValues(t, 25, request.Presentation["top"])

	got, ok := m.FindByClientID(user.ClientID)
	require.True(t, ok)
	assert.Same(t, user, got)
}

func TestLoginRejectsEmptyName(t *testing.T) {
	for _, name := range []string{"", "   "} {
		m, tr := newTestModel(t, 0)

		err := m.Login(name)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.ErrPersonInvalid))
		assert.Equal(t, StateAnonymous, m.State())
		assert.Empty(t, tr.Emitted())
	}
}

func TestLoginTwiceWhilePendingFails(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))

	err := m.Login("Bob")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalidSessionState))
	assert.Len(t, tr.Emitted(), 1)
	assert.Equal(t, "Alice", m.CurrentUser().Name)
}

func TestConfirmationReconcilesClientID(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLoginCompleted, rec.handle)

	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	confirm(t, tr, provisional, "42")

	_, ok := m.FindByClientID(provisional)
	assert.False(t, ok)

	user, ok := m.FindByClientID("42")
	require.True(t, ok)
	assert.Same(t, m.CurrentUser(), user)
	assert.Equal(t, "42", user.ClientID)
	assert.Equal(t, "42", user.ServerID)
	assert.EqualValues(t, 40, user.Presentation["top"])
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "token-42", m.Token())

	matches := 0
	for _, p := range m.Roster() {
		if p.ClientID == "42" {
			matches++
		}
	}
	assert.Equal(t, 1, matches)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Same(t, user, events[0].Person)

	err := m.Login("Again")
	assert.True(t, errs.Is(err, errs.ErrInvalidSessionState))
}

func TestConfirmationForOtherClientIDIsIgnored(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLoginCompleted, rec.handle)

	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, "c999", "42")

	assert.Equal(t, StatePendingLogin, m.State())
	_, ok := m.FindByClientID("42")
	assert.False(t, ok)
	assert.Empty(t, rec.all())
}

func TestConfirmationWithoutServerIDIsIgnored(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))

	confirm(t, tr, lastRegistration(t, tr).ClientID, "")

	assert.Equal(t, StatePendingLogin, m.State())
}

func TestMalformedConfirmationIsIgnored(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))

	require.NoError(t, tr.Deliver(string(wire.TypeUserRegistered), "garbage"))

	assert.Equal(t, StatePendingLogin, m.State())
}

func TestLogoutAfterLoginRemovesUser(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLogoutCompleted, rec.handle)

	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")
	user := m.CurrentUser()

	assert.True(t, m.Logout())

	_, ok := m.FindByClientID("42")
	assert.False(t, ok)
	assert.Same(t, m.Anonymous(), m.CurrentUser())
	assert.Equal(t, StateAnonymous, m.State())
	assert.Empty(t, m.Token())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Same(t, user, events[0].Person)

	assert.False(t, m.Logout())
	assert.Len(t, rec.all(), 1)
}

func TestLateConfirmationAfterLogoutIsStale(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLoginCompleted, rec.handle)

	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	assert.True(t, m.Logout())
	confirm(t, tr, provisional, "42")

	assert.Equal(t, StateAnonymous, m.State())
	assert.Same(t, m.Anonymous(), m.CurrentUser())
	_, ok := m.FindByClientID("42")
	assert.False(t, ok)
	_, ok = m.FindByClientID(provisional)
	assert.False(t, ok)
	assert.Empty(t, rec.all())
}

func TestLateConfirmationOfEarlierAttemptIsStale(t *testing.T) {
	m, tr := newTestModel(t, 0)

	require.NoError(t, m.Login("Alice"))
	first := lastRegistration(t, tr).ClientID
	m.Logout()

	require.NoError(t, m.Login("Bob"))
	second := lastRegistration(t, tr).ClientID
	require.NotEqual(t, first, second)

	confirm(t, tr, first, "41")
	assert.Equal(t, StatePendingLogin, m.State())
	assert.Equal(t, second, m.CurrentUser().ClientID)

	confirm(t, tr, second, "42")
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "Bob", m.CurrentUser().Name)
}

func TestPendingLoginTimesOut(t *testing.T) {
	m, tr := newTestModel(t, 20*time.Millisecond)
	rec := &recorder{}
	m.Subscribe(EventLoginFailed, rec.handle)

	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	ev := rec.all()[0]
	assert.Equal(t, provisional, ev.Person.ClientID)
	assert.True(t, errs.Is(ev.Err, errs.ErrRegistrationTimeout))
	assert.Equal(t, StateAnonymous, m.State())
	assert.Len(t, m.Roster(), 1)

	confirm(t, tr, provisional, "42")
	assert.Equal(t, StateAnonymous, m.State())
}

func TestConfirmedLoginDoesNotTimeOut(t *testing.T) {
	m, tr := newTestModel(t, 20*time.Millisecond)
	rec := &recorder{}
	m.Subscribe(EventLoginFailed, rec.handle)

	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.all())
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestLoginRollsBackWhenEmitFails(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, tr.Close())

	err := m.Login("Alice")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrTransportClosed))

	assert.Equal(t, StateAnonymous, m.State())
	assert.Same(t, m.Anonymous(), m.CurrentUser())
	assert.Len(t, m.Roster(), 1)
}

func TestLoginWithoutTransport(t *testing.T) {
	m := NewModel(&configs.AppConfig{AnonID: "a0"}, nil)

	err := m.Login("Alice")
	assert.True(t, errs.Is(err, errs.ErrTransportClosed))
	assert.Equal(t, StateAnonymous, m.State())
}

func TestSynchronousConfirmationDuringEmit(t *testing.T) {
	m, tr := newTestModel(t, 0)
	tr.SetResponder(memory.AutoConfirm(0))
	rec := &recorder{}
	m.Subscribe(EventLoginCompleted, rec.handle)

	require.NoError(t, m.Login("Alice"))

	assert.Equal(t, StateAuthenticated, m.State())
	require.Len(t, rec.all(), 1)
	assert.True(t, m.CurrentUser().IsConfirmed())
}

func TestHandlersMayCallBackIntoModel(t *testing.T) {
	m, tr := newTestModel(t, 0)
	var seen []State

	m.Subscribe(EventLoginCompleted, func(ev Event) {
		seen = append(seen, m.State())
		assert.True(t, m.IsCurrentUser(ev.Person))
	})
	m.Subscribe(EventLogoutCompleted, func(ev Event) {
		seen = append(seen, m.State())
		assert.False(t, m.IsCurrentUser(ev.Person))
	})

	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")
	m.Logout()

	assert.Equal(t, []State{StateAuthenticated, StateAnonymous}, seen)
}

func TestListChangeRebuildsRosterAroundCurrentUser(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventRosterChanged, rec.handle)

	require.NoError(t, m.Seed(PersonParams{ClientID: "old", ServerID: "old", Name: "Gone"}))
	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")

	require.NoError(t, tr.Deliver(string(wire.TypeListChange), []wire.PersonPayload{
		{ID: "42", Name: "Alice", Presentation: wire.Presentation{"top": 99}},
		{ID: "7", Name: "Bob"},
		{ID: "8", Name: ""},
		{ID: "a0", Name: "impostor"},
	}))

	var ids []string
	for _, p := range m.Roster() {
		ids = append(ids, p.ClientID)
	}
	assert.ElementsMatch(t, []string{"a0", "42", "7"}, ids)
	assert.EqualValues(t, 99, m.CurrentUser().Presentation["top"])

	anon, ok := m.FindByClientID("a0")
	require.True(t, ok)
	assert.Equal(t, AnonymousName, anon.Name)

	require.Len(t, rec.all(), 1)
	assert.Same(t, m.CurrentUser(), rec.all()[0].Person)
}

func TestListChangeWhileAnonymousKeepsAnonymous(t *testing.T) {
	m, tr := newTestModel(t, 0)

	require.NoError(t, tr.Deliver(string(wire.TypeListChange), []wire.PersonPayload{{ID: "7", Name: "Bob"}}))

	assert.Len(t, m.Roster(), 2)
	assert.Same(t, m.Anonymous(), m.CurrentUser())
}

func TestSeedValidatesBeforeInserting(t *testing.T) {
	m, _ := newTestModel(t, 0)

	err := m.Seed(
		PersonParams{ClientID: "1", ServerID: "1", Name: "Bob"},
		PersonParams{ClientID: "2", ServerID: "2"},
	)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrPersonInvalid))
	assert.Len(t, m.Roster(), 1)

	require.NoError(t, m.Seed(
		PersonParams{ClientID: "1", ServerID: "1", Name: "Bob"},
		PersonParams{ClientID: "a0", ServerID: "a0", Name: "not anonymous"},
	))
	assert.Len(t, m.Roster(), 2)
	assert.Equal(t, AnonymousName, m.Anonymous().Name)
	anon, _ := m.FindByClientID("a0")
	assert.Same(t, m.Anonymous(), anon)
}

func TestLogoutWithdrawsConfirmedPerson(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")

	require.True(t, m.Logout())

	leave, ok := lastWithdrawal(t, tr)
	require.True(t, ok)
	assert.Equal(t, "42", leave.ServerID)
}

func TestLogoutWhilePendingWithdrawsLateConfirmation(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	require.True(t, m.Logout())
	_, ok := lastWithdrawal(t, tr)
	assert.False(t, ok)

	confirm(t, tr, provisional, "42")

	leave, ok := lastWithdrawal(t, tr)
	require.True(t, ok)
	assert.Equal(t, "42", leave.ServerID)
	assert.Equal(t, StateAnonymous, m.State())
}

func TestRepeatedConfirmationKeepsCurrentUser(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID
	confirm(t, tr, provisional, "42")

	confirm(t, tr, provisional, "42")

	_, withdrawn := lastWithdrawal(t, tr)
	assert.False(t, withdrawn)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestRefusalFailsPendingLogin(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLoginFailed, rec.handle)

	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	require.NoError(t, tr.Deliver(string(wire.TypeError), wire.ErrorPayload{Code: errs.ErrPersonInvalid, Message: "refused"}))

	assert.Equal(t, StateAnonymous, m.State())
	assert.Same(t, m.Anonymous(), m.CurrentUser())
	assert.Len(t, m.Roster(), 1)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, provisional, events[0].Person.ClientID)
	assert.True(t, errs.Is(events[0].Err, errs.ErrPersonInvalid))

	require.NoError(t, m.Login("Alice"))
	assert.Equal(t, StatePendingLogin, m.State())
}

func TestRefusalOutsidePendingLoginIsIgnored(t *testing.T) {
	m, tr := newTestModel(t, 0)
	rec := &recorder{}
	m.Subscribe(EventLoginFailed, rec.handle)

	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")

	require.NoError(t, tr.Deliver(string(wire.TypeError), wire.ErrorPayload{Code: errs.ErrInvalidParams}))

	assert.Equal(t, StateAuthenticated, m.State())
	assert.Empty(t, rec.all())
}

func TestConfirmationWithAnonymousIDIsIgnored(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))
	provisional := lastRegistration(t, tr).ClientID

	confirm(t, tr, provisional, "a0")

	assert.Equal(t, StatePendingLogin, m.State())
	anon, ok := m.FindByClientID("a0")
	require.True(t, ok)
	assert.Same(t, m.Anonymous(), anon)
	assert.Equal(t, AnonymousName, anon.Name)
	_, withdrawn := lastWithdrawal(t, tr)
	assert.False(t, withdrawn)

	assert.True(t, m.Logout())
	anon, ok = m.FindByClientID("a0")
	require.True(t, ok)
	assert.Same(t, m.Anonymous(), anon)
	assert.Len(t, m.Roster(), 1)
}

func TestSeedSkipsCurrentUser(t *testing.T) {
	m, tr := newTestModel(t, 0)
	require.NoError(t, m.Login("Alice"))
	confirm(t, tr, lastRegistration(t, tr).ClientID, "42")

	require.NoError(t, m.Seed(PersonParams{ClientID: "42", ServerID: "42", Name: "Mallory"}))

	got, ok := m.FindByClientID("42")
	require.True(t, ok)
	assert.Same(t, m.CurrentUser(), got)
	assert.Equal(t, "Alice", got.Name)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "login pending", StatePendingLogin.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "State(9)", State(9).String())
}
