package people

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatroster/internal/app/wire"
	"chatroster/internal/configs"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/logx"
	"chatroster/internal/pkg/randx"
)

// AnonymousName is the display name of the anonymous person.
const AnonymousName = "anonymous"

// State is the session state of a Model.
type State int

const (
	// StateAnonymous means the current user is the anonymous person.
	StateAnonymous State = iota
	// StatePendingLogin means a provisional person is the current user and awaits confirmation.
	StatePendingLogin
	// StateAuthenticated means the current user has been confirmed by the registrar.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StatePendingLogin:
		return "login pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// pendingLogin identifies one login attempt. A confirmation is applied only while the
// attempt is still the model's pending one.
type pendingLogin struct {
	epoch    uint64
	clientID string
	timer    *time.Timer
}

// Model owns the roster and the current user pointer.
// All operations are serialized; notifications are delivered after the model is unlocked,
// so handlers may call back into it.
type Model struct {
	// mu serializes every operation and every inbound transport message.
	mu sync.Mutex

	roster *Roster
	cids   randx.CidAllocator

	// anon is created once and is never removed from the roster.
	anon *Person
	user *Person

	state   State
	epoch   uint64
	pending *pendingLogin
	token   string

	timeout   time.Duration
	transport Transport
	notifier  *Notifier

	logger zerolog.Logger
}

// NewModel builds a model whose roster holds only the anonymous person and
// subscribes it to the registrar messages of transport.
func NewModel(cfg *configs.AppConfig, transport Transport) *Model {
	anonID := cfg.AnonID
	if anonID == "" {
		anonID = configs.DefaultAnonID
	}

	anon := &Person{ClientID: anonID, ServerID: anonID, Name: AnonymousName}

	m := &Model{
		roster:    NewRoster(),
		anon:      anon,
		user:      anon,
		state:     StateAnonymous,
		timeout:   cfg.RegistrationTimeout,
		transport: transport,
		notifier:  NewNotifier(),
		logger:    logx.Component("people"),
	}
	m.roster.Insert(anon)

	if transport != nil {
		transport.On(string(wire.TypeUserRegistered), m.handleUserRegistered)
		transport.On(string(wire.TypeListChange), m.handleListChange)
		transport.On(string(wire.TypeError), m.handleError)
	}

	return m
}

// CurrentUser returns the current user, the anonymous person when nobody is logged in.
func (m *Model) CurrentUser() *Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Anonymous returns the anonymous person.
func (m *Model) Anonymous() *Person {
	return m.anon
}

// State returns the current session state.
func (m *Model) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the identity token handed out with the last confirmed login.
func (m *Model) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Roster returns every known person, current user included, in roster order.
func (m *Model) Roster() []*Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roster.All()
}

// FindByClientID looks a person up by client id.
func (m *Model) FindByClientID(cid string) (*Person, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roster.FindByClientID(cid)
}

// IsCurrentUser reports whether p is the current user.
func (m *Model) IsCurrentUser(p *Person) bool {
	if p == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.ClientID == m.user.ClientID
}

// IsAnonymous reports whether p is the anonymous person.
func (m *Model) IsAnonymous(p *Person) bool {
	return p != nil && p.ClientID == m.anon.ClientID
}

// Subscribe registers handler for kind and returns the function that removes it.
func (m *Model) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	return m.notifier.Subscribe(kind, handler)
}

// Seed inserts persons already known to the server, typically at startup.
// Every entry is validated before any is inserted. Entries keyed like the anonymous
// person or the current user are skipped.
func (m *Model) Seed(params ...PersonParams) error {
	seeded := make([]*Person, 0, len(params))
	for _, p := range params {
		person, err := NewPerson(p)
		if err != nil {
			return err
		}
		seeded = append(seeded, person)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range seeded {
		if p.ClientID == m.anon.ClientID || p.ClientID == m.user.ClientID {
			continue
		}
		m.roster.Insert(p)
	}
	return nil
}

// Login makes a new provisional person named name the current user and asks the
// registrar to confirm it. It is only allowed while anonymous.
func (m *Model) Login(name string) error {
	m.mu.Lock()

	if m.state != StateAnonymous {
		state := m.state
		m.mu.Unlock()
		return errs.NewError(errs.ErrInvalidSessionState, state)
	}
	if m.transport == nil {
		m.mu.Unlock()
		return errs.NewError(errs.ErrTransportClosed)
	}

	person, err := NewPerson(PersonParams{
		ClientID:     m.cids.Next(),
		Name:         name,
		Presentation: DefaultPresentation(),
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.roster.Insert(person)
	m.user = person
	m.state = StatePendingLogin
	m.epoch++

	pending := &pendingLogin{epoch: m.epoch, clientID: person.ClientID}
	if m.timeout > 0 {
		epoch := m.epoch
		pending.timer = time.AfterFunc(m.timeout, func() { m.expirePending(epoch) })
	}
	m.pending = pending

	request := wire.RegisterUserPayload{
		ClientID:     person.ClientID,
		Name:         person.Name,
		Presentation: wire.Presentation(person.Presentation),
	}
	m.mu.Unlock()

	m.logger.Info().Str("client_id", request.ClientID).Str("name", request.Name).Msg("Login started, awaiting registration.")

	if err := m.transport.Emit(string(wire.TypeRegisterUser), request); err != nil {
		m.abandon(pending.epoch)
		return fmt.Errorf("emit %s: %w", wire.TypeRegisterUser, err)
	}

	return nil
}

// Logout drops the current user from the roster and restores the anonymous person.
// It reports whether a person was removed; it returns false while already anonymous.
func (m *Model) Logout() bool {
	m.mu.Lock()

	if m.state == StateAnonymous {
		m.mu.Unlock()
		return false
	}

	former := m.user
	confirmedID := ""
	if m.state == StateAuthenticated {
		confirmedID = former.ServerID
	}
	m.cancelPending()

	removed := false
	if former.ClientID != m.anon.ClientID {
		removed = m.roster.RemoveWhere(ByClientID(former.ClientID)) > 0
	}

	m.user = m.anon
	m.state = StateAnonymous
	m.token = ""
	m.mu.Unlock()

	m.logger.Info().Str("client_id", former.ClientID).Bool("removed", removed).Msg("Logout completed.")
	if confirmedID != "" {
		m.withdraw(confirmedID)
	}
	m.notifier.Publish(Event{Kind: EventLogoutCompleted, Person: former})

	return removed
}

// handleUserRegistered reconciles the pending person with the id assigned by the registrar.
func (m *Model) handleUserRegistered(raw json.RawMessage) {
	confirmation, err := wire.DecodeUserRegistered(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring malformed registration confirmation.")
		return
	}

	user, ok, stale := m.completeLogin(confirmation)
	if !ok {
		if stale != "" {
			// The registrar holds a person nobody here is waiting for any more.
			m.withdraw(stale)
		}
		return
	}

	m.logger.Info().Str("client_id", user.ClientID).Msg("Login completed.")
	m.notifier.Publish(Event{Kind: EventLoginCompleted, Person: user})
}

// completeLogin applies confirmation to the pending login. When the confirmation is stale
// it also returns the server id the registrar should drop, unless that id is in use here.
func (m *Model) completeLogin(confirmation wire.UserRegisteredPayload) (*Person, bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePendingLogin || m.pending == nil || m.pending.clientID != confirmation.ClientID {
		m.logger.Warn().
			Str("client_id", confirmation.ClientID).
			Str("state", m.state.String()).
			Msg("Ignoring stale registration confirmation.")

		stale := confirmation.ServerID
		if stale == m.anon.ClientID || (m.user.IsConfirmed() && stale == m.user.ServerID) {
			stale = ""
		}
		return nil, false, stale
	}
	if confirmation.ServerID == "" || confirmation.ServerID == m.anon.ClientID {
		m.logger.Warn().
			Str("client_id", confirmation.ClientID).
			Str("server_id", confirmation.ServerID).
			Msg("Ignoring registration confirmation with unusable server id.")
		return nil, false, ""
	}

	m.cancelPending()
	m.roster.RemoveWhere(ByClientID(confirmation.ClientID))

	m.user.ClientID = confirmation.ServerID
	m.user.ServerID = confirmation.ServerID
	m.user.Presentation = Presentation(confirmation.Presentation)
	m.roster.Insert(m.user)

	m.state = StateAuthenticated
	m.token = confirmation.Token

	return m.user, true, ""
}

// handleListChange rebuilds the roster around the current user from the registrar's list
// of online persons.
func (m *Model) handleListChange(raw json.RawMessage) {
	var list []wire.PersonPayload
	if err := json.Unmarshal(raw, &list); err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring malformed list change.")
		return
	}

	m.mu.Lock()
	m.roster.Reset(m.user)
	m.roster.Insert(m.anon)

	for _, entry := range list {
		if entry.Name == "" || entry.ID == m.anon.ClientID {
			continue
		}
		if m.user.IsConfirmed() && entry.ID == m.user.ServerID {
			m.user.Presentation = Presentation(entry.Presentation)
			continue
		}

		person, err := NewPerson(PersonParams{
			ClientID:     entry.ID,
			ServerID:     entry.ID,
			Name:         entry.Name,
			Presentation: Presentation(entry.Presentation),
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("id", entry.ID).Msg("Skipping invalid list entry.")
			continue
		}
		m.roster.Insert(person)
	}
	user, size := m.user, m.roster.Len()
	m.mu.Unlock()

	m.logger.Debug().Int("roster_size", size).Msg("Roster rebuilt from list change.")
	m.notifier.Publish(Event{Kind: EventRosterChanged, Person: user})
}

// handleError fails the pending login when the registrar refuses a request.
// Outside a pending login the refusal is only logged.
func (m *Model) handleError(raw json.RawMessage) {
	var payload wire.ErrorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring malformed error message.")
		return
	}
	refusal := &errs.CustomError{Code: payload.Code, Message: payload.Message}

	m.mu.Lock()
	epoch, pending := uint64(0), m.state == StatePendingLogin && m.pending != nil
	if pending {
		epoch = m.pending.epoch
	}
	m.mu.Unlock()

	if !pending {
		m.logger.Warn().Int("code", payload.Code).Str("message", payload.Message).Msg("Registrar refused a request.")
		return
	}

	if former, ok := m.rollback(epoch); ok {
		m.logger.Warn().Str("client_id", former.ClientID).Int("code", payload.Code).Msg("Registration refused, login abandoned.")
		m.notifier.Publish(Event{Kind: EventLoginFailed, Person: former, Err: refusal})
	}
}

// withdraw asks the registrar to drop a person it confirmed for this client.
func (m *Model) withdraw(serverID string) {
	if m.transport == nil {
		return
	}
	if err := m.transport.Emit(string(wire.TypeLeaveUser), wire.LeaveUserPayload{ServerID: serverID}); err != nil {
		m.logger.Warn().Err(err).Str("server_id", serverID).Msg("Failed to withdraw person from registrar.")
	}
}

// expirePending abandons the login attempt identified by epoch if it is still pending.
func (m *Model) expirePending(epoch uint64) {
	if former, ok := m.rollback(epoch); ok {
		err := errs.NewError(errs.ErrRegistrationTimeout, m.timeout)
		m.logger.Warn().Str("client_id", former.ClientID).Dur("timeout", m.timeout).Msg("Registration not confirmed, login abandoned.")
		m.notifier.Publish(Event{Kind: EventLoginFailed, Person: former, Err: err})
	}
}

// abandon undoes a login attempt whose registration request could not be sent.
func (m *Model) abandon(epoch uint64) {
	if former, ok := m.rollback(epoch); ok {
		m.logger.Warn().Str("client_id", former.ClientID).Msg("Registration request failed, login abandoned.")
	}
}

func (m *Model) rollback(epoch uint64) (*Person, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil || m.pending.epoch != epoch {
		return nil, false
	}

	former := m.user
	m.cancelPending()
	m.roster.RemoveWhere(ByClientID(former.ClientID))
	m.user = m.anon
	m.state = StateAnonymous

	return former, true
}

// cancelPending invalidates the outstanding login attempt. Callers hold mu.
func (m *Model) cancelPending() {
	if m.pending != nil && m.pending.timer != nil {
		m.pending.timer.Stop()
	}
	m.pending = nil
	m.epoch++
}
