/*
Package registrar implements the server side of the roster protocol.

This file defines the Registrar, a hub that owns every connected session. It confirms
register-user requests by assigning server ids, keeps the directory of people currently
online and pushes the full list to every session whenever it changes.
*/
package registrar

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"chatroster/internal/app/wire"
	"chatroster/internal/configs"
	"chatroster/internal/pkg/auth/jwt"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/logx"
	"chatroster/internal/pkg/randx"
)

const requestChannelBuffer = 256

// request is an inbound envelope together with the session it arrived on.
type request struct {
	session  *Session
	envelope wire.Envelope
}

// Registrar coordinates sessions and the directory of registered people.
type Registrar struct {
	// sessions currently attached. Only touched by the Run loop.
	sessions map[*Session]struct{}

	// people currently online, keyed by server id.
	people map[string]wire.PersonPayload

	// mu protects people for readers outside the Run loop.
	mu sync.RWMutex

	register   chan *Session
	unregister chan *Session
	requests   chan request

	// used to signal the Run loop to stop.
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	jwtSecret string

	logger zerolog.Logger
}

// NewRegistrar creates a Registrar and starts its Run loop.
func NewRegistrar(cfg *configs.AppConfig) *Registrar {
	r := &Registrar{
		sessions:   make(map[*Session]struct{}),
		people:     make(map[string]wire.PersonPayload),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		requests:   make(chan request, requestChannelBuffer),
		stopChan:   make(chan struct{}),
		jwtSecret:  cfg.JWTSecret,
		logger:     logx.Component("Registrar"),
	}

	r.wg.Add(1)
	go r.Run()

	return r
}

// Run is the main event loop. It serializes session attachment, detachment and requests.
func (r *Registrar) Run() {
	defer r.wg.Done()
	defer r.closeAllSessions()

	r.logger.Info().Msg("Registrar loop started.")

	for {
		select {
		case session := <-r.register:
			r.sessions[session] = struct{}{}
			r.logger.Info().
				Str("session_id", session.id).
				Int("total_sessions", len(r.sessions)).
				Msg("Session attached.")

			r.sendList(session, r.snapshot())

		case session := <-r.unregister:
			if _, ok := r.sessions[session]; !ok {
				r.logger.Warn().Str("session_id", session.id).Msg("Unregister for unknown or already removed session.")
				continue
			}
			delete(r.sessions, session)
			session.closeSend()

			if r.forget(session.owned) {
				r.broadcastList()
			}

			r.logger.Info().
				Str("session_id", session.id).
				Int("total_sessions", len(r.sessions)).
				Msg("Session detached.")

		case req := <-r.requests:
			if _, ok := r.sessions[req.session]; !ok {
				continue
			}
			r.handleRequest(req)

		case <-r.stopChan:
			r.logger.Info().Msg("Registrar loop stopped.")
			return
		}
	}
}

func (r *Registrar) handleRequest(req request) {
	switch req.envelope.Type {
	case wire.TypeRegisterUser:
		r.handleRegisterUser(req.session, req.envelope.Payload)
	case wire.TypeLeaveUser:
		r.handleLeaveUser(req.session, req.envelope.Payload)
	default:
		req.session.logger.Warn().Str("msg_type", string(req.envelope.Type)).Msg("Session sent unsupported message type")
		req.session.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

// handleRegisterUser assigns a server id to a provisional person and confirms it.
func (r *Registrar) handleRegisterUser(session *Session, raw json.RawMessage) {
	var reg wire.RegisterUserPayload
	if err := json.Unmarshal(raw, &reg); err != nil {
		session.logger.Warn().Err(err).Msg("Session sent invalid register-user payload")
		session.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	name := strings.TrimSpace(reg.Name)
	if !randx.IsProvisionalID(reg.ClientID) || name == "" {
		session.SendError(errs.NewError(errs.ErrPersonInvalid))
		return
	}

	serverID := randx.ServerID()
	presentation := reg.Presentation
	if len(presentation) == 0 {
		presentation = wire.DefaultPresentation()
	}

	token, err := jwt.GenerateToken(&jwt.Payload{ID: serverID, Name: name}, r.jwtSecret, jwt.IdentityExpiration)
	if err != nil {
		r.logger.Error().Err(err).Str("server_id", serverID).Msg("Failed to sign identity token.")
		session.SendError(errs.NewError(errs.ErrUnknown))
		return
	}

	r.mu.Lock()
	r.people[serverID] = wire.PersonPayload{ID: serverID, Name: name, Presentation: presentation}
	r.mu.Unlock()
	session.owned = append(session.owned, serverID)

	r.logger.Info().
		Str("session_id", session.id).
		Str("client_id", reg.ClientID).
		Str("server_id", serverID).
		Msg("Person registered.")

	confirmation := []wire.UserRegisteredPayload{{
		ClientID:     reg.ClientID,
		ServerID:     serverID,
		Presentation: presentation,
		Token:        token,
	}}
	if err := session.sendEnvelope(wire.TypeUserRegistered, confirmation); err != nil {
		session.logger.Error().Err(err).Msg("Failed to queue registration confirmation")
	}

	r.broadcastList()
}

// handleLeaveUser withdraws a person registered through the same session.
// Ids the session does not own are ignored.
func (r *Registrar) handleLeaveUser(session *Session, raw json.RawMessage) {
	var leave wire.LeaveUserPayload
	if err := json.Unmarshal(raw, &leave); err != nil {
		session.logger.Warn().Err(err).Msg("Session sent invalid leave-user payload")
		session.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	idx := slices.Index(session.owned, leave.ServerID)
	if idx < 0 {
		session.logger.Warn().Str("server_id", leave.ServerID).Msg("Session tried to withdraw a person it does not own")
		return
	}
	session.owned = slices.Delete(session.owned, idx, idx+1)

	if r.forget([]string{leave.ServerID}) {
		r.logger.Info().
			Str("session_id", session.id).
			Str("server_id", leave.ServerID).
			Msg("Person left.")
		r.broadcastList()
	}
}

// forget removes the given server ids from the directory and reports whether any was present.
func (r *Registrar) forget(ids []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, id := range ids {
		if _, ok := r.people[id]; ok {
			delete(r.people, id)
			changed = true
		}
	}
	return changed
}

func (r *Registrar) broadcastList() {
	list := r.snapshot()
	for session := range r.sessions {
		r.sendList(session, list)
	}
}

func (r *Registrar) sendList(session *Session, list []wire.PersonPayload) {
	if err := session.sendEnvelope(wire.TypeListChange, list); err != nil {
		session.logger.Warn().Err(err).Msg("Failed to queue list change")
	}
}

// snapshot returns the people currently online ordered by name, then id.
func (r *Registrar) snapshot() []wire.PersonPayload {
	r.mu.RLock()
	list := make([]wire.PersonPayload, 0, len(r.people))
	for _, p := range r.people {
		list = append(list, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b wire.PersonPayload) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// People returns the people currently online.
func (r *Registrar) People() []wire.PersonPayload {
	return r.snapshot()
}

// Person looks up an online person by server id.
func (r *Registrar) Person(id string) (wire.PersonPayload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.people[id]
	return p, ok
}

// Attach hands a session to the Run loop. It returns false if the registrar is stopped.
func (r *Registrar) Attach(session *Session) bool {
	select {
	case r.register <- session:
		return true
	case <-r.stopChan:
		return false
	}
}

func (r *Registrar) detach(session *Session) {
	select {
	case r.unregister <- session:
	case <-r.stopChan:
	}
}

func (r *Registrar) submit(session *Session, env wire.Envelope) {
	select {
	case r.requests <- request{session: session, envelope: env}:
	case <-r.stopChan:
	}
}

func (r *Registrar) closeAllSessions() {
	for session := range r.sessions {
		session.closeSend()
		delete(r.sessions, session)
	}
}

// Shutdown stops the Run loop and closes every session.
func (r *Registrar) Shutdown() {
	r.logger.Info().Msg("Shutting down Registrar...")

	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()

	r.logger.Info().Msg("Registrar shutdown complete.")
}
