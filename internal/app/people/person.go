/*
Package people contains the roster of known persons and the session controller that
owns the current user.

It defines the Person record, the Roster index, the Notifier for login/logout
notifications and the Model that moves the current user between anonymous, pending
and authenticated, reconciling provisional client ids with server-assigned ids.
*/
package people

import (
	"strings"

	"chatroster/internal/app/wire"
	"chatroster/internal/pkg/errs"
)

// Presentation is an opaque bag of display attributes. It is passed through unmodified.
type Presentation map[string]any

// Person is one entry of the roster.
// Fields use JSON tags for serialization in HTTP and websocket responses.
type Person struct {

	// ClientID is the roster key. It is provisional until the server confirms the person,
	// after which it equals ServerID.
	ClientID string `json:"cid"`

	// ServerID is the authoritative id assigned by the registrar, empty until confirmed.
	ServerID string `json:"id,omitempty"`

	// Name is the display name. Never empty.
	Name string `json:"name"`

	// Presentation holds avatar display attributes.
	Presentation Presentation `json:"presentation,omitempty"`
}

// PersonParams are the inputs to NewPerson.
type PersonParams struct {
	ClientID     string
	ServerID     string
	Name         string
	Presentation Presentation
}

// NewPerson validates params and builds a Person.
// The name is trimmed. It fails with errs.ErrPersonInvalid when the client id or the name is missing.
func NewPerson(params PersonParams) (*Person, error) {
	name := strings.TrimSpace(params.Name)
	if params.ClientID == "" || name == "" {
		return nil, errs.NewError(errs.ErrPersonInvalid)
	}

	return &Person{
		ClientID:     params.ClientID,
		ServerID:     params.ServerID,
		Name:         name,
		Presentation: params.Presentation,
	}, nil
}

// IsConfirmed reports whether the registrar has assigned the person a server id.
func (p *Person) IsConfirmed() bool {
	return p.ServerID != ""
}

// DefaultPresentation is attached to every person created by a login.
func DefaultPresentation() Presentation {
	return Presentation(wire.DefaultPresentation())
}
