/*
Package handler provides HTTP handler functions for reading the registrar's directory of people.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatroster/internal/pkg/auth/jwt"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/resp"
)

// HandleListPeople returns every person currently online.
func HandleListPeople(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"people": deps.Registrar.People(),
		})
	}
}

// HandleGetPerson returns one online person by server id.
func HandleGetPerson(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		person, ok := deps.Registrar.Person(chi.URLParam(r, "id"))
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrPersonNotFound))
			return
		}
		resp.RespondSuccess(w, r, person)
	}
}

// HandleWhoAmI returns the identity carried by the caller's bearer token.
func HandleWhoAmI(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		data := map[string]any{
			"id":   identity.ID,
			"name": identity.Name,
		}
		if person, ok := deps.Registrar.Person(identity.ID); ok {
			data["online"] = true
			data["presentation"] = person.Presentation
		} else {
			data["online"] = false
		}
		resp.RespondSuccess(w, r, data)
	}
}
