package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the identity token claims handed to a person
// once the registrar has confirmed it.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer).
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the server id assigned to the person at registration.
	ID string `json:"id"`

	// Name is the display name the person registered with.
	Name string `json:"name"`
}
