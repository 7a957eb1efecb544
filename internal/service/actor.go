package service

import "github.com/noah-isme/vial-compliance-api/internal/models"

// Actor is the authenticated caller as seen by the services.
type Actor struct {
	UserID string
	Role   models.UserRole
	DNI    string
}

// SystemActor identifies writes made by background housekeeping.
var SystemActor = Actor{UserID: "", Role: models.RoleAdmin}

// ActorFromClaims converts access-token claims into an Actor.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, DNI: claims.DNI}
}

func (a Actor) userIDPtr() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}
