package authz

import (
	"github.com/frostpeak/gatewarden/types"
)

// Policy is the static reviewing policy: which role ids may decide on
// whitelist requests, and whether a server administrator bypasses the
// role check entirely.
type Policy struct {
	AllowedRoles []string
	AllowAdmin   bool
}

// Authorized reports whether the actor may approve or deny requests. Pure
// decision over the role/permission snapshot carried by the event; it must
// be evaluated before any claim attempt so an unauthorized actor never
// consumes a pending request.
func (p Policy) Authorized(actor types.Actor) bool {
	if p.AllowAdmin && actor.IsAdmin {
		return true
	}
	for _, role := range actor.Roles {
		for _, allowed := range p.AllowedRoles {
			if role == allowed {
				return true
			}
		}
	}
	return false
}
