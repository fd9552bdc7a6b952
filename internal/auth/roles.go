package auth

// permissions are strings like "job:book", "job:transition", "admin:*"
const (
	PermJobBook       = "job:book"
	PermJobTransition = "job:transition"
	PermJobRead       = "job:read"
	PermJobMessage    = "job:message"
	PermJobLocation   = "job:location"
	PermJobRate       = "job:rate"
	PermJobAttach     = "job:attach"
	PermAdminAll      = "admin:*"
)

// Both parties hold job:transition because a customer may cancel; the
// lifecycle controller enforces which party may take which edge.
var roleToPerms = map[string][]string{
	"customer":   {PermJobBook, PermJobTransition, PermJobRead, PermJobMessage, PermJobRate, PermJobAttach},
	"technician": {PermJobTransition, PermJobRead, PermJobMessage, PermJobLocation, PermJobAttach},
	"admin":      {PermJobRead, PermAdminAll},
}

func PermsForRole(role string) map[string]struct{} {
	out := make(map[string]struct{}, 8)
	if perms, ok := roleToPerms[role]; ok {
		for _, p := range perms {
			out[p] = struct{}{}
		}
	}
	return out
}
