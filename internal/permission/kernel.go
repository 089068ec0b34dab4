package permission

// TargetType identifies whether an overwrite applies to a role or a single
// member.
type TargetType string

const (
	TargetRole   TargetType = "role"
	TargetMember TargetType = "member"
)

// ValidTarget reports whether t names a known overwrite target type.
func ValidTarget(t TargetType) bool {
	return t == TargetRole || t == TargetMember
}

// RoleGrant pairs a role id with the capability set it grants.
type RoleGrant struct {
	ID     string
	Grants Set
}

// Overwrite is a channel-scoped allow/deny pair bound to a role or member.
type Overwrite struct {
	TargetType TargetType
	TargetID   string
	Allow      Set
	Deny       Set
}

// Query bundles everything a permission decision needs. Roles holds only the
// roles the member actually has; Overwrites holds the channel's overwrites and
// is left nil for server-scope checks.
type Query struct {
	OwnerID    string
	UserID     string
	Roles      []RoleGrant
	Overwrites []Overwrite
	Banned     bool
	TimedOut   bool
}

// Effective resolves the capability set the user ends up with. The owner
// holds every capability. Everyone else starts from the union of their role
// grants; role overwrites then subtract their denies and add their allows,
// and the member overwrite does the same last, so it always wins.
func Effective(q Query) Set {
	if q.UserID == q.OwnerID {
		return AllSet
	}

	held := make(map[string]struct{}, len(q.Roles))
	var base Set
	for _, r := range q.Roles {
		held[r.ID] = struct{}{}
		base = base.Add(r.Grants)
	}

	var roleAllow, roleDeny Set
	var member *Overwrite
	for i := range q.Overwrites {
		o := &q.Overwrites[i]
		switch o.TargetType {
		case TargetRole:
			if _, ok := held[o.TargetID]; ok {
				roleAllow = roleAllow.Add(o.Allow)
				roleDeny = roleDeny.Add(o.Deny)
			}
		case TargetMember:
			if o.TargetID == q.UserID {
				member = o
			}
		}
	}

	base = base.Remove(roleDeny).Add(roleAllow)
	if member != nil {
		base = base.Remove(member.Deny).Add(member.Allow)
	}
	return base
}

// Allows decides whether the user holds the capability. A ban voids every
// capability and an active timeout withdraws send_messages regardless of what
// roles and overwrites resolved to.
func Allows(q Query, c Capability) bool {
	if q.Banned {
		return false
	}
	if c == SendMessages && q.TimedOut {
		return false
	}
	return Effective(q).Has(c)
}
