package store

// Access describes what a non-owner domain may do with a node.
type Access uint8

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessBoth
)

func (a Access) canRead() bool {
	return a == AccessRead || a == AccessBoth
}

func (a Access) canWrite() bool {
	return a == AccessWrite || a == AccessBoth
}

// Perm grants a domain access to a node. The first entry of a node's
// permission list names the owning domain, its Access field being the default
// for domains with no explicit entry. Later entries override the default for
// one domain each.
type Perm struct {
	ID     uint32
	Access Access
}

// Cred identifies the principal issuing a request. Domain 0 is the control
// domain and bypasses permission checks.
type Cred struct {
	Dom uint32
}

// Privileged reports whether the principal may bypass permission checks.
func (c Cred) Privileged() bool {
	return c.Dom == 0
}

func permFor(c Cred, perms []Perm) Access {
	if len(perms) == 0 {
		return AccessNone
	}
	if perms[0].ID == c.Dom {
		// The owner may always read and write its own nodes.
		return AccessBoth
	}
	for _, p := range perms[1:] {
		if p.ID == c.Dom {
			return p.Access
		}
	}
	return perms[0].Access
}

func checkRead(c Cred, perms []Perm) error {
	if c.Privileged() || permFor(c, perms).canRead() {
		return nil
	}
	return ErrPermissionDenied
}

func checkWrite(c Cred, perms []Perm) error {
	if c.Privileged() || permFor(c, perms).canWrite() {
		return nil
	}
	return ErrPermissionDenied
}

func checkOwner(c Cred, perms []Perm) error {
	if c.Privileged() || (len(perms) > 0 && perms[0].ID == c.Dom) {
		return nil
	}
	return ErrPermissionDenied
}

func clonePerms(perms []Perm) []Perm {
	out := make([]Perm, len(perms))
	copy(out, perms)
	return out
}
