package helpdesk

import (
	"strings"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleITStaff Role = "it_staff"
	RoleAdmin   Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// IsStaff reports whether the role triages tickets (it_staff or admin).
func (r Role) IsStaff() bool {
	return r == RoleITStaff || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleITStaff, RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
	return r, nil
}
