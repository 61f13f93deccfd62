package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEnum is returned when a stored or received string does not name
// a known Role, InvitationStatus or Direction.
var ErrUnknownEnum = errors.New("unknown enum value")

// Role is the permission one user grants another over their own ledger
type Role int

const (
	RoleReader Role = iota + 1
	RoleWriter
)

var roleNames = map[Role]string{
	RoleReader: "Reader",
	RoleWriter: "Writer",
}

// InvitationStatus is the lifecycle state of an invitation.
// Pending is the only non-terminal state.
type InvitationStatus int

const (
	StatusPending InvitationStatus = iota + 1
	StatusAccepted
	StatusRejected
)

var statusNames = map[InvitationStatus]string{
	StatusPending:  "Pending",
	StatusAccepted: "Accepted",
	StatusRejected: "Rejected",
}

// Direction tells whether the local user sent or received an invitation
type Direction int

const (
	DirectionSent Direction = iota + 1
	DirectionReceived
)

var directionNames = map[Direction]string{
	DirectionSent:     "Sent",
	DirectionReceived: "Received",
}

func enumName[T ~int](names map[T]string, v T) string {
	if s, ok := names[v]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(v))
}

// parseEnum matches case-insensitively so rows written as "READER" still load
func parseEnum[T ~int](names map[T]string, kind, s string) (T, error) {
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q", ErrUnknownEnum, kind, s)
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot scan %T into enum", src)
	}
}

// ParseRole converts the wire representation into a Role
func ParseRole(s string) (Role, error) { return parseEnum(roleNames, "role", s) }

func (r Role) String() string { return enumName(roleNames, r) }

// Valid reports whether r is a known role
func (r Role) Valid() bool { _, ok := roleNames[r]; return ok }

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: role %d", ErrUnknownEnum, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: role %d", ErrUnknownEnum, int(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}

// RoleRef returns a pointer to r, for the nullable role fields of SharedPeer
func RoleRef(r Role) *Role { return &r }

// ParseInvitationStatus converts the wire representation into an InvitationStatus
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	return parseEnum(statusNames, "invitation status", s)
}

func (s InvitationStatus) String() string { return enumName(statusNames, s) }

// Terminal reports whether no further transition is allowed
func (s InvitationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s InvitationStatus) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("%w: invitation status %d", ErrUnknownEnum, int(s))
	}
	return []byte(s.String()), nil
}

func (s *InvitationStatus) UnmarshalText(b []byte) error {
	v, err := ParseInvitationStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s InvitationStatus) Value() (driver.Value, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *InvitationStatus) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}

// ParseDirection converts the wire representation into a Direction
func ParseDirection(s string) (Direction, error) {
	return parseEnum(directionNames, "direction", s)
}

func (d Direction) String() string { return enumName(directionNames, d) }

func (d Direction) MarshalText() ([]byte, error) {
	if _, ok := directionNames[d]; !ok {
		return nil, fmt.Errorf("%w: direction %d", ErrUnknownEnum, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Direction) Value() (driver.Value, error) {
	b, err := d.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Direction) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
