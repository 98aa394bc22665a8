package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a client in the registry.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDeployed    Status = "deployed"
	StatusMaintenance Status = "maintenance"
	StatusOffboarding Status = "offboarding"
	StatusDestroyed   Status = "destroyed"
)

// AllStatuses in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusDeployed,
	StatusMaintenance,
	StatusOffboarding,
	StatusDestroyed,
}

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:     {StatusDeployed, StatusDestroyed},
	StatusDeployed:    {StatusDeployed, StatusMaintenance, StatusOffboarding, StatusDestroyed},
	StatusMaintenance: {StatusDeployed, StatusOffboarding, StatusDestroyed},
	StatusOffboarding: {StatusDeployed, StatusDestroyed},
	StatusDestroyed:   {StatusPending, StatusDeployed},
}

// ParseStatus converts s into a Status, rejecting anything outside the
// closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q (want one of %v)", s, AllStatuses)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether a client may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is allowed.
func (s Status) Transition(next Status) (Status, error) {
	if !next.Valid() {
		return s, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// Role distinguishes canary clients from the production fleet.
type Role string

const (
	RoleCanary     Role = "canary"
	RoleProduction Role = "production"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCanary, RoleProduction:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want canary or production)", s)
}
