package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Skill errors
var (
	ErrSkillNotFound      = errors.New("skill record not found")
	ErrSkillAlreadyExists = errors.New("skill record already exists")
	ErrInvalidSnapshot    = errors.New("invalid skill snapshot")
)

// Topic errors
var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrUnknownLayer = errors.New("unknown layer")
)

// Performance errors
var (
	ErrInvalidScore = errors.New("performance score out of range")
)

// Progression errors
var (
	ErrLayerLocked = errors.New("prior layer not yet unlocked")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
