package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid room state transition")
	ErrCapacityExceeded  = errors.New("room is full")
	ErrStale             = errors.New("stale answer")
	ErrDelivery          = errors.New("delivery failed")
	ErrPersistence       = errors.New("persistence failure")

	ErrNotOwner           = errors.New("only the room owner can do this")
	ErrOwnerCannotPlay    = errors.New("owner cannot join own room as a player")
	ErrOwnerCannotLeave   = errors.New("owner cannot leave, cancel the room instead")
	ErrAlreadyJoined      = errors.New("user already joined this room")
	ErrAlreadyInRoom      = errors.New("user is already in another room")
	ErrNoPlayers          = errors.New("room has no players")
	ErrEmptyCollection    = errors.New("collection has no cards")
	ErrInvalidSettings    = errors.New("invalid room settings")
	ErrCodeSpaceExhausted = errors.New("no free room code")
)
