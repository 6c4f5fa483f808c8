// Package repositories implements the Store component: persistent schema
// access and the atomic query primitives every other component is built on.
// It wraps *gorm.DB with a small, explicit method set per aggregate rather
// than a generic CRUD interface, following the repository shape the rest of
// this codebase's corpus uses.
package repositories

import "errors"

// ErrNotFound is returned when a lookup by ID or unique key finds no row.
var ErrNotFound = errors.New("repositories: not found")

// ErrConflict is returned when a write would violate a uniqueness
// constraint the caller is expected to handle (e.g. duplicate email).
var ErrConflict = errors.New("repositories: conflict")

// ErrLastAdmin is returned when an operation would leave the system with no
// credentialed admin and no bootstrap path.
var ErrLastAdmin = errors.New("repositories: cannot remove the last credentialed admin")
