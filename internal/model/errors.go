package model

import "errors"

// Validation errors shared by services and handlers.
var (
	ErrInvalidUsername  = errors.New("username must be 3-32 characters of letters, digits or underscore")
	ErrInvalidPassword  = errors.New("password must be 6-128 characters")
	ErrInvalidBookTitle = errors.New("book_title is required and must be at most 200 characters")
)
