package service

import "errors"

var (
	ErrMissingField  = errors.New("required field missing")
	ErrTitleTooShort = errors.New("title must be at least 5 characters")
	ErrInvalidLink   = errors.New("link must be a valid http(s) URL")
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrNotOwner      = errors.New("caller does not own this listing")
	ErrUnknownStatus = errors.New("unknown status value")
	ErrBadSignature  = errors.New("payment signature verification failed")
)
