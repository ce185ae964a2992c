package errors

import stderrors "errors"

// New, Is and As forward to the standard library so callers need a single errors import.

func New(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
