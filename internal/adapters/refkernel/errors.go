package refkernel

import "go.trai.ch/zerr"

var (
	// ErrMissingInput is returned when a required operation input is absent.
	ErrMissingInput = zerr.New("missing input")

	// ErrInvalidInput is returned when an operation input has the wrong type or value.
	ErrInvalidInput = zerr.New("invalid input")

	// ErrForeignObject is returned when an object was not created by this kernel.
	ErrForeignObject = zerr.New("object does not belong to the reference kernel")

	// ErrDoubleRelease is returned when an object is released twice.
	ErrDoubleRelease = zerr.New("object already released")
)
