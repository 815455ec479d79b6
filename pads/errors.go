package pads

import "errors"

// Sentinel errors
var (
	ErrUnknownKey     = errors.New("unknown pad key")
	ErrNotSilent      = errors.New("cycle start requested while pads are playing")
	ErrOverLimit      = errors.New("more keys than the category limit")
	ErrInvalidParam   = errors.New("invalid effect parameter")
	ErrStorage        = errors.New("preset storage unavailable")
	ErrPresetNotFound = errors.New("preset not found")
	ErrEmptyName      = errors.New("preset name is empty")
	ErrNoRecorder     = errors.New("recording unavailable")
)
