package model

// Storage is a named destination root path, local or endpoint-qualified.
// Immutable after config load.
type Storage struct {
	Name string
	Path PathRef
}
