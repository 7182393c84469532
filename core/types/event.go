package types

// Event represents a structured state change emitted by the native engines.
type Event struct {
	Type       string
	Attributes map[string]string
}
