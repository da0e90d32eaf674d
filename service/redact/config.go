package redact

// Pattern is a named regular expression whose matches are replaced with Marker.
type Pattern struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Re   string `json:"re" yaml:"re"`
}

// Config extends the built-in heuristics.
type Config struct {
	// Keys lists additional argument name fragments treated as sensitive.
	Keys     []string  `json:"keys,omitempty" yaml:"keys,omitempty"`
	Patterns []Pattern `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}
