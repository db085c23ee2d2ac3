package ir

// Version constants for result envelopes and the engine.
const (
	// OutputVersion is the result envelope format version.
	OutputVersion = "2.0"

	// EngineVersion is the fedquery engine version.
	EngineVersion = "0.3.0"
)
