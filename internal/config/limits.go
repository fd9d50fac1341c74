package config

const (
	// MaxItemNameLength is the maximum length for item names.
	// Limited to 255 to fit common filesystem name limits and provide
	// reasonable UX (names should be short and descriptive).
	MaxItemNameLength = 255

	// MaxItemPathLength is the maximum length for full item paths.
	// Longer paths indicate overly deep hierarchies.
	MaxItemPathLength = 1024

	// MaxTaskAttempts caps how often the worker retries a failed task
	// before dropping it.
	MaxTaskAttempts = 5
)
