package retention

type Plan struct {
	Policy        Policy
	BackupsToKeep int
	// PurgeFailures also removes stores whose metadata marks them failed,
	// wherever they sit in the history.
	PurgeFailures bool

	// Global Flags
	DryRun  bool
	Metrics bool
}
