package hook

// Plan describes one batch of hook commands.
type Plan struct {
	Enabled bool

	Commands []string
	Vars     Vars

	DryRun bool
	// FailFast stops at the first failing command and returns its error.
	FailFast bool
}
