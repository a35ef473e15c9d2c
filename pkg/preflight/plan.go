package preflight

// Plan selects which checks Run performs against the spool root.
type Plan struct {
	SpoolAccessible bool
	// SpoolWritable creates the root if needed and probes it with a temp
	// file. Dry runs leave it off.
	SpoolWritable bool
}
