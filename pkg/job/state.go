package job

import "github.com/paulschiretz/holland/pkg/util"

// State is a position in the job lifecycle. A job only ever moves forward.
type State int

const (
	Init State = iota
	Configured
	Prepared
	Estimated
	Verified
	Running
	Finalized
	Succeeded
	Failed
)

var stateToString = map[State]string{
	Init:       "init",
	Configured: "configured",
	Prepared:   "prepared",
	Estimated:  "estimated",
	Verified:   "verified",
	Running:    "running",
	Finalized:  "finalized",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

var stringToState = util.InvertMap(stateToString)

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return "unknown"
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	st, ok := stringToState[s]
	return st, ok
}

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
