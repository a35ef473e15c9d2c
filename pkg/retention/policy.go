package retention

import (
	"fmt"

	"github.com/paulschiretz/holland/pkg/util"
)

// Policy decides when a backupset's retention is enforced.
type Policy int

const (
	// Manual never purges automatically.
	Manual Policy = iota
	// BeforeBackup purges once pre-backup fires, before the plugin runs.
	BeforeBackup
	// AfterBackup purges once a backup has succeeded.
	AfterBackup
)

var policyToString = map[Policy]string{
	Manual:       "manual",
	BeforeBackup: "before-backup",
	AfterBackup:  "after-backup",
}

var stringToPolicy map[string]Policy

func init() {
	stringToPolicy = util.InvertMap(policyToString)
}

func (p Policy) String() string {
	if s, ok := policyToString[p]; ok {
		return s
	}
	return fmt.Sprintf("unknown_purge_policy(%d)", int(p))
}

// ParsePolicy parses a purge-policy value.
func ParsePolicy(s string) (Policy, error) {
	if p, ok := stringToPolicy[s]; ok {
		return p, nil
	}
	return Manual, fmt.Errorf("invalid purge policy: %q. Must be 'manual', 'before-backup' or 'after-backup'", s)
}
