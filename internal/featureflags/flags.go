// Package featureflags reads rollout switches from the environment.
// Operations use them to open a gated feature, like manual_refresh, to
// every tier during a staged rollout.
package featureflags

import (
	"os"
	"strings"
)

// Enabled reports whether FLAG_<NAME> is set to a truthy value. The name
// is upper-cased, so Enabled("manual_refresh") reads FLAG_MANUAL_REFRESH.
func Enabled(name string) bool {
	switch strings.ToLower(os.Getenv("FLAG_" + strings.ToUpper(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
