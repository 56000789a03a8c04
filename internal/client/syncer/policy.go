package syncer

import "fmt"

// ConflictPolicy decides what happens to an outbox entry the server
// rejected with version_conflict
type ConflictPolicy string

const (
	// PolicyManual leaves conflicts parked until the user resolves them
	PolicyManual ConflictPolicy = "manual"
	// PolicyKeepServer discards the local mutation
	PolicyKeepServer ConflictPolicy = "keep-server"
	// PolicyKeepLocal re-enqueues the local content above the server version
	PolicyKeepLocal ConflictPolicy = "keep-local"
)

// ParsePolicy accepts the CLI spellings; "" means manual
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case "":
		return PolicyManual, nil
	case PolicyManual, PolicyKeepServer, PolicyKeepLocal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want manual, keep-server or keep-local)", s)
	}
}
