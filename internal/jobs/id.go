package jobs

import "github.com/google/uuid"

// GenerateID creates a new random job ID with the given prefix.
// The prefix should include a trailing dash, e.g. "job-".
func GenerateID(prefix string) string {
	return prefix + uuid.NewString()
}
