package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Namespace UUIDs for different entity types (UUIDv5 requires a namespace)
var (
	RuleNamespace    = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	FiringNamespace  = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
	AttemptNamespace = uuid.MustParse("6ba7b814-9dad-11d1-80b4-00c04fd430c8")
)

// GenerateRuleID generates a deterministic ID for a rule based on its name
func GenerateRuleID(name string) string {
	id := uuid.NewSHA1(RuleNamespace, []byte(name))
	return fmt.Sprintf("rule_%s", id.String())
}

// GenerateFiringID generates a deterministic ID for one firing of a rule.
// The in-world moment is identified by the calendar epoch (reset count),
// the days passed and the hour.
func GenerateFiringID(ruleID string, epoch, daysPassed uint64, hour int) string {
	combined := fmt.Sprintf("%s:%d:%d:%d", ruleID, epoch, daysPassed, hour)
	id := uuid.NewSHA1(FiringNamespace, []byte(combined))
	return fmt.Sprintf("firing_%s", id.String())
}

// GenerateAttemptID generates a deterministic ID for an action attempt
func GenerateAttemptID(firingID string, attemptNumber int) string {
	combined := fmt.Sprintf("%s:%d", firingID, attemptNumber)
	id := uuid.NewSHA1(AttemptNamespace, []byte(combined))
	return fmt.Sprintf("attempt_%s", id.String())
}
