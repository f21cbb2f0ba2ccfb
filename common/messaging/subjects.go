package messaging

import "encoding/hex"

// Subjects follow {system}.{domain}.{resource}.
const (
	// SubjectKeeperCycles carries one CycleCompleted event per keeper cycle.
	SubjectKeeperCycles = "moebius.keeper.cycles"

	// SubjectRecords prefixes per-key correlation record subjects.
	SubjectRecords = "moebius.records"

	// SubjectAllRecords matches every correlation record subject.
	SubjectAllRecords = SubjectRecords + ".>"
)

// RecordSubject returns the subject records for key are published on,
// e.g. moebius.records.ab01...
func RecordSubject(key [32]byte) string {
	return SubjectRecords + "." + hex.EncodeToString(key[:])
}
