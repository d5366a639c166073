package documents

import "fmt"

// ConflictKind enumerates what can block a submission.
type ConflictKind string

const (
	// ConflictDuplicateSerial marks a serial value repeated within the document.
	ConflictDuplicateSerial ConflictKind = "duplicate_serial"
	// ConflictStaleVersion marks a concurrent edit: another actor holds a
	// newer version than the one the caller last read.
	ConflictStaleVersion ConflictKind = "stale_version"
)

// Conflict describes one blocking condition found by Check.
type Conflict struct {
	Kind       ConflictKind
	LineNumber int
	Serial     string
	Detail     string
}

// Check inspects a document for duplicate serials and concurrent-edit
// conflicts. Duplicate conflicts block submission until resolved or
// explicitly overridden by an authorised actor; the override is recorded
// in the audit entry of the submit transition.
func Check(doc Document, lastReadVersion int64) []Conflict {
	var conflicts []Conflict
	if doc.Version != lastReadVersion {
		conflicts = append(conflicts, Conflict{
			Kind:   ConflictStaleVersion,
			Detail: fmt.Sprintf("document is at version %d, caller read %d", doc.Version, lastReadVersion),
		})
	}
	seen := make(map[string]int)
	for _, line := range doc.Lines {
		for _, serial := range line.Serials {
			if firstLine, dup := seen[serial.Value]; dup {
				conflicts = append(conflicts, Conflict{
					Kind:       ConflictDuplicateSerial,
					LineNumber: line.LineNumber,
					Serial:     serial.Value,
					Detail:     fmt.Sprintf("first seen on line %d", firstLine),
				})
				continue
			}
			seen[serial.Value] = line.LineNumber
		}
	}
	return conflicts
}

// duplicateConflicts filters Check output down to duplicates.
func duplicateConflicts(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Kind == ConflictDuplicateSerial {
			out = append(out, c)
		}
	}
	return out
}
