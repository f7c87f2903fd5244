package migrator

import "strconv"

// CheckApplied verifies that the applied history lines up with the available
// migrations slot by slot. It must pass before anything is executed.
//
// A ledger whose last entry failed is halted regardless of anything else.
// More applied entries than available migrations is tolerated.
func CheckApplied(applied []LedgerEntry, available []Migration) error {
	if len(applied) == 0 {
		return nil
	}

	last := applied[len(applied)-1]
	if !last.Success {
		return &ConsistencyError{Version: last.Version, Name: last.Name, Err: ErrHalted}
	}

	for i, am := range applied {
		if i >= len(available) {
			break
		}
		m := available[i]
		if am.Version != m.Version() {
			return &ConsistencyError{
				Version: am.Version, Name: am.Name, Field: "version",
				Applied: strconv.FormatInt(am.Version, 10), Defined: strconv.FormatInt(m.Version(), 10),
				Err: ErrVersionMismatch,
			}
		}
		if am.Name != m.Name() {
			return &ConsistencyError{
				Version: am.Version, Name: am.Name, Field: "name",
				Applied: am.Name, Defined: m.Name(),
				Err: ErrNameMismatch,
			}
		}
		if am.Checksum != m.Checksum() {
			return &ConsistencyError{
				Version: am.Version, Name: am.Name, Field: "checksum",
				Applied: am.Checksum, Defined: m.Checksum(),
				Err: ErrChecksumMismatch,
			}
		}
	}
	return nil
}

// ComputeState derives the reporting state of one slot from the applied entry
// and the available migration found there. Either may be nil.
func ComputeState(am *LedgerEntry, m Migration) State {
	switch {
	case am == nil && m == nil:
		return StateUnknown
	case am == nil:
		return StatePending
	case m == nil:
		if am.Success {
			return StateUnknownSuccess
		}
		return StateUnknownFailed
	case am.Version != m.Version(), am.Name != m.Name(), am.Checksum != m.Checksum():
		return StateMismatch
	case am.Success:
		return StateSuccess
	default:
		return StateFailed
	}
}
