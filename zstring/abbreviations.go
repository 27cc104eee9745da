package zstring

// FindAbbreviation decodes abbreviation (z, x) directly, exactly as Decode
// does internally when it meets Z-characters 1-3. Exposed standalone so
// tooling and tests can inspect a single abbreviation table entry.
func FindAbbreviation(memory []uint8, version uint8, alphabets *Alphabets, abbreviationTableBase uint16, z uint8, x uint8) string {
	return expandAbbreviation(memory, version, alphabets, abbreviationTableBase, z, x)
}
