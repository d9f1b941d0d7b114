package protocol

// GetBit reports bit index of b; index 0 is the least significant bit.
// Indexes above 7 read as false.
func GetBit(b byte, index uint) bool {
	if index > 7 {
		return false
	}
	return b&(1<<index) != 0
}

// ReplaceBit returns b with bit index set to value. b itself is untouched.
func ReplaceBit(b byte, index uint, value bool) byte {
	if index > 7 {
		return b
	}
	if value {
		return b | 1<<index
	}
	return b &^ (1 << index)
}
