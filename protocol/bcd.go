package protocol

// BCDDecode converts a packed two-digit BCD byte to its decimal value.
// Nibbles above 9 are not rejected; they decode arithmetically.
func BCDDecode(b byte) int {
	return int(b&0x0F) + int(b>>4)*10
}

// BCDEncode packs n into two BCD digits. Values outside 0..99 are truncated
// rather than rejected: the tens digit wraps at 16.
func BCDEncode(n int) byte {
	if n < 0 {
		n = -n
	}
	return byte((n/10)%16)<<4 | byte(n%10)
}
