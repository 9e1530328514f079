package conv

const hexd = "0123456789ABCDEF"

// U64Hex writes 16-digit uppercase hex without 0x, zero-padded.
func U64Hex(buf []byte, n uint64) []byte {
	if len(buf) < 16 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 16; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// ParseU64Hex decodes a fixed 16-digit hex string (upper or lower case).
// ok is false on wrong length or a non-hex byte.
func ParseU64Hex(s string) (n uint64, ok bool) {
	if len(s) != 16 {
		return 0, false
	}
	for i := 0; i < 16; i++ {
		c := s[i]
		var v uint64
		switch {
		case '0' <= c && c <= '9':
			v = uint64(c - '0')
		case 'A' <= c && c <= 'F':
			v = uint64(c-'A') + 10
		case 'a' <= c && c <= 'f':
			v = uint64(c-'a') + 10
		default:
			return 0, false
		}
		n = n<<4 | v
	}
	return n, true
}
