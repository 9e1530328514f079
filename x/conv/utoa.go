package conv

// Utoa renders n in decimal into the tail of buf and returns the slice
// holding the digits. A 20-byte buf fits any uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 || i == 0 {
			break
		}
	}
	return buf[i:]
}
