// identity/identity.go
//
// Stable per-device identity, derived once at boot from hardware-backed
// read-only storage and rendered as a fixed 16-digit hex serial string.
package identity

import (
	"uartbridge-go/errcode"
	"uartbridge-go/x/conv"
)

// Source reads the 8-byte unique value backing the device identity.
// The read is one-shot, blocking and fallible (hardware fault, unsupported
// chip). Implementations live in the platform package.
type Source interface {
	UniqueID() (uint64, error)
}

// ID is the immutable device identity.
type ID uint64

// Derive performs the one-shot identity read. The zero identity is legal
// (it is whatever the hardware reports); only a read failure is an error.
func Derive(src Source) (ID, error) {
	v, err := src.UniqueID()
	if err != nil {
		return 0, &errcode.E{C: errcode.NoIdentity, Op: "identity.Derive", Err: err}
	}
	return ID(v), nil
}

// String renders the identity as 16 uppercase hex digits with leading
// zeros, suitable as a host-visible serial number.
func (id ID) String() string {
	var buf [16]byte
	return string(conv.U64Hex(buf[:], uint64(id)))
}

// Parse decodes a serial string produced by String.
func Parse(s string) (ID, error) {
	v, ok := conv.ParseU64Hex(s)
	if !ok {
		return 0, errcode.InvalidArgs
	}
	return ID(v), nil
}
