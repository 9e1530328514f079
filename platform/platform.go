// platform/platform.go
//
// Board bring-up boundary. Everything hardware-specific (UART instances,
// the USB CDC host link, the unique-id read) stays behind Init; the rest
// of the firmware only sees the returned capability handles.
package platform

import (
	"uartbridge-go/identity"
	"uartbridge-go/serialmux"
	"uartbridge-go/services/hostlink"
)

// Config selects the bridged UART. Pin numbers follow the platform's
// numeric scheme; zero values take the board defaults.
type Config struct {
	Baud uint32
	TX   int
	RX   int
}

// Device bundles the peripherals bootstrap wires into the tasks.
type Device struct {
	UID    identity.Source
	Serial serialmux.Port
	Link   hostlink.Transport
}
