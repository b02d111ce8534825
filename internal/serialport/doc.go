// Package serialport enumerates the serial interfaces visible to the OS and
// selects the one that belongs to the CP210x USB-UART bridge on the ESP32
// board.
//
// Enumeration is delegated to go.bug.st/serial/enumerator. Matching is a
// pure function of the enumerated list and the OS identity:
//   - Windows: the driver description contains the chipset name
//   - macOS: the device path starts with the Silicon Labs driver prefix
//   - Linux: the device path starts with the generic USB-serial prefix
//
// The first match in enumeration order wins. Several identical adapters
// plugged in at once are not disambiguated.
package serialport
