package protocol

import "fmt"

// Register addresses of the TSL2561 (datasheet table 2). Data registers hold the
// low byte at the lower address.
const (
	RegControl    byte = 0x00
	RegTiming     byte = 0x01
	RegThreshLowL byte = 0x02
	RegThreshLowH byte = 0x03
	RegThreshHiL  byte = 0x04
	RegThreshHiH  byte = 0x05
	RegInterrupt  byte = 0x06
	RegCRC        byte = 0x08
	RegID         byte = 0x0A
	RegData0Low   byte = 0x0C
	RegData0High  byte = 0x0D
	RegData1Low   byte = 0x0E
	RegData1High  byte = 0x0F
)

// RegisterCount is the size of the register file.
const RegisterCount = 16

var registerNames = map[byte]string{
	RegControl:    "CONTROL",
	RegTiming:     "TIMING",
	RegThreshLowL: "THRESHLOWLOW",
	RegThreshLowH: "THRESHLOWHIGH",
	RegThreshHiL:  "THRESHHIGHLOW",
	RegThreshHiH:  "THRESHHIGHHIGH",
	RegInterrupt:  "INTERRUPT",
	RegCRC:        "CRC",
	RegID:         "ID",
	RegData0Low:   "DATA0LOW",
	RegData0High:  "DATA0HIGH",
	RegData1Low:   "DATA1LOW",
	RegData1High:  "DATA1HIGH",
}

// RegisterName returns the datasheet name of a register, or its hex address.
func RegisterName(reg byte) string {
	if name, ok := registerNames[reg]; ok {
		return name
	}
	return fmt.Sprintf("%#02x", reg)
}

// LookupRegister resolves a datasheet register name.
func LookupRegister(name string) (byte, bool) {
	for reg, n := range registerNames {
		if n == name {
			return reg, true
		}
	}
	return 0, false
}

// PartNumber splits the ID register into part number and revision.
func PartNumber(id byte) (part byte, rev byte) {
	return id >> 4, id & 0x0F
}
