package classify

import "fmt"

// Vendor IDs seen on call-control headsets.
const (
	vendorYealink  = 0x6993
	vendorYealink2 = 0x2F68
	vendorYealink3 = 0x19F7
	vendorEPOS     = 0x1395
	vendorJabra    = 0x0B0E
	vendorPoly     = 0x047F
	vendorLogitech = 0x046D

	productWH64 = 0xB0AE
)

// yealinkVendors is the family the default call-button heuristic applies to.
// Other vendors' headsets need a custom pattern (see remap).
var yealinkVendors = map[uint16]bool{
	vendorYealink:  true,
	vendorYealink2: true,
	vendorYealink3: true,
}

// quirk captures what is known about a specific vendor:product beyond the
// generic fallback rule.
type quirk struct {
	// exactPress, when set, is a known call-button pattern for the device.
	// Reports matching it are classified immediately, ahead of the generic
	// heuristic.
	exactPress string
}

// deviceQuirks keys vendor<<16|product. Keep the generic classifier oblivious
// to vendor identity except through this table.
var deviceQuirks = map[uint32]quirk{
	deviceKey(vendorYealink, productWH64): {exactPress: "9B-01-00"},
}

func deviceKey(vendorID, productID uint16) uint32 {
	return uint32(vendorID)<<16 | uint32(productID)
}

// DeviceName returns a friendly name for a vendor/product pair.
func DeviceName(vendorID, productID uint16) string {
	switch vendorID {
	case vendorYealink:
		return "Yealink WH64"
	case vendorYealink2, vendorYealink3:
		return "Yealink Device"
	case vendorEPOS:
		return "EPOS/Sennheiser"
	case vendorJabra:
		return "Jabra"
	case vendorPoly:
		return "Plantronics/Poly"
	case vendorLogitech:
		return "Logitech"
	default:
		return fmt.Sprintf("Unknown Device (VID=0x%04X)", vendorID)
	}
}
