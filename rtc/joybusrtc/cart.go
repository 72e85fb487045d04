package joybusrtc

import "fmt"

// CartType identifies the flash cartridge, if any, hosting the RTC.
type CartType int

const (
	CartUnknown CartType = iota
	Cart64Drive
	CartEverDriveX7
	CartEverDriveV3
	CartSummerCart64
)

var cartNames = map[CartType]string{
	CartUnknown:      "unknown",
	Cart64Drive:      "64drive",
	CartEverDriveX7:  "everdrive-x7",
	CartEverDriveV3:  "everdrive-v3",
	CartSummerCart64: "sc64",
}

func (c CartType) String() string {
	if name, ok := cartNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CartType(%d)", int(c))
}

// ParseCartType maps a config name back to a CartType.
func ParseCartType(name string) (CartType, error) {
	for c, n := range cartNames {
		if n == name {
			return c, nil
		}
	}
	return CartUnknown, fmt.Errorf("unknown cart type %q", name)
}

// writesTime reports whether the cart forwards RTC writes at all. The
// EverDrive firmwares answer reads but never latch a written time.
func (c CartType) writesTime() bool {
	return c != CartEverDriveV3 && c != CartEverDriveX7
}
