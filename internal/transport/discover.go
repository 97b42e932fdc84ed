package transport

import (
	"fmt"

	"github.com/google/gousb"
)

// Info identifies an attached player without opening it.
type Info struct {
	Bus       int
	Address   int
	Port      int
	VendorID  gousb.ID
	ProductID gousb.ID
	Speed     gousb.Speed
}

func (i Info) String() string {
	return fmt.Sprintf("bus %03d address %03d (%s:%s, %s)", i.Bus, i.Address, i.VendorID, i.ProductID, i.Speed)
}

// List enumerates attached devices matching the vendor and product IDs in
// opts. No device is opened.
func List(opts Options) ([]Info, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []Info
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if opts.matches(desc) {
			found = append(found, Info{
				Bus:       desc.Bus,
				Address:   desc.Address,
				Port:      desc.Port,
				VendorID:  desc.Vendor,
				ProductID: desc.Product,
				Speed:     desc.Speed,
			})
		}
		return false
	})
	if err != nil {
		return found, &Error{Op: "list", Err: err}
	}
	return found, nil
}
