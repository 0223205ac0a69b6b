package resource

import "github.com/mash-protocol/m2m-client/pkg/session"

// Device object (object 3) resource IDs.
const (
	DeviceObject       = "3"
	DeviceManufacturer = "0"
	DeviceModelNumber  = "1"
	DeviceSerialNumber = "2"
	DeviceType         = "17"
)

// DevicePath returns the path of a device object resource.
func DevicePath(resource string) Path {
	return Path{Object: DeviceObject, Instance: 0, Resource: resource}
}

// AddDevice adds the read-only device object built from info.
func AddDevice(r *Registry, info session.DeviceInfo) error {
	values := []struct {
		id    string
		value string
	}{
		{DeviceManufacturer, info.Manufacturer},
		{DeviceModelNumber, info.ModelNumber},
		{DeviceSerialNumber, info.SerialNumber},
		{DeviceType, info.DeviceType},
	}
	for _, v := range values {
		err := r.Add(Definition{
			Path:       DevicePath(v.id),
			Type:       "Device",
			Kind:       KindString,
			Operations: OpGetAllowed,
			Value:      []byte(v.value),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
