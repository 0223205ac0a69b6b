package endpoint

import (
	"github.com/mash-protocol/m2m-client/pkg/blockwise"
	"github.com/mash-protocol/m2m-client/pkg/session"
)

// Observer is the inbound callback surface of an endpoint. The protocol
// layer delivers callbacks serially.
type Observer interface {
	OnRegistered()
	OnRenewed()
	OnUnregistered()
	OnError(kind session.ErrorKind)

	// OnValueChanged is called after the server changed the value at path.
	OnValueChanged(path string)

	OnBlockReceived(b blockwise.Block) error
	OnBlockRequested(resourceID string) ([]byte, uint32)

	OnRead(path string) ([]byte, error)
	OnWrite(path string, value []byte) error
	OnExecute(path string, args []byte) error
}

// LocationObserver is implemented by observers that want the registration
// location assigned by the server.
type LocationObserver interface {
	OnLocationAssigned(location string)
}
