package protocol

import (
	"github.com/automoto/bodysync/shared/netcomponents"
	"github.com/leap-fish/necs/esync"
)

// Sync ID constants - ID 1 is reserved by necs for NetworkId
const (
	SyncIDNetBody       uint = 20
	SyncIDNetWorldState uint = 21
)

// Interpolation IDs (uint8 for WithInterpFn)
const (
	InterpIDNetBody uint8 = 20
)

// RegisterComponents registers all network components with necs for serialization.
// This must be called by both server and client before any network operations.
func RegisterComponents() error {
	// Uploads arrive every few seconds; interpolate so viewers glide between them.
	if err := esync.RegisterComponent(
		SyncIDNetBody,
		netcomponents.NetBodyData{},
		netcomponents.NetBody,
		esync.WithInterpFn(InterpIDNetBody, netcomponents.LerpNetBody),
	); err != nil {
		return err
	}

	// WorldState: no interpolation (discrete counters)
	if err := esync.RegisterComponent(
		SyncIDNetWorldState,
		netcomponents.NetWorldStateData{},
		netcomponents.NetWorldState,
	); err != nil {
		return err
	}

	return nil
}
