package connection

import (
	"fmt"

	"github.com/smartcontractkit/chainlink-connections/chain"
)

// Status is the connection state of one chain.
type Status int

const (
	// StatusIdle means no connection has been requested since the manager was created or torn
	// down.
	StatusIdle Status = iota
	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting
	// StatusConnected means a live handle is cached for the chain.
	StatusConnected
	// StatusFailed means the last attempt failed. The chain stays failed until teardown.
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusConnecting: "connecting",
	StatusConnected:  "connected",
	StatusFailed:     "failed",
}

// String returns the lower case name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}

	return fmt.Errorf("unknown connection status %q", text)
}

// record is the manager owned state of one chain. handle is set iff status is connected,
// lastError iff status is failed.
type record struct {
	status    Status
	handle    chain.Handle
	lastError string
}

// RecordState is the read only view of a record carried in snapshots.
type RecordState struct {
	Status    Status `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// Snapshot is a consistent, immutable view of the manager state. Every notification carries a
// full snapshot so observers never see the active chain and the statuses out of step.
type Snapshot struct {
	// Version increases by one with every observable state change.
	Version uint64
	// Active is the active chain id.
	Active chain.ChainID
	// ActiveName is the display name of the active chain.
	ActiveName string
	// ActiveHandle is the active chain's handle, nil unless it is connected.
	ActiveHandle chain.Handle
	// Records holds the state of every chain activated since the last teardown.
	Records map[chain.ChainID]RecordState
}

// StatusOf returns the status of id in the snapshot, StatusIdle when it has no record.
func (s Snapshot) StatusOf(id chain.ChainID) Status {
	return s.Records[id].Status
}

// IsConnected reports whether id is connected in the snapshot.
func (s Snapshot) IsConnected(id chain.ChainID) bool {
	return s.StatusOf(id) == StatusConnected
}

// ActiveStatus returns the status of the active chain.
func (s Snapshot) ActiveStatus() Status {
	return s.StatusOf(s.Active)
}

// LastError returns the failure message recorded for id, if any.
func (s Snapshot) LastError(id chain.ChainID) string {
	return s.Records[id].LastError
}
