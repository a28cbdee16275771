package domain

// Snapshot is everything the engine reads about one event. Slices are in a
// stable order chosen by the loader; the engine preserves it.
type Snapshot struct {
	EventID        string
	HostUserIDs    []string
	HostExemption  bool
	Participants   []SnapshotParticipant
	SharedCosts    []SnapshotSharedCost
	Selections     []SnapshotSelection
	PayorOverrides map[string]string
	DefaultPayors  map[string]string
	Users          map[string]SnapshotUser
}

type SnapshotParticipant struct {
	ID          string
	DisplayName string
	OwnerUserID string
	Attending   bool
}

type SnapshotSharedCost struct {
	ID        string
	Name      string
	AmountIrr int64
}

type SnapshotSelection struct {
	ID             string
	ItemName       string
	Quantity       int64
	UnitPriceIrr   int64
	ParticipantIDs []string
}

type SnapshotUser struct {
	Email       string
	DisplayName string
}
