package engine

// HostExemption removes host participants from chargeable pools when enabled.
type HostExemption struct {
	Enabled bool
	hosts   map[string]struct{}
}

// NewHostExemption marks every participant whose owner is a host.
func NewHostExemption(enabled bool, hostUserIDs []string, owners map[string]string) HostExemption {
	hostUsers := make(map[string]struct{}, len(hostUserIDs))
	for _, id := range hostUserIDs {
		hostUsers[id] = struct{}{}
	}

	hosts := make(map[string]struct{})
	for participantID, ownerID := range owners {
		if ownerID == "" {
			continue
		}
		if _, ok := hostUsers[ownerID]; ok {
			hosts[participantID] = struct{}{}
		}
	}
	return HostExemption{Enabled: enabled, hosts: hosts}
}

func (h HostExemption) IsHost(participantID string) bool {
	_, ok := h.hosts[participantID]
	return ok
}

// ChargeablePool returns the members of set that may be billed, keeping the
// input order. The result is empty when exemption removes everyone; callers
// decide what an empty pool means for their cost.
func ChargeablePool(set []string, exemption HostExemption) []string {
	pool := make([]string, 0, len(set))
	for _, id := range set {
		if exemption.Enabled && exemption.IsHost(id) {
			continue
		}
		pool = append(pool, id)
	}
	return pool
}
