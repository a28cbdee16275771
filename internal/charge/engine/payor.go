package engine

// PayorResolver probes its lookup tables in order and returns the first payor
// found. A participant no table knows pays for themselves.
type PayorResolver struct {
	chain []map[string]string
}

func NewPayorResolver(chain ...map[string]string) PayorResolver {
	return PayorResolver{chain: chain}
}

func (r PayorResolver) Resolve(participantID string) string {
	for _, table := range r.chain {
		if payor, ok := table[participantID]; ok && payor != "" {
			return payor
		}
	}
	return participantID
}
