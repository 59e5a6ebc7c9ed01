package core

import "fmt"

// PlanToken maps a data-plan tier onto its on-chain mint.
type PlanToken struct {
	PlanID      string
	MintAddress string
}

// Registry is the immutable plan and soulbound mint configuration. Plans keep
// registration order so eligibility scans are deterministic.
type Registry struct {
	plans     []PlanToken
	byID      map[string]PlanToken
	byMint    map[string]string
	soulbound string
}

// NewRegistry validates that plan ids and mints are unique and that the
// soulbound mint is distinct from every plan mint.
func NewRegistry(plans []PlanToken, soulboundMint string) (*Registry, error) {
	if soulboundMint == "" {
		return nil, fmt.Errorf("soulbound mint is required")
	}
	r := &Registry{
		plans:     make([]PlanToken, 0, len(plans)),
		byID:      make(map[string]PlanToken, len(plans)),
		byMint:    make(map[string]string, len(plans)),
		soulbound: soulboundMint,
	}
	for _, p := range plans {
		if p.PlanID == "" || p.MintAddress == "" {
			return nil, fmt.Errorf("plan entry needs both id and mint: %+v", p)
		}
		if _, dup := r.byID[p.PlanID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.PlanID)
		}
		if _, dup := r.byMint[p.MintAddress]; dup {
			return nil, fmt.Errorf("mint %s registered for more than one plan", p.MintAddress)
		}
		if p.MintAddress == soulboundMint {
			return nil, fmt.Errorf("plan %q reuses the soulbound mint", p.PlanID)
		}
		r.plans = append(r.plans, p)
		r.byID[p.PlanID] = p
		r.byMint[p.MintAddress] = p.PlanID
	}
	return r, nil
}

// Plan resolves a plan id.
func (r *Registry) Plan(id string) (PlanToken, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Plans returns the plans in registration order.
func (r *Registry) Plans() []PlanToken {
	out := make([]PlanToken, len(r.plans))
	copy(out, r.plans)
	return out
}

// SoulboundMint returns the soulbound token mint.
func (r *Registry) SoulboundMint() string {
	return r.soulbound
}

// PlanForMint reports which plan owns mint, if any.
func (r *Registry) PlanForMint(mint string) (string, bool) {
	id, ok := r.byMint[mint]
	return id, ok
}

// Known reports whether mint is a plan mint or the soulbound mint.
func (r *Registry) Known(mint string) bool {
	_, ok := r.byMint[mint]
	return ok || mint == r.soulbound
}
