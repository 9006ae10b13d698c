package model

import (
	"fmt"
	"strings"
)

// RoutingPolicy selects the objective used when computing a route across the
// fabric. Each policy owns exactly one permission bit on a link.
type RoutingPolicy int

const (
	// PolicyShortest minimises the number of hops.
	PolicyShortest RoutingPolicy = iota
	// PolicyWidest maximises the bottleneck bandwidth of the path.
	PolicyWidest
)

// PermitAll is the default link permission mask: every policy may traverse.
const PermitAll uint32 = 0xFFFFFFFF

// Policies lists every known routing policy in declaration order.
func Policies() []RoutingPolicy {
	return []RoutingPolicy{PolicyShortest, PolicyWidest}
}

// Bit returns the permission bit owned by the policy.
func (p RoutingPolicy) Bit() uint32 {
	return 1 << uint(p)
}

// Valid reports whether p is one of the known policies.
func (p RoutingPolicy) Valid() bool {
	return p == PolicyShortest || p == PolicyWidest
}

// Permits reports whether the permission mask allows traversal under p.
func (p RoutingPolicy) Permits(mask uint32) bool {
	return mask&p.Bit() != 0
}

func (p RoutingPolicy) String() string {
	switch p {
	case PolicyShortest:
		return "shortest"
	case PolicyWidest:
		return "widest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a case-insensitive policy name to a RoutingPolicy.
func ParsePolicy(s string) (RoutingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shortest", "min-hop", "":
		return PolicyShortest, nil
	case "widest", "max-bottleneck":
		return PolicyWidest, nil
	default:
		return 0, fmt.Errorf("unknown routing policy %q", s)
	}
}

// PermissionMask builds a link permission mask that grants exactly the given
// policies.
func PermissionMask(policies ...RoutingPolicy) uint32 {
	var mask uint32
	for _, p := range policies {
		mask |= p.Bit()
	}
	return mask
}
