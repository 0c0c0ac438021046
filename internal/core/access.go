package core

import (
	"strings"

	"pharmanet/pkg/domain"
)

// Organizations of the reference two-org network. The manufacturer org mints
// drugs; the supply-chain org places orders, receives shipments and sells.
const (
	DefaultManufacturerOrg = "Org2MSP"
	DefaultSupplyChainOrg  = "Org1MSP"
)

// Authorize reports whether the caller organization equals the expected one.
// An empty caller never matches.
func Authorize(callerOrg, expectedOrg string) bool {
	return callerOrg != "" && callerOrg == expectedOrg
}

// AccessPolicy maps a mutating operation to the organization allowed to
// invoke it. Operations mapped to "" accept any identified caller.
type AccessPolicy map[string]string

// DefaultAccessPolicy returns the policy of the reference network.
func DefaultAccessPolicy() AccessPolicy {
	return NewAccessPolicy(DefaultManufacturerOrg, DefaultSupplyChainOrg)
}

// NewAccessPolicy builds the standard policy for the given organizations.
func NewAccessPolicy(manufacturerOrg, supplyChainOrg string) AccessPolicy {
	return AccessPolicy{
		OpRegisterCompany:     "",
		OpMintDrug:            manufacturerOrg,
		OpCreatePurchaseOrder: supplyChainOrg,
		OpCreateShipment:      "",
		OpDeliverShipment:     supplyChainOrg,
		OpRetailDrug:          supplyChainOrg,
	}
}

// Check returns an Unauthorized error when caller may not run operation.
func (p AccessPolicy) Check(operation, caller string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return domain.Unauthorized("%s requires an identified caller organization", operation)
	}
	expected, ok := p[operation]
	if !ok {
		return domain.Unauthorized("operation %s is not covered by the access policy", operation)
	}
	if expected == "" {
		return nil
	}
	if !Authorize(caller, expected) {
		return domain.Unauthorized("caller %s is not allowed to %s; expected %s", caller, strings.ReplaceAll(operation, "_", " "), expected)
	}
	return nil
}
