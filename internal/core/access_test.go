package core

import (
	"errors"
	"testing"

	"pharmanet/pkg/domain"
)

func TestAuthorize(t *testing.T) {
	if !Authorize("Org1MSP", "Org1MSP") {
		t.Fatalf("equal orgs must match")
	}
	if Authorize("", "") || Authorize("Org2MSP", "Org1MSP") {
		t.Fatalf("empty or different orgs must not match")
	}
}

func TestAccessPolicyCheck(t *testing.T) {
	policy := NewAccessPolicy("MakerMSP", "ChainMSP")
	tests := []struct {
		op, caller string
		ok         bool
	}{
		{OpRegisterCompany, "AnyMSP", true},
		{OpRegisterCompany, " ", false},
		{OpMintDrug, "MakerMSP", true},
		{OpMintDrug, "ChainMSP", false},
		{OpCreatePurchaseOrder, "ChainMSP", true},
		{OpCreatePurchaseOrder, "MakerMSP", false},
		{OpCreateShipment, "MakerMSP", true},
		{OpDeliverShipment, "ChainMSP", true},
		{OpRetailDrug, "MakerMSP", false},
		{"burn_drug", "ChainMSP", false},
	}
	for _, tt := range tests {
		err := policy.Check(tt.op, tt.caller)
		if tt.ok && err != nil {
			t.Fatalf("%s by %q: unexpected error %v", tt.op, tt.caller, err)
		}
		if !tt.ok && !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s by %q: expected unauthorized, got %v", tt.op, tt.caller, err)
		}
	}
}

func TestServiceUsesConfiguredPolicy(t *testing.T) {
	n := newNetwork(t, WithAccessPolicy(NewAccessPolicy("MakerMSP", "ChainMSP")))
	_, _, err := n.svc.MintDrug(n.ctx, manufacturerOrg, MintDrugInput{Name: drugName, SerialNo: "001", ManufacturingDate: "2024-01-01", ExpiryDate: farDate, ManufacturerCRN: "M1"})
	expectKind(t, err, domain.KindUnauthorized)
	if _, _, err := n.svc.MintDrug(n.ctx, "MakerMSP", MintDrugInput{Name: drugName, SerialNo: "001", ManufacturingDate: "2024-01-01", ExpiryDate: farDate, ManufacturerCRN: "M1"}); err != nil {
		t.Fatalf("mint with configured org: %v", err)
	}
}
