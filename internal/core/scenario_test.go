package core

import (
	"testing"

	"pharmanet/pkg/domain"
)

// A unit travels manufacturer -> distributor -> retailer -> consumer.
func TestSupplyChainEndToEnd(t *testing.T) {
	n := newNetwork(t)
	n.mint(serials(3)...)

	n.order("D1", "M1", 3)
	first := n.ship("D1", "T1", serials(3)...)
	for _, serial := range serials(3) {
		if got := n.drug(serial); got.Owner != n.companyKey("T1") || got.Stage != domain.DrugStageInTransit {
			t.Fatalf("drug %s after shipment: owner=%q stage=%s", serial, got.Owner, got.Stage)
		}
	}
	n.deliver("D1", "T1")
	for _, serial := range serials(3) {
		got := n.drug(serial)
		if got.Owner != n.companyKey("D1") || got.Stage != domain.DrugStageDelivered {
			t.Fatalf("drug %s after delivery: owner=%q stage=%s", serial, got.Owner, got.Stage)
		}
		if len(got.ShipmentRefs) != 1 || got.ShipmentRefs[0] != first.Key {
			t.Fatalf("drug %s shipment refs %v", serial, got.ShipmentRefs)
		}
	}

	n.order("R1", "D1", 2)
	second := n.ship("R1", "T2", "001", "002")
	n.deliver("R1", "T2")
	if got := n.drug("001"); got.Owner != n.companyKey("R1") || len(got.ShipmentRefs) != 2 || got.ShipmentRefs[1] != second.Key {
		t.Fatalf("drug 001 at retailer: %+v", got)
	}
	if got := n.drug("003"); got.Owner != n.companyKey("D1") {
		t.Fatalf("drug 003 should stay with the distributor, owner=%q", got.Owner)
	}

	sold, _, err := n.svc.RetailDrug(n.ctx, supplyChainOrg, RetailDrugInput{Name: drugName, SerialNo: "001", RetailerCRN: "R1", ConsumerID: "AAG"})
	if err != nil {
		t.Fatalf("retail: %v", err)
	}
	if sold.Owner != "AAG" || sold.Stage != domain.DrugStageRetailed {
		t.Fatalf("unexpected sold drug %+v", sold)
	}

	history, err := n.svc.DrugHistory(n.ctx, drugName, "001")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantOwners := []string{n.companyKey("M1"), n.companyKey("T1"), n.companyKey("D1"), n.companyKey("T2"), n.companyKey("R1"), "AAG"}
	wantStages := []domain.DrugStage{domain.DrugStageCreated, domain.DrugStageInTransit, domain.DrugStageDelivered, domain.DrugStageInTransit, domain.DrugStageDelivered, domain.DrugStageRetailed}
	if len(history) != len(wantOwners) {
		t.Fatalf("expected %d versions, got %d", len(wantOwners), len(history))
	}
	for i, entry := range history {
		if entry.Drug == nil || entry.IsDelete {
			t.Fatalf("version %d has no snapshot", i)
		}
		if entry.Drug.Owner != wantOwners[i] || entry.Drug.Stage != wantStages[i] {
			t.Fatalf("version %d: owner=%q stage=%s", i, entry.Drug.Owner, entry.Drug.Stage)
		}
		if entry.TxID == "" {
			t.Fatalf("version %d has no tx id", i)
		}
	}
	if history[len(history)-1].Drug.Owner != n.drug("001").Owner {
		t.Fatalf("last history version must match current state")
	}
}

func TestWalkDrugHistoryStopsEarly(t *testing.T) {
	n := newNetwork(t)
	n.mint("001")
	n.order("D1", "M1", 1)
	n.ship("D1", "T1", "001")
	n.deliver("D1", "T1")

	var seen int
	err := n.svc.WalkDrugHistory(n.ctx, drugName, "001", func(domain.HistoryEntry) error {
		seen++
		if seen == 2 {
			return ErrStopWalk
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected walk to stop after 2 versions, saw %d", seen)
	}

	if err := n.svc.WalkDrugHistory(n.ctx, drugName, "001", func(domain.HistoryEntry) error { return errBoom }); err != errBoom {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}
	if _, err := n.svc.DrugHistory(n.ctx, drugName, "999"); err == nil {
		t.Fatalf("expected history of unknown drug to fail")
	} else {
		expectKind(t, err, domain.KindNotFound)
	}
}
