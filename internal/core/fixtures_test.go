package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"
)

const (
	manufacturerOrg = DefaultManufacturerOrg
	supplyChainOrg  = DefaultSupplyChainOrg

	drugName = "Paracetamol"
	farDate  = "2099-12-31"
)

// network is a registered four-tier chain over a fresh ledger:
// M1 manufacturer, D1 distributor, R1 retailer, T1/T2 transporters.
type network struct {
	t      *testing.T
	ctx    context.Context
	ledger *memory.Ledger
	svc    *Service
}

func newNetwork(t *testing.T, opts ...ServiceOption) *network {
	t.Helper()
	l := memory.New()
	n := &network{t: t, ctx: context.Background(), ledger: l, svc: NewService(l, opts...)}
	for _, c := range []RegisterCompanyInput{
		{CRN: "M1", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer"},
		{CRN: "D1", Name: "VG Pharma", Location: "Delhi", Role: "Distributor"},
		{CRN: "R1", Name: "Upgrad", Location: "Mumbai", Role: "Retailer"},
		{CRN: "T1", Name: "FedEx", Location: "Delhi", Role: "Transporter"},
		{CRN: "T2", Name: "Blue Dart", Location: "Bangalore", Role: "Transporter"},
	} {
		if _, _, err := n.svc.RegisterCompany(n.ctx, supplyChainOrg, c); err != nil {
			t.Fatalf("register %s: %v", c.CRN, err)
		}
	}
	return n
}

func (n *network) companyKey(crn string) string {
	n.t.Helper()
	company, err := n.svc.ResolveCompany(n.ctx, crn)
	if err != nil {
		n.t.Fatalf("resolve %s: %v", crn, err)
	}
	return company.Key
}

func (n *network) mint(serials ...string) {
	n.t.Helper()
	for _, serial := range serials {
		if _, _, err := n.svc.MintDrug(n.ctx, manufacturerOrg, MintDrugInput{
			Name: drugName, SerialNo: serial, ManufacturingDate: "2024-01-01", ExpiryDate: farDate, ManufacturerCRN: "M1",
		}); err != nil {
			n.t.Fatalf("mint %s: %v", serial, err)
		}
	}
}

func (n *network) order(buyer, seller string, quantity int) domain.PurchaseOrder {
	n.t.Helper()
	po, _, err := n.svc.CreatePurchaseOrder(n.ctx, supplyChainOrg, CreatePurchaseOrderInput{BuyerCRN: buyer, SellerCRN: seller, DrugName: drugName, Quantity: quantity})
	if err != nil {
		n.t.Fatalf("order %s<-%s: %v", buyer, seller, err)
	}
	return po
}

func (n *network) ship(buyer, transporter string, serials ...string) domain.Shipment {
	n.t.Helper()
	shipment, _, err := n.svc.CreateShipment(n.ctx, manufacturerOrg, CreateShipmentInput{BuyerCRN: buyer, DrugName: drugName, AssetSerials: serials, TransporterCRN: transporter})
	if err != nil {
		n.t.Fatalf("ship to %s: %v", buyer, err)
	}
	return shipment
}

func (n *network) deliver(buyer, transporter string) domain.Shipment {
	n.t.Helper()
	shipment, _, err := n.svc.DeliverShipment(n.ctx, supplyChainOrg, DeliverShipmentInput{BuyerCRN: buyer, DrugName: drugName, TransporterCRN: transporter})
	if err != nil {
		n.t.Fatalf("deliver to %s: %v", buyer, err)
	}
	return shipment
}

func (n *network) drug(serial string) domain.Drug {
	n.t.Helper()
	drug, err := n.svc.DrugState(n.ctx, drugName, serial)
	if err != nil {
		n.t.Fatalf("drug %s: %v", serial, err)
	}
	return drug
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

var errBoom = errors.New("boom")

func serials(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%03d", i+1)
	}
	return out
}
