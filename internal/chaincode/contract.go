// Package chaincode exposes the supply-chain service as a Fabric contract.
// Every transaction runs the service over the invocation's stub, with the
// caller organization taken from the client identity.
package chaincode

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"pharmanet/internal/core"
	"pharmanet/internal/infra/ledger/fabric"
)

// ContractName is the namespace clients use to address the transactions.
const ContractName = "org.pharma-network.pharmanet"

// PharmaContract implements the pharmanet transactions.
type PharmaContract struct {
	contractapi.Contract
	opts []core.ServiceOption
}

// NewPharmaContract returns a contract whose services are built with opts in
// addition to the stub-bound ledger and event publisher.
func NewPharmaContract(opts ...core.ServiceOption) *PharmaContract {
	c := &PharmaContract{opts: opts}
	c.Name = ContractName
	return c
}

// Instantiate is invoked once when the chaincode is deployed.
func (c *PharmaContract) Instantiate(ctx contractapi.TransactionContextInterface) error {
	return ctx.GetStub().SetEvent("pharmanet.instantiated", []byte(ctx.GetStub().GetTxID()))
}

// RegisterCompany registers an organization of the given role.
func (c *PharmaContract) RegisterCompany(ctx contractapi.TransactionContextInterface, companyCRN, companyName, location, organizationRole string) (string, error) {
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	company, _, err := svc.RegisterCompany(context.Background(), caller, core.RegisterCompanyInput{
		CRN: companyCRN, Name: companyName, Location: location, Role: organizationRole,
	})
	return marshal(company, err)
}

// AddDrug mints a drug unit owned by its manufacturer.
func (c *PharmaContract) AddDrug(ctx contractapi.TransactionContextInterface, drugName, serialNo, mfgDate, expDate, companyCRN string) (string, error) {
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	drug, _, err := svc.MintDrug(context.Background(), caller, core.MintDrugInput{
		Name: drugName, SerialNo: serialNo, ManufacturingDate: mfgDate, ExpiryDate: expDate, ManufacturerCRN: companyCRN,
	})
	return marshal(drug, err)
}

// CreatePO places a purchase order with the next tier up.
func (c *PharmaContract) CreatePO(ctx contractapi.TransactionContextInterface, buyerCRN, sellerCRN, drugName, quantity string) (string, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(quantity))
	if err != nil {
		return "", fmt.Errorf("quantity %q is not a number", quantity)
	}
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	po, _, err := svc.CreatePurchaseOrder(context.Background(), caller, core.CreatePurchaseOrderInput{
		BuyerCRN: buyerCRN, SellerCRN: sellerCRN, DrugName: drugName, Quantity: qty,
	})
	return marshal(po, err)
}

// CreateShipment ships the listed serials against the buyer's order.
// listOfAssets is either {"assets":["S1",...]} or a JSON array of serials.
func (c *PharmaContract) CreateShipment(ctx contractapi.TransactionContextInterface, buyerCRN, drugName, listOfAssets, transporterCRN string) (string, error) {
	serials, err := parseAssets(listOfAssets)
	if err != nil {
		return "", err
	}
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	shipment, _, err := svc.CreateShipment(context.Background(), caller, core.CreateShipmentInput{
		BuyerCRN: buyerCRN, DrugName: drugName, AssetSerials: serials, TransporterCRN: transporterCRN,
	})
	return marshal(shipment, err)
}

// UpdateShipment marks the buyer's shipment delivered.
func (c *PharmaContract) UpdateShipment(ctx contractapi.TransactionContextInterface, buyerCRN, drugName, transporterCRN string) (string, error) {
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	shipment, _, err := svc.DeliverShipment(context.Background(), caller, core.DeliverShipmentInput{
		BuyerCRN: buyerCRN, DrugName: drugName, TransporterCRN: transporterCRN,
	})
	return marshal(shipment, err)
}

// RetailDrug sells a unit to a consumer.
func (c *PharmaContract) RetailDrug(ctx contractapi.TransactionContextInterface, drugName, serialNo, retailerCRN, customerAadhar string) (string, error) {
	svc, caller, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	drug, _, err := svc.RetailDrug(context.Background(), caller, core.RetailDrugInput{
		Name: drugName, SerialNo: serialNo, RetailerCRN: retailerCRN, ConsumerID: customerAadhar,
	})
	return marshal(drug, err)
}

// ViewHistory returns every version of a drug unit, oldest first.
func (c *PharmaContract) ViewHistory(ctx contractapi.TransactionContextInterface, drugName, serialNo string) (string, error) {
	svc, _, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	entries, err := svc.DrugHistory(context.Background(), drugName, serialNo)
	return marshal(entries, err)
}

// ViewDrugCurrentState returns the current state of a drug unit.
func (c *PharmaContract) ViewDrugCurrentState(ctx contractapi.TransactionContextInterface, drugName, serialNo string) (string, error) {
	svc, _, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	drug, err := svc.DrugState(context.Background(), drugName, serialNo)
	return marshal(drug, err)
}

func (c *PharmaContract) bind(ctx contractapi.TransactionContextInterface) (*core.Service, string, error) {
	caller, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, "", fmt.Errorf("read client msp id: %w", err)
	}
	stub := ctx.GetStub()
	opts := append([]core.ServiceOption{core.WithEventPublisher(fabric.NewEventPublisher(stub))}, c.opts...)
	return core.NewService(fabric.New(stub), opts...), caller, nil
}

func parseAssets(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var list []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("decode asset list: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Assets []string `json:"assets"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("decode asset list: %w", err)
	}
	return wrapped.Assets, nil
}

func marshal(v any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}
	return string(out), nil
}
