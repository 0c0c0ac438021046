// Package domain defines the persistent supply-chain assets, the ledger
// abstraction they are stored in, and the rule evaluation primitives used by
// pharmanet.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored on the ledger.
type EntityType string

// Supported entity type identifiers used in Change records and audit entries.
const (
	// EntityCompany identifies a registered organization.
	EntityCompany EntityType = "company"
	// EntityDrug identifies a single drug unit.
	EntityDrug EntityType = "drug"
	// EntityPurchaseOrder identifies a purchase order between two tiers.
	EntityPurchaseOrder EntityType = "purchase_order"
	// EntityShipment identifies a consignment of drug units.
	EntityShipment EntityType = "shipment"
)

// Ledger namespaces for composite keys. They match the names used by the
// deployed pharmanet chaincode so existing world state remains addressable.
const (
	NamespaceCompany       = "org.pharma-network.pharmanet.company"
	NamespaceDrug          = "org.pharma-network.pharmanet.drug"
	NamespacePurchaseOrder = "org.pharma-network.pharmanet.drug.po"
	NamespaceShipment      = "org.pharma-network.pharmanet.drug.shipment"
)

// Namespace returns the ledger namespace that stores records of the entity type.
func (e EntityType) Namespace() string {
	switch e {
	case EntityCompany:
		return NamespaceCompany
	case EntityDrug:
		return NamespaceDrug
	case EntityPurchaseOrder:
		return NamespacePurchaseOrder
	case EntityShipment:
		return NamespaceShipment
	default:
		return ""
	}
}

// Role is the supply-chain function an organization performs.
type Role string

// Supported organization roles.
const (
	RoleManufacturer Role = "Manufacturer"
	RoleDistributor  Role = "Distributor"
	RoleRetailer     Role = "Retailer"
	RoleTransporter  Role = "Transporter"
)

// Unranked is the hierarchy rank of roles that sit outside the ordering chain.
const Unranked = 0

var roleRanks = map[Role]int{
	RoleManufacturer: 1,
	RoleDistributor:  2,
	RoleRetailer:     3,
	RoleTransporter:  Unranked,
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if _, ok := roleRanks[role]; !ok {
		return "", fmt.Errorf("role %q is not registered", raw)
	}
	return role, nil
}

// Rank returns the hierarchy rank of the role, or Unranked.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Company is an organization registered on the network.
type Company struct {
	Key           string `json:"companyID"`
	CRN           string `json:"crn"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	Role          Role   `json:"organizationRole"`
	HierarchyRank int    `json:"hierarchyKey,omitempty"`
}

// Ranked reports whether the company participates in purchase-order tiers.
func (c Company) Ranked() bool {
	return c.HierarchyRank != Unranked
}

// DrugStage tracks where a drug unit is in its lifecycle.
type DrugStage string

// Drug lifecycle stages.
const (
	DrugStageCreated   DrugStage = "created"
	DrugStageInTransit DrugStage = "in_transit"
	DrugStageDelivered DrugStage = "delivered"
	DrugStageRetailed  DrugStage = "retailed"
)

// Drug is a single serialized drug unit.
type Drug struct {
	Key               string    `json:"productID"`
	Name              string    `json:"name"`
	SerialNo          string    `json:"serialNo"`
	Manufacturer      string    `json:"manufacturer"`
	ManufacturingDate string    `json:"manufacturingDate"`
	ExpiryDate        string    `json:"expiryDate"`
	Owner             string    `json:"owner"`
	ShipmentRefs      []string  `json:"shipment,omitempty"`
	Stage             DrugStage `json:"stage"`
}

// HasShipment reports whether the unit already travelled in the shipment.
func (d Drug) HasShipment(key string) bool {
	for _, ref := range d.ShipmentRefs {
		if ref == key {
			return true
		}
	}
	return false
}

// PurchaseOrder records a quantity commitment between a buyer and its
// immediate upstream seller.
type PurchaseOrder struct {
	Key      string `json:"poID"`
	DrugName string `json:"drugName"`
	Quantity int    `json:"quantity"`
	Buyer    string `json:"buyer"`
	Seller   string `json:"seller"`
	TxID     string `json:"txID"`
}

// ShipmentStatus enumerates shipment states.
type ShipmentStatus string

// Shipment states. The only legal transition is in-transit to delivered.
const (
	ShipmentInTransit ShipmentStatus = "in-transit"
	ShipmentDelivered ShipmentStatus = "delivered"
)

// Shipment binds drug units from a purchase order to a transporter.
type Shipment struct {
	Key           string         `json:"shipmentID"`
	Creator       string         `json:"creator"`
	Assets        []string       `json:"assets"`
	Transporter   string         `json:"transporter"`
	Status        ShipmentStatus `json:"status"`
	PurchaseOrder string         `json:"purchaseOrder,omitempty"`
	OrderTxID     string         `json:"orderTxID,omitempty"`
}

// HistoryEntry is one committed version of a drug unit.
type HistoryEntry struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Drug      *Drug     `json:"value,omitempty"`
}

// Change describes a mutation applied to an asset during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Key    string
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in rule evaluation and the audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)
