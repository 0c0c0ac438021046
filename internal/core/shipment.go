package core

import (
	"context"
	"strings"

	"pharmanet/pkg/domain"
)

// CreateShipmentInput describes a consignment against a purchase order.
type CreateShipmentInput struct {
	BuyerCRN       string
	DrugName       string
	AssetSerials   []string
	TransporterCRN string
}

// DeliverShipmentInput identifies a shipment handed over to its buyer.
type DeliverShipmentInput struct {
	BuyerCRN       string
	DrugName       string
	TransporterCRN string
}

// CreateShipment binds drug units matching a purchase order to a transporter
// and moves their custody to it in one transaction.
func (s *Service) CreateShipment(ctx context.Context, caller string, in CreateShipmentInput) (domain.Shipment, domain.Result, error) {
	var created domain.Shipment
	res, err := s.mutate(ctx, OpCreateShipment, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		drugName := strings.TrimSpace(in.DrugName)
		buyer, err := resolveCompany(ctx, assets, in.BuyerCRN, "buyer")
		if err != nil {
			return mutation{}, err
		}
		transporter, err := resolveCompany(ctx, assets, in.TransporterCRN, "transporter")
		if err != nil {
			return mutation{}, err
		}
		if transporter.Role != domain.RoleTransporter {
			return mutation{}, domain.InvariantViolation(domain.EntityCompany, transporter.Key,
				"company %s is a %s, not a Transporter", transporter.CRN, transporter.Role)
		}
		poKey, err := PurchaseOrderKey(buyer.CRN, drugName)
		if err != nil {
			return mutation{}, err
		}
		po, ok, err := assets.PurchaseOrder(poKey)
		if err != nil {
			return mutation{}, err
		}
		if !ok {
			return mutation{}, domain.NotFound(domain.EntityPurchaseOrder, poKey, "purchase order not found")
		}
		if len(in.AssetSerials) != po.Quantity {
			return mutation{}, domain.InvariantViolation(domain.EntityShipment, "",
				"drug PO quantity and shipment quantity do not match: ordered %d, shipping %d", po.Quantity, len(in.AssetSerials))
		}
		key, err := ShipmentKey(buyer.CRN, drugName)
		if err != nil {
			return mutation{}, err
		}
		previous, exists, err := assets.Shipment(key)
		if err != nil {
			return mutation{}, err
		}
		var before any
		if exists {
			if previous.Status == domain.ShipmentInTransit || previous.OrderTxID == po.TxID {
				return mutation{}, domain.AlreadyExists(domain.EntityShipment, key, "a shipment for this purchase order already exists")
			}
			before = previous
		}

		seen := make(map[string]struct{}, len(in.AssetSerials))
		drugs := make([]domain.Drug, 0, len(in.AssetSerials))
		for _, raw := range in.AssetSerials {
			serial := strings.TrimSpace(raw)
			if _, dup := seen[serial]; dup {
				return mutation{}, domain.InvalidArgument("asset %s is listed more than once", serial)
			}
			seen[serial] = struct{}{}
			drugKey, err := DrugKey(drugName, serial)
			if err != nil {
				return mutation{}, err
			}
			drug, ok, err := assets.Drug(drugKey)
			if err != nil {
				return mutation{}, err
			}
			if !ok {
				return mutation{}, domain.NotFound(domain.EntityDrug, drugKey, "%s is not a valid asset", serial)
			}
			if drug.Stage == domain.DrugStageRetailed {
				return mutation{}, domain.InvariantViolation(domain.EntityDrug, drugKey, "asset %s was already sold to a consumer", serial)
			}
			if drug.Owner != po.Seller {
				return mutation{}, domain.InvariantViolation(domain.EntityDrug, drugKey, "asset %s is not owned by the seller of the purchase order", serial)
			}
			drugs = append(drugs, drug)
		}

		created = domain.Shipment{
			Key:           key,
			Creator:       caller,
			Assets:        make([]string, 0, len(drugs)),
			Transporter:   transporter.Key,
			Status:        domain.ShipmentInTransit,
			PurchaseOrder: po.Key,
			OrderTxID:     po.TxID,
		}
		for _, drug := range drugs {
			created.Assets = append(created.Assets, drug.Key)
		}
		if err := assets.Stage(domain.EntityShipment, domain.ActionCreate, key, before, created); err != nil {
			return mutation{}, err
		}
		for _, drug := range drugs {
			moved := drug
			moved.ShipmentRefs = append([]string(nil), drug.ShipmentRefs...)
			moved.Owner = transporter.Key
			moved.Stage = domain.DrugStageInTransit
			if err := assets.Stage(domain.EntityDrug, domain.ActionUpdate, drug.Key, drug, moved); err != nil {
				return mutation{}, err
			}
		}
		return mutation{entityID: key, event: EventShipmentCreated, payload: created}, nil
	})
	if err != nil {
		return domain.Shipment{}, res, err
	}
	return created, res, nil
}

// DeliverShipment completes an in-transit shipment: the buyer becomes the
// owner of every asset and each asset records the shipment.
func (s *Service) DeliverShipment(ctx context.Context, caller string, in DeliverShipmentInput) (domain.Shipment, domain.Result, error) {
	var delivered domain.Shipment
	res, err := s.mutate(ctx, OpDeliverShipment, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		transporter, err := resolveCompany(ctx, assets, in.TransporterCRN, "transporter")
		if err != nil {
			return mutation{}, err
		}
		buyer, err := resolveCompany(ctx, assets, in.BuyerCRN, "buyer")
		if err != nil {
			return mutation{}, err
		}
		key, err := ShipmentKey(buyer.CRN, strings.TrimSpace(in.DrugName))
		if err != nil {
			return mutation{}, err
		}
		shipment, ok, err := assets.Shipment(key)
		if err != nil {
			return mutation{}, err
		}
		if !ok {
			return mutation{}, domain.NotFound(domain.EntityShipment, key, "shipment not found")
		}
		if shipment.Status != domain.ShipmentInTransit {
			return mutation{}, domain.InvariantViolation(domain.EntityShipment, key, "shipment is not in-transit")
		}
		if shipment.Transporter != transporter.Key {
			return mutation{}, domain.InvariantViolation(domain.EntityShipment, key, "transporter mismatch with shipment")
		}

		delivered = shipment
		delivered.Assets = append([]string(nil), shipment.Assets...)
		delivered.Status = domain.ShipmentDelivered
		if err := assets.Stage(domain.EntityShipment, domain.ActionUpdate, key, shipment, delivered); err != nil {
			return mutation{}, err
		}
		for _, assetKey := range shipment.Assets {
			drug, ok, err := assets.Drug(assetKey)
			if err != nil {
				return mutation{}, err
			}
			if !ok {
				return mutation{}, domain.InvariantViolation(domain.EntityShipment, key, "shipment asset %s is missing", domain.PrintableKey(assetKey))
			}
			received := drug
			received.ShipmentRefs = append([]string(nil), drug.ShipmentRefs...)
			if !received.HasShipment(key) {
				received.ShipmentRefs = append(received.ShipmentRefs, key)
			}
			received.Owner = buyer.Key
			received.Stage = domain.DrugStageDelivered
			if err := assets.Stage(domain.EntityDrug, domain.ActionUpdate, assetKey, drug, received); err != nil {
				return mutation{}, err
			}
		}
		return mutation{entityID: key, event: EventShipmentDelivered, payload: delivered}, nil
	})
	if err != nil {
		return domain.Shipment{}, res, err
	}
	return delivered, res, nil
}

// GetShipment loads the shipment made for a buyer's order of a drug.
func (s *Service) GetShipment(ctx context.Context, buyerCRN, drugName string) (domain.Shipment, error) {
	var shipment domain.Shipment
	err := s.query(ctx, OpGetShipment, func(_ context.Context, assets *AssetStore) error {
		key, err := ShipmentKey(strings.TrimSpace(buyerCRN), strings.TrimSpace(drugName))
		if err != nil {
			return err
		}
		found, ok, err := assets.Shipment(key)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound(domain.EntityShipment, key, "shipment not found")
		}
		shipment = found
		return nil
	})
	return shipment, err
}
