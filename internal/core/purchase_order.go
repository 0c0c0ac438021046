package core

import (
	"context"
	"strings"

	"pharmanet/pkg/domain"
)

// CreatePurchaseOrderInput describes an order from a buyer to its immediate
// upstream seller.
type CreatePurchaseOrderInput struct {
	BuyerCRN  string
	SellerCRN string
	DrugName  string
	Quantity  int
}

// CreatePurchaseOrder records an order. The buyer must sit exactly one tier
// below the seller. A previous order for the same buyer and drug may only be
// replaced after a delivered shipment fulfilled it.
func (s *Service) CreatePurchaseOrder(ctx context.Context, caller string, in CreatePurchaseOrderInput) (domain.PurchaseOrder, domain.Result, error) {
	var created domain.PurchaseOrder
	res, err := s.mutate(ctx, OpCreatePurchaseOrder, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		drugName := strings.TrimSpace(in.DrugName)
		if drugName == "" {
			return mutation{}, domain.InvalidArgument("drug name is required")
		}
		if in.Quantity <= 0 {
			return mutation{}, domain.InvalidArgument("quantity must be positive, got %d", in.Quantity)
		}
		buyer, err := resolveCompany(ctx, assets, in.BuyerCRN, "buyer")
		if err != nil {
			return mutation{}, err
		}
		seller, err := resolveCompany(ctx, assets, in.SellerCRN, "seller")
		if err != nil {
			return mutation{}, err
		}
		if !buyer.Ranked() || !seller.Ranked() || buyer.HierarchyRank-seller.HierarchyRank != 1 {
			return mutation{}, domain.InvariantViolation(domain.EntityPurchaseOrder, "",
				"drug not ordered from a hierarchy: %s (%s) cannot order from %s (%s)", buyer.CRN, buyer.Role, seller.CRN, seller.Role)
		}
		key, err := PurchaseOrderKey(buyer.CRN, drugName)
		if err != nil {
			return mutation{}, err
		}
		previous, exists, err := assets.PurchaseOrder(key)
		if err != nil {
			return mutation{}, err
		}
		action := domain.ActionCreate
		var before any
		if exists {
			fulfilled, err := orderFulfilled(assets, buyer.CRN, drugName, previous)
			if err != nil {
				return mutation{}, err
			}
			if !fulfilled {
				return mutation{}, domain.AlreadyExists(domain.EntityPurchaseOrder, key, "purchase order for %s by %s is still open", drugName, buyer.CRN)
			}
			action, before = domain.ActionUpdate, previous
		}
		created = domain.PurchaseOrder{
			Key:      key,
			DrugName: drugName,
			Quantity: in.Quantity,
			Buyer:    buyer.Key,
			Seller:   seller.Key,
			TxID:     assets.TxID(),
		}
		if err := assets.Stage(domain.EntityPurchaseOrder, action, key, before, created); err != nil {
			return mutation{}, err
		}
		return mutation{entityID: key, event: EventPurchaseOrderCreated, payload: created}, nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, res, err
	}
	return created, res, nil
}

// GetPurchaseOrder loads the order a buyer placed for a drug.
func (s *Service) GetPurchaseOrder(ctx context.Context, buyerCRN, drugName string) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.query(ctx, OpGetPurchaseOrder, func(_ context.Context, assets *AssetStore) error {
		key, err := PurchaseOrderKey(strings.TrimSpace(buyerCRN), strings.TrimSpace(drugName))
		if err != nil {
			return err
		}
		found, ok, err := assets.PurchaseOrder(key)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound(domain.EntityPurchaseOrder, key, "purchase order not found")
		}
		po = found
		return nil
	})
	return po, err
}

// orderFulfilled reports whether a delivered shipment was made for po.
func orderFulfilled(assets *AssetStore, buyerCRN, drugName string, po domain.PurchaseOrder) (bool, error) {
	key, err := ShipmentKey(buyerCRN, drugName)
	if err != nil {
		return false, err
	}
	shipment, ok, err := assets.Shipment(key)
	if err != nil || !ok {
		return false, err
	}
	return shipment.Status == domain.ShipmentDelivered && shipment.OrderTxID == po.TxID, nil
}
