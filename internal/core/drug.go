package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pharmanet/pkg/domain"
)

// ErrStopWalk stops WalkDrugHistory without reporting an error.
var ErrStopWalk = errors.New("stop history walk")

// MintDrugInput carries the attributes of a new drug unit.
type MintDrugInput struct {
	Name              string
	SerialNo          string
	ManufacturingDate string
	ExpiryDate        string
	ManufacturerCRN   string
}

// RetailDrugInput identifies a retail sale to an end consumer.
type RetailDrugInput struct {
	Name        string
	SerialNo    string
	RetailerCRN string
	ConsumerID  string
}

// MintDrug creates a drug unit owned by its manufacturer.
func (s *Service) MintDrug(ctx context.Context, caller string, in MintDrugInput) (domain.Drug, domain.Result, error) {
	var minted domain.Drug
	res, err := s.mutate(ctx, OpMintDrug, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		name, serial := strings.TrimSpace(in.Name), strings.TrimSpace(in.SerialNo)
		mfg, exp := strings.TrimSpace(in.ManufacturingDate), strings.TrimSpace(in.ExpiryDate)
		if name == "" || serial == "" {
			return mutation{}, domain.InvalidArgument("drug name and serial number are required")
		}
		if mfg == "" || exp == "" {
			return mutation{}, domain.InvalidArgument("manufacturing and expiry dates are required")
		}
		key, err := DrugKey(name, serial)
		if err != nil {
			return mutation{}, err
		}
		if _, exists, err := assets.Drug(key); err != nil {
			return mutation{}, err
		} else if exists {
			return mutation{}, domain.AlreadyExists(domain.EntityDrug, key, "drug %s %s is already added", name, serial)
		}
		manufacturer, err := resolveCompany(ctx, assets, in.ManufacturerCRN, "manufacturer")
		if err != nil {
			return mutation{}, err
		}
		if manufacturer.Role != domain.RoleManufacturer {
			return mutation{}, domain.InvariantViolation(domain.EntityCompany, manufacturer.Key,
				"company %s is a %s, only a Manufacturer can add a drug", manufacturer.CRN, manufacturer.Role)
		}
		minted = domain.Drug{
			Key:               key,
			Name:              name,
			SerialNo:          serial,
			Manufacturer:      manufacturer.Key,
			ManufacturingDate: mfg,
			ExpiryDate:        exp,
			Owner:             manufacturer.Key,
			Stage:             domain.DrugStageCreated,
		}
		if err := assets.Stage(domain.EntityDrug, domain.ActionCreate, key, nil, minted); err != nil {
			return mutation{}, err
		}
		return mutation{entityID: key, event: EventDrugMinted, payload: minted}, nil
	})
	if err != nil {
		return domain.Drug{}, res, err
	}
	return minted, res, nil
}

// DrugState returns the current state of a drug unit.
func (s *Service) DrugState(ctx context.Context, name, serialNo string) (domain.Drug, error) {
	var drug domain.Drug
	err := s.query(ctx, OpDrugState, func(_ context.Context, assets *AssetStore) error {
		var err error
		_, drug, err = loadDrug(assets, name, serialNo)
		return err
	})
	return drug, err
}

// WalkDrugHistory streams every committed version of a drug unit to fn in the
// order the ledger yields them. Versions are read lazily; returning
// ErrStopWalk from fn ends the walk early.
func (s *Service) WalkDrugHistory(ctx context.Context, name, serialNo string, fn func(domain.HistoryEntry) error) error {
	return s.query(ctx, OpDrugHistory, func(_ context.Context, assets *AssetStore) error {
		key, _, err := loadDrug(assets, name, serialNo)
		if err != nil {
			return err
		}
		it, err := assets.History(key)
		if err != nil {
			return err
		}
		defer func() { _ = it.Close() }()
		for it.HasNext() {
			mod, err := it.Next()
			if err != nil {
				return fmt.Errorf("history for %s: %w", domain.PrintableKey(key), err)
			}
			entry := domain.HistoryEntry{TxID: mod.TxID, Timestamp: mod.Timestamp, IsDelete: mod.IsDelete}
			if !mod.IsDelete && len(mod.Value) > 0 {
				var snapshot domain.Drug
				if err := json.Unmarshal(mod.Value, &snapshot); err != nil {
					return fmt.Errorf("decode drug version %s: %w", mod.TxID, err)
				}
				entry.Drug = &snapshot
			}
			if err := fn(entry); err != nil {
				if errors.Is(err, ErrStopWalk) {
					return nil
				}
				return err
			}
		}
		return nil
	})
}

// DrugHistory returns every committed version of a drug unit, oldest first.
func (s *Service) DrugHistory(ctx context.Context, name, serialNo string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := s.WalkDrugHistory(ctx, name, serialNo, func(entry domain.HistoryEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// RetailDrug sells a drug unit to an end consumer. The retailer must be a
// Retailer-tier company that currently owns the unit.
func (s *Service) RetailDrug(ctx context.Context, caller string, in RetailDrugInput) (domain.Drug, domain.Result, error) {
	var sold domain.Drug
	res, err := s.mutate(ctx, OpRetailDrug, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		key, drug, err := loadDrug(assets, in.Name, in.SerialNo)
		if err != nil {
			return mutation{}, err
		}
		retailer, err := resolveCompany(ctx, assets, in.RetailerCRN, "retailer")
		if err != nil {
			return mutation{}, err
		}
		if retailer.HierarchyRank != domain.RoleRetailer.Rank() {
			return mutation{}, domain.InvariantViolation(domain.EntityCompany, retailer.Key, "only a Retailer can sell drug to customer")
		}
		if drug.Owner != retailer.Key {
			return mutation{}, domain.InvariantViolation(domain.EntityDrug, key, "the retailer must be owner of drug to sell")
		}
		consumer := strings.TrimSpace(in.ConsumerID)
		if consumer == "" || strings.ContainsRune(consumer, 0) {
			return mutation{}, domain.InvalidArgument("consumer id is not valid")
		}
		sold = drug
		sold.ShipmentRefs = append([]string(nil), drug.ShipmentRefs...)
		sold.Owner = consumer
		sold.Stage = domain.DrugStageRetailed
		if err := assets.Stage(domain.EntityDrug, domain.ActionUpdate, key, drug, sold); err != nil {
			return mutation{}, err
		}
		return mutation{entityID: key, event: EventDrugRetailed, payload: sold}, nil
	})
	if err != nil {
		return domain.Drug{}, res, err
	}
	return sold, res, nil
}

func loadDrug(assets *AssetStore, name, serialNo string) (string, domain.Drug, error) {
	key, err := DrugKey(strings.TrimSpace(name), strings.TrimSpace(serialNo))
	if err != nil {
		return "", domain.Drug{}, err
	}
	drug, ok, err := assets.Drug(key)
	if err != nil {
		return "", domain.Drug{}, err
	}
	if !ok {
		return "", domain.Drug{}, domain.NotFound(domain.EntityDrug, key, "drug %s %s is not registered", name, serialNo)
	}
	return key, drug, nil
}
