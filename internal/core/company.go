package core

import (
	"context"
	"strings"

	"pharmanet/pkg/domain"
)

// RegisterCompanyInput carries the attributes of a new organization.
type RegisterCompanyInput struct {
	CRN      string
	Name     string
	Location string
	Role     string
}

// RegisterCompany registers an organization and assigns its hierarchy rank.
// A registration number may be registered once, whatever the name.
func (s *Service) RegisterCompany(ctx context.Context, caller string, in RegisterCompanyInput) (domain.Company, domain.Result, error) {
	var created domain.Company
	res, err := s.mutate(ctx, OpRegisterCompany, caller, func(ctx context.Context, assets *AssetStore) (mutation, error) {
		role, err := domain.ParseRole(strings.TrimSpace(in.Role))
		if err != nil {
			return mutation{}, domain.InvalidArgument("%v", err)
		}
		crn, name := strings.TrimSpace(in.CRN), strings.TrimSpace(in.Name)
		if crn == "" || name == "" {
			return mutation{}, domain.InvalidArgument("company crn and name are required")
		}
		key, err := CompanyKey(crn, name)
		if err != nil {
			return mutation{}, err
		}
		if _, exists, err := assets.Company(key); err != nil {
			return mutation{}, err
		} else if exists {
			return mutation{}, domain.AlreadyExists(domain.EntityCompany, key, "company is already registered")
		}
		sameCRN, err := assets.ScanCompaniesByCRN(ctx, crn)
		if err != nil {
			return mutation{}, err
		}
		if len(sameCRN) > 0 {
			return mutation{}, domain.AlreadyExists(domain.EntityCompany, sameCRN[0].Key, "crn %s is already registered to %s", crn, sameCRN[0].Name)
		}
		created = domain.Company{
			Key:           key,
			CRN:           crn,
			Name:          name,
			Location:      strings.TrimSpace(in.Location),
			Role:          role,
			HierarchyRank: role.Rank(),
		}
		if err := assets.Stage(domain.EntityCompany, domain.ActionCreate, key, nil, created); err != nil {
			return mutation{}, err
		}
		return mutation{entityID: key, event: EventCompanyRegistered, payload: created}, nil
	})
	if err != nil {
		return domain.Company{}, res, err
	}
	return created, res, nil
}

// ResolveCompany resolves a registration number to its company.
func (s *Service) ResolveCompany(ctx context.Context, crn string) (domain.Company, error) {
	var company domain.Company
	err := s.query(ctx, OpResolveCompany, func(ctx context.Context, assets *AssetStore) error {
		var err error
		company, err = resolveCompany(ctx, assets, crn, "company")
		return err
	})
	return company, err
}

// GetCompany loads a company by its full (crn, name) key.
func (s *Service) GetCompany(ctx context.Context, crn, name string) (domain.Company, error) {
	var company domain.Company
	err := s.query(ctx, OpResolveCompany, func(_ context.Context, assets *AssetStore) error {
		key, err := CompanyKey(crn, name)
		if err != nil {
			return err
		}
		found, ok, err := assets.Company(key)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFound(domain.EntityCompany, key, "company %s is not registered", crn)
		}
		company = found
		return nil
	})
	return company, err
}

// resolveCompany finds the single company registered under crn. label names
// the company's part in the operation for error messages.
func resolveCompany(ctx context.Context, assets *AssetStore, crn, label string) (domain.Company, error) {
	crn = strings.TrimSpace(crn)
	if crn == "" {
		return domain.Company{}, domain.InvalidArgument("%s crn is required", label)
	}
	matches, err := assets.CompaniesByCRN(ctx, crn)
	if err != nil {
		return domain.Company{}, err
	}
	switch len(matches) {
	case 0:
		return domain.Company{}, domain.NotFound(domain.EntityCompany, "", "%s %s is not registered", label, crn)
	case 1:
		return matches[0], nil
	default:
		return domain.Company{}, domain.InvariantViolation(domain.EntityCompany, "", "crn %s is ambiguous: %d companies registered", crn, len(matches))
	}
}
