package redisindex

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"pharmanet/internal/core"
	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"
	"pharmanet/pkg/keyspace"
)

func newIndex(t *testing.T) (*Index, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	idx, err := New(context.Background(), Options{Addr: srv.Addr(), Prefix: "test:idx:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, srv
}

func TestObserveAddsKeyToFirstAttributeSet(t *testing.T) {
	idx, srv := newIndex(t)
	key := keyspace.MustEncode(domain.NamespaceCompany, "CRN1", "Acme")
	require.NoError(t, idx.Observe(context.Background(), key))

	members, err := srv.Members("test:idx:" + domain.NamespaceCompany + ":CRN1")
	require.NoError(t, err)
	require.Equal(t, []string{key}, members)
}

func TestObserveRejectsMalformedKey(t *testing.T) {
	idx, _ := newIndex(t)
	require.Error(t, idx.Observe(context.Background(), "plain"))
}

func TestServiceResolvesThroughIndex(t *testing.T) {
	ctx := context.Background()
	idx, srv := newIndex(t)
	svc := core.NewService(memory.New(), core.WithCompanyIndex(idx))

	company, _, err := svc.RegisterCompany(ctx, core.DefaultSupplyChainOrg, core.RegisterCompanyInput{
		CRN: "DIST001", Name: "VG Pharma", Location: "Chennai", Role: "Distributor",
	})
	require.NoError(t, err)
	require.True(t, srv.Exists("test:idx:"+domain.NamespaceCompany+":DIST001"))

	resolved, err := svc.ResolveCompany(ctx, "DIST001")
	require.NoError(t, err)
	require.Equal(t, company, resolved)
}

func TestMissFallsBackToScanAndBackfills(t *testing.T) {
	ctx := context.Background()
	ledger := memory.New()
	// Registered before the index existed, so Redis has never seen it.
	seed := core.NewService(ledger)
	_, _, err := seed.RegisterCompany(ctx, core.DefaultManufacturerOrg, core.RegisterCompanyInput{
		CRN: "MAN001", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer",
	})
	require.NoError(t, err)

	idx, srv := newIndex(t)
	svc := core.NewService(ledger, core.WithCompanyIndex(idx))
	resolved, err := svc.ResolveCompany(ctx, "MAN001")
	require.NoError(t, err)
	require.Equal(t, "Sun Pharma", resolved.Name)

	members, err := srv.Members("test:idx:" + domain.NamespaceCompany + ":MAN001")
	require.NoError(t, err)
	require.Equal(t, []string{resolved.Key}, members)
}

func TestStaleMembersAreSkipped(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	idx := NewWithClient(client, "")
	t.Cleanup(func() { _ = idx.Close() })

	ghost := keyspace.MustEncode(domain.NamespaceCompany, "CRN9", "Gone")
	_, err := srv.SAdd(DefaultPrefix+":"+domain.NamespaceCompany+":CRN9", ghost)
	require.NoError(t, err)

	require.NoError(t, memory.New().View(ctx, func(tx domain.Transaction) error {
		kvs, err := idx.ResolveByPrefix(ctx, tx, domain.NamespaceCompany, "CRN9")
		require.NoError(t, err)
		require.Empty(t, kvs)
		return nil
	}))
}
