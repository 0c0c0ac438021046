package redisstream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"pharmanet/internal/core"
)

func TestPublishAppendsStreamEntry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	pub := New(client, "")
	t.Cleanup(func() { _ = pub.Close() })

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Publish(context.Background(), core.Event{
		Name:      core.EventShipmentDelivered,
		Key:       "k",
		TxID:      "tx-9",
		Caller:    core.DefaultSupplyChainOrg,
		Timestamp: at,
		Payload:   json.RawMessage(`{"status":"delivered"}`),
	}))

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	values := entries[0].Values
	require.Equal(t, core.EventShipmentDelivered, values["name"])
	require.Equal(t, "tx-9", values["tx_id"])
	require.JSONEq(t, `{"status":"delivered"}`, values["payload"].(string))
}

func TestServicePublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	pub := New(client, "events")
	t.Cleanup(func() { _ = pub.Close() })

	svc := core.NewInMemoryService(core.WithEventPublisher(pub))
	_, _, err := svc.RegisterCompany(ctx, core.DefaultManufacturerOrg, core.RegisterCompanyInput{
		CRN: "MAN001", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer",
	})
	require.NoError(t, err)
	// A rejected registration publishes nothing.
	_, _, err = svc.RegisterCompany(ctx, core.DefaultManufacturerOrg, core.RegisterCompanyInput{
		CRN: "MAN001", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer",
	})
	require.Error(t, err)

	entries, err := client.XRange(ctx, "events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.EventCompanyRegistered, entries[0].Values["name"])
}
