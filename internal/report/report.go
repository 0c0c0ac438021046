// Package report renders drug provenance reports and publishes them to blob
// storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pharmanet/internal/blob"
	"pharmanet/internal/core"
	"pharmanet/pkg/domain"
)

// Format selects the report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

const provenanceSheet = "Provenance"

var provenanceHeader = []string{"Version", "Tx ID", "Timestamp", "Stage", "Owner", "Shipments"}

// Provenance is the content of one history report.
type Provenance struct {
	Drug        domain.Drug           `json:"drug"`
	History     []domain.HistoryEntry `json:"history"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

// Exporter reads drug history from the service and writes reports to a store.
type Exporter struct {
	svc   *core.Service
	store blob.Store
	now   func() time.Time
}

// NewExporter binds an exporter to a service and a blob store.
func NewExporter(svc *core.Service, store blob.Store) *Exporter {
	return &Exporter{svc: svc, store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the blob key of a report for the given drug version.
func Key(name, serialNo, txID string, format Format) string {
	return fmt.Sprintf("reports/%s/%s/history-%s.%s", url.PathEscape(name), url.PathEscape(serialNo), url.PathEscape(txID), format)
}

// ExportHistory writes the provenance report of a drug, keyed by the
// transaction of its latest version. Reports are immutable: exporting an
// unchanged drug again returns the existing blob.
func (e *Exporter) ExportHistory(ctx context.Context, name, serialNo string, format Format) (blob.Info, error) {
	prov, err := e.Provenance(ctx, name, serialNo)
	if err != nil {
		return blob.Info{}, err
	}
	var (
		body        []byte
		contentType string
	)
	switch format {
	case FormatJSON:
		body, err = json.MarshalIndent(prov, "", "  ")
		contentType = "application/json"
	case FormatXLSX:
		body, err = renderXLSX(prov)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return blob.Info{}, fmt.Errorf("unsupported report format %q", format)
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("render %s report: %w", format, err)
	}

	latest := prov.History[len(prov.History)-1]
	key := Key(prov.Drug.Name, prov.Drug.SerialNo, latest.TxID, format)
	info, err := e.store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"drug":   prov.Drug.Name,
			"serial": prov.Drug.SerialNo,
			"tx-id":  latest.TxID,
		},
	})
	if errors.Is(err, blob.ErrExists) {
		return e.store.Head(ctx, key)
	}
	return info, err
}

// Provenance collects the current state and full history of a drug.
func (e *Exporter) Provenance(ctx context.Context, name, serialNo string) (Provenance, error) {
	history, err := e.svc.DrugHistory(ctx, name, serialNo)
	if err != nil {
		return Provenance{}, err
	}
	if len(history) == 0 || history[len(history)-1].Drug == nil {
		return Provenance{}, domain.NotFound(domain.EntityDrug, "", "drug %s %s has no recorded versions", name, serialNo)
	}
	return Provenance{
		Drug:        *history[len(history)-1].Drug,
		History:     history,
		GeneratedAt: e.now(),
	}, nil
}

func renderXLSX(prov Provenance) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(provenanceSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(provenanceSheet, "A1", &provenanceHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(provenanceSheet, "A1", "F1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, entry := range prov.History {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{i + 1, entry.TxID, entry.Timestamp.UTC().Format(time.RFC3339Nano), "", "", ""}
		if entry.Drug != nil {
			row[3] = string(entry.Drug.Stage)
			row[4] = domain.PrintableKey(entry.Drug.Owner)
			refs := make([]string, 0, len(entry.Drug.ShipmentRefs))
			for _, ref := range entry.Drug.ShipmentRefs {
				refs = append(refs, domain.PrintableKey(ref))
			}
			row[5] = strings.Join(refs, ", ")
		}
		if err := f.SetSheetRow(provenanceSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write version %d: %w", i+1, err)
		}
	}
	for col, width := range map[string]float64{"B": 38, "C": 32, "E": 48, "F": 64} {
		if err := f.SetColWidth(provenanceSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
