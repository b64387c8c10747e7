package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/export"
)

// Export formats supported for audit history.
const (
	HistoryFormatCSV = "csv"
	HistoryFormatPDF = "pdf"
)

var (
	historyHeaders = []string{"Timestamp", "From", "To", "Trigger", "Actor", "Notes"}
	historyWidths  = []float64{3, 1.2, 1.2, 1.2, 2.4, 6}
)

type historyStore interface {
	ListAuditRecords(ctx context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, int, error)
	ListPendingActions(ctx context.Context, ref models.EntityRef) ([]models.PendingAction, error)
}

// HistoryService reads the append-only audit trail for the UI history view.
type HistoryService struct {
	store  historyStore
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewHistoryService constructs the history service.
func NewHistoryService(store historyStore, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{store: store, csv: export.NewCSVExporter(), pdf: export.NewPDFExporter(), logger: logger}
}

// List returns a page of audit records, newest first.
func (s *HistoryService) List(ctx context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 20
	}
	records, total, err := s.store.ListAuditRecords(ctx, ref, filter)
	if err != nil {
		return nil, nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to list lifecycle history")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// PendingActions lists manual transitions surfaced by milestones.
func (s *HistoryService) PendingActions(ctx context.Context, ref models.EntityRef) ([]models.PendingAction, error) {
	actions, err := s.store.ListPendingActions(ctx, ref)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to list pending actions")
	}
	return actions, nil
}

// Export renders the full history as CSV or PDF and returns the content type.
func (s *HistoryService) Export(ctx context.Context, ref models.EntityRef, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = HistoryFormatCSV
	}
	if format != HistoryFormatCSV && format != HistoryFormatPDF {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	records, _, err := s.store.ListAuditRecords(ctx, ref, models.HistoryFilter{})
	if err != nil {
		return nil, "", appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load lifecycle history")
	}

	data := export.Dataset{Headers: historyHeaders, Widths: historyWidths, Rows: make([]map[string]string, 0, len(records))}
	for _, rec := range records {
		data.Rows = append(data.Rows, map[string]string{
			"Timestamp": rec.CreatedAt.UTC().Format(time.RFC3339),
			"From":      orDash(rec.FromStatusCode),
			"To":        rec.ToStatusCode,
			"Trigger":   orDash(rec.TriggerCode),
			"Actor":     actorLabel(rec.ActorID),
			"Notes":     rec.Notes,
		})
	}

	if format == HistoryFormatPDF {
		body, err := s.pdf.Render(data, fmt.Sprintf("%s %s lifecycle history", ref.Type, ref.ID))
		if err != nil {
			return nil, "", appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render history pdf")
		}
		return body, "application/pdf", nil
	}
	body, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render history csv")
	}
	return body, "text/csv", nil
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func actorLabel(v *string) string {
	if v == nil || *v == "" {
		return "system"
	}
	return *v
}
