package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/models"
	"github.com/noah-isme/workshop-scheduler/pkg/export"
	"github.com/noah-isme/workshop-scheduler/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders run results and hands out signed download links.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
		if signer != nil {
			cfg.ResultTTL = signer.TTL()
		}
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate renders run in format, stores the file and signs a download token.
func (s *ExportService) Generate(ctx context.Context, run *models.SolveRun, assignments []models.RunAssignment, slots []models.RunSlot, format models.ExportFormat) (*ExportResult, error) {
	if run == nil {
		return nil, fmt.Errorf("run nil")
	}
	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ExportFormatCSV:
		payload, err = submission(run, assignments)
	case models.ExportFormatSlots:
		payload, err = s.csv.Render(slotTable(slots))
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(occupancyDocument(run, slots))
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.filename(run.ID, format), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(run.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export generated", zap.String("run_id", run.ID), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) filename(runID string, format models.ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	switch format {
	case models.ExportFormatCSV:
		return fmt.Sprintf("runs/%s/submission_%s.csv", runID, timestamp)
	case models.ExportFormatSlots:
		return fmt.Sprintf("runs/%s/slots_%s.csv", runID, timestamp)
	default:
		return fmt.Sprintf("runs/%s/occupancy_%s.%s", runID, timestamp, format)
	}
}

// submission echoes the run input in family file form with a solution column.
func submission(run *models.SolveRun, assignments []models.RunAssignment) ([]byte, error) {
	ds := &loader.Dataset{Choices: run.Policy.V.MaxChoices, HasSolution: true}
	for i, rec := range run.Input.V {
		label := rec.Label
		if label == "" {
			label = loader.FormatFamilyID(rec.RequesterID)
		}
		days := make([]int, len(rec.Choices))
		for j, c := range rec.Choices {
			days[j] = c.Slot
		}
		if len(days) > ds.Choices {
			ds.Choices = len(days)
		}
		ds.Rows = append(ds.Rows, loader.Row{Line: i + 2, FamilyID: label, ID: rec.RequesterID, Members: rec.Size, Days: days})
	}
	placed := make(map[int]int, len(assignments))
	for _, a := range assignments {
		if a.Slot != nil {
			placed[a.RequesterID] = *a.Slot
		}
	}
	var buf bytes.Buffer
	if err := loader.WriteSubmission(&buf, ds, placed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func slotTable(slots []models.RunSlot) export.Table {
	table := export.Table{Headers: []string{"Day", "Open", "Occupancy", "Families", "Minimum", "Maximum"}}
	for _, st := range slots {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(st.Slot),
			strconv.FormatBool(st.Open),
			strconv.Itoa(st.Occupancy),
			strconv.Itoa(st.Groups),
			strconv.Itoa(st.MinOccupancy),
			strconv.Itoa(st.MaxOccupancy),
		})
	}
	return table
}

func occupancyDocument(run *models.SolveRun, slots []models.RunSlot) export.Document {
	doc := export.Document{
		Title: fmt.Sprintf("Workshop occupancy, run %s", run.ID),
		Table: slotTable(slots),
	}
	if run.Summary.V != nil {
		for _, line := range run.Summary.V.Lines() {
			doc.Summary = append(doc.Summary, export.Field{Label: line.Label, Value: line.Value})
		}
	}
	return doc
}
