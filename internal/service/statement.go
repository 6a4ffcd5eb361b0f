package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"consult-settlement/internal/clients"
	"consult-settlement/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute
)

// ExportStatus tracks one statement export from request to downloadable
// file. It lives in redis under its Key and expires with the file link.
type ExportStatus struct {
	Key      string    `json:"key"`
	Type     string    `json:"type"`
	UserID   int64     `json:"user_id"`
	PayeeID  string    `json:"payee_id"`
	Progress float64   `json:"progress"`
	FileURL  *string   `json:"file_url"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
}

// StatementStorage is any place a finished statement file can live.
// Satisfied by both the local-disk and the S3 storage clients.
type StatementStorage interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	GetURL(key string) string
}

// ExportStatusStore keeps export statuses addressable by key and by the
// shared set of known exports. Satisfied by the redis client.
type ExportStatusStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type statementColumn struct {
	header string
	value  func(p domain.Payout, it domain.PayoutItem) any
}

var statementColumns = []statementColumn{
	{"Period start", func(p domain.Payout, _ domain.PayoutItem) any { return p.PeriodStart.Format("2006-01-02") }},
	{"Period end", func(p domain.Payout, _ domain.PayoutItem) any { return p.PeriodEnd.Format("2006-01-02") }},
	{"Payout status", func(p domain.Payout, _ domain.PayoutItem) any { return string(p.Status) }},
	{"Engagement", func(_ domain.Payout, it domain.PayoutItem) any { return it.EngagementID }},
	{"Payment", func(_ domain.Payout, it domain.PayoutItem) any { return it.PaymentID }},
	{"Gross", func(_ domain.Payout, it domain.PayoutItem) any { return minorToMajor(it.GrossAmount) }},
	{"Platform fee", func(_ domain.Payout, it domain.PayoutItem) any { return minorToMajor(it.FeeAmount) }},
	{"Net", func(_ domain.Payout, it domain.PayoutItem) any { return minorToMajor(it.NetAmount) }},
	{"Currency", func(p domain.Payout, _ domain.PayoutItem) any { return p.Currency }},
	{"Enrolled at", func(_ domain.Payout, it domain.PayoutItem) any { return it.CreatedAt.Format("2006-01-02 15:04:05") }},
}

func minorToMajor(v int64) float64 {
	return float64(v) / 100
}

// StatementService renders a payee's payout history into an XLSX statement.
// Generation runs in the background; callers poll the export status or
// listen on the websocket channel.
type StatementService struct {
	baseCtx context.Context
	payouts PayoutStore
	redis   ExportStatusStore
	storage StatementStorage
	ws      *clients.WebSocketClient
}

// NewStatementService builds the service. baseCtx bounds the background
// generation goroutines: cancelling it aborts in-flight exports, so they do
// not outlive process shutdown.
func NewStatementService(baseCtx context.Context, payouts PayoutStore, redis ExportStatusStore, storage StatementStorage, ws *clients.WebSocketClient) *StatementService {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &StatementService{baseCtx: baseCtx, payouts: payouts, redis: redis, storage: storage, ws: ws}
}

func (s *StatementService) saveStatus(ctx context.Context, st *ExportStatus) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, st.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, exportSetKey, st.Key)
}

// StartPayoutStatementExport kicks off statement generation for a payee and
// returns the export id to poll.
func (s *StatementService) StartPayoutStatementExport(ctx context.Context, payeeID string, userID int64) (string, error) {
	if payeeID == "" {
		return "", domain.ErrValidation
	}
	if s.storage == nil {
		return "", errors.New("statement storage not configured")
	}

	exportID := fmt.Sprintf("exports:%s", uuid.NewString())
	status := &ExportStatus{
		Key:     exportID,
		Type:    "payout_statement",
		UserID:  userID,
		PayeeID: payeeID,
		Created: time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runExport(s.baseCtx, status)

	return exportID, nil
}

func (s *StatementService) runExport(ctx context.Context, status *ExportStatus) {
	fail := func(err error) {
		log.Printf("statement export %s failed: %v", status.Key, err)
		status.Error = err.Error()
		// the status write must survive the cancellation that caused the
		// failure, or the export would vanish without a trace
		detached := context.WithoutCancel(ctx)
		_ = s.saveStatus(detached, status)
		if s.ws != nil {
			_ = s.ws.NotifyExportFailed(detached, status.UserID, status.Key, status.Error)
		}
	}

	payouts, err := s.payouts.ListByPayee(ctx, status.PayeeID)
	if err != nil {
		fail(err)
		return
	}

	f := excelize.NewFile()
	sheet := "Payout statement"
	f.SetSheetName(f.GetSheetName(0), sheet)
	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: fmt.Sprintf("user_%d", status.UserID),
	})

	for i, col := range statementColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.header)
	}

	rowIdx := 2
	for i, p := range payouts {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		items, err := s.payouts.ListItems(ctx, p.ID)
		if err != nil {
			fail(err)
			return
		}
		for _, it := range items {
			for colIdx, col := range statementColumns {
				cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
				_ = f.SetCellValue(sheet, cell, col.value(p, it))
			}
			rowIdx++
		}

		// progress by payout, capped below 100 until the file URL exists
		progress := math.Round(float64(i+1) / float64(len(payouts)) * 100)
		if progress >= 100 {
			progress = 95
		}
		status.Progress = progress
		_ = s.saveStatus(ctx, status)
		if s.ws != nil {
			_ = s.ws.NotifyExportProgress(ctx, status.UserID, status.Key, progress, "generating")
		}
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		fail(err)
		return
	}

	fileName := fmt.Sprintf("payout_statement_%s.xlsx", time.Now().Format("20060102_150405"))

	status.Progress = 95
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.UserID, status.Key, 95, "uploading")
	}

	key, err := s.storage.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		fail(err)
		return
	}

	url := s.storage.GetURL(key)
	status.FileURL = &url
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.UserID, status.Key, 100, "ready")
		_ = s.ws.NotifyExportComplete(ctx, status.UserID, status.Key, url, fileName)
	}
}

// GetExports lists the caller's exports, newest first.
func (s *StatementService) GetExports(ctx context.Context, userID int64) ([]ExportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.redis.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, fmt.Errorf("list export keys: %w", err)
	}

	var out []ExportStatus
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			continue
		}
		var st ExportStatus
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			continue
		}
		if st.UserID == userID {
			out = append(out, st)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

func (s *StatementService) GetExport(ctx context.Context, exportID string, userID int64) (*ExportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	data, err := s.redis.Get(ctx, exportID)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("parse export status: %w", err)
	}
	if st.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}
