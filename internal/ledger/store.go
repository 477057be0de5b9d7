package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"talon/internal/types"

	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Ledger is the append-only collaborator the core writes decisions and their
// nested records to, and reads open positions back from. Records are never
// edited in place; a position is closed by appending its exit row.
type Ledger interface {
	AppendDecision(ctx context.Context, pkt *types.DecisionPacket) error
	AppendExecution(ctx context.Context, rec *types.ExecutionRecord) error
	AppendExit(ctx context.Context, rec *types.ExitRecord) error
	OpenPositions(ctx context.Context) ([]types.ExecutionRecord, error)
	HasExit(ctx context.Context, positionID string) (bool, error)
}

// Store implements Ledger on SQLite via gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionPacketModel{}, &executionModel{}, &exitModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep write contention low while the sweep reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AppendDecision(ctx context.Context, pkt *types.DecisionPacket) error {
	if pkt == nil {
		return fmt.Errorf("ledger: nil packet")
	}
	details, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("ledger: marshal packet: %w", err)
	}
	row := decisionPacketModel{
		PacketID:      pkt.ID,
		Symbol:        pkt.Symbol,
		Action:        string(pkt.Action),
		Direction:     string(pkt.Direction),
		Confidence:    pkt.Confidence,
		SizeMult:      pkt.SizeMult,
		EngineVersion: pkt.EngineVersion,
		Details:       details,
		CreatedAtUnix: pkt.CreatedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) AppendExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	if rec == nil {
		return fmt.Errorf("ledger: nil execution record")
	}
	details, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal execution: %w", err)
	}
	row := executionModel{
		PositionID:   rec.PositionID,
		DecisionID:   rec.DecisionID,
		Symbol:       rec.Symbol,
		Direction:    string(rec.Direction),
		OptionType:   string(rec.OptionType),
		Strike:       rec.Strike,
		DTE:          rec.DTE,
		Bucket:       string(rec.Bucket),
		EntryPrice:   rec.EntryPrice,
		Details:      details,
		OpenedAtUnix: rec.OpenedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) AppendExit(ctx context.Context, rec *types.ExitRecord) error {
	if rec == nil {
		return fmt.Errorf("ledger: nil exit record")
	}
	details, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal exit: %w", err)
	}
	row := exitModel{
		PositionID:   rec.PositionID,
		Symbol:       rec.Symbol,
		Reason:       string(rec.Reason),
		GrossPnL:     rec.GrossPnL,
		NetPnL:       rec.NetPnL,
		Details:      details,
		ExitTimeUnix: rec.ExitTime.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// OpenPositions returns executions that have no exit row yet. Closed
// positions never reappear: the exit row excludes them permanently.
func (s *Store) OpenPositions(ctx context.Context) ([]types.ExecutionRecord, error) {
	var rows []executionModel
	sub := s.db.Model(&exitModel{}).Select("position_id")
	if err := s.db.WithContext(ctx).
		Where("position_id NOT IN (?)", sub).
		Order("opened_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		// Sanity-check the blob before unmarshal; a torn row would otherwise
		// surface as a zero-valued position.
		if !gjson.ValidBytes(row.Details) || gjson.GetBytes(row.Details, "position_id").String() != row.PositionID {
			return nil, fmt.Errorf("%w: execution row %s has inconsistent details", types.ErrConcurrencyViolation, row.PositionID)
		}
		var rec types.ExecutionRecord
		if err := json.Unmarshal(row.Details, &rec); err != nil {
			return nil, fmt.Errorf("ledger: unmarshal execution %s: %w", row.PositionID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) HasExit(ctx context.Context, positionID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&exitModel{}).
		Where("position_id = ?", positionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
