package ledger

import "gorm.io/datatypes"

// decisionPacketModel maps to 'decision_packets'. Rows are append-only: the
// store exposes no update or delete path.
type decisionPacketModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	PacketID      string         `gorm:"column:packet_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Action        string         `gorm:"column:action"`
	Direction     string         `gorm:"column:direction"`
	Confidence    float64        `gorm:"column:confidence"`
	SizeMult      float64        `gorm:"column:size_mult"`
	EngineVersion string         `gorm:"column:engine_version"`
	Details       datatypes.JSON `gorm:"column:details"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (decisionPacketModel) TableName() string { return "decision_packets" }

type executionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	PositionID    string         `gorm:"column:position_id;uniqueIndex"`
	DecisionID    string         `gorm:"column:decision_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Direction     string         `gorm:"column:direction"`
	OptionType    string         `gorm:"column:option_type"`
	Strike        float64        `gorm:"column:strike"`
	DTE           int            `gorm:"column:dte"`
	Bucket        string         `gorm:"column:bucket"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	Details       datatypes.JSON `gorm:"column:details"`
	OpenedAtUnix  int64          `gorm:"column:opened_at"`
}

func (executionModel) TableName() string { return "executions" }

type exitModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	PositionID   string         `gorm:"column:position_id;uniqueIndex"`
	Symbol       string         `gorm:"column:symbol;index"`
	Reason       string         `gorm:"column:reason"`
	GrossPnL     float64        `gorm:"column:gross_pnl"`
	NetPnL       float64        `gorm:"column:net_pnl"`
	Details      datatypes.JSON `gorm:"column:details"`
	ExitTimeUnix int64          `gorm:"column:exit_time"`
}

func (exitModel) TableName() string { return "exits" }
