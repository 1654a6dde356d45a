// Package store is the gateway's persistence layer: addresses, per-asset
// balances, transactions, pending withdrawals and the webhook dead-letter
// queue, backed by GORM over Postgres or SQLite.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// Address is an on-chain receive address the gateway is custodying.
type Address struct {
	AddressID  string `gorm:"column:address_id;primaryKey"`
	WalletKind string `gorm:"column:wallet_kind;not null;default:regular"`
	Comment    string `gorm:"column:comment"`
	CreateTime int64  `gorm:"column:create_time;not null"`
	Expired    bool   `gorm:"column:expired;not null;default:false"`
	Identity   string `gorm:"column:identity"`
	WalletID   string `gorm:"column:wallet_id"`
}

func (Address) TableName() string { return "addresses" }

// AddressBalance holds one address's available/locked integer balance for
// one asset. Updated exclusively through atomic SQL increments; no
// component reads-then-writes these fields.
type AddressBalance struct {
	ID        uint   `gorm:"primaryKey"`
	AddressID string `gorm:"column:address_id;not null;uniqueIndex:idx_addr_asset;index:idx_addr_status"`
	AssetID   int64  `gorm:"column:asset_id;not null;uniqueIndex:idx_addr_asset"`
	Available int64  `gorm:"column:available;not null;default:0"`
	Locked    int64  `gorm:"column:locked;not null;default:0"`
}

func (AddressBalance) TableName() string { return "address_balances" }

// Asset is an entry in the asset registry.
type Asset struct {
	AssetID     int64  `gorm:"column:asset_id;primaryKey;autoIncrement:false"`
	MetadataRaw string `gorm:"column:metadata_raw"`
	Decimals    int32  `gorm:"column:decimals;not null;default:8"`
	IsVerified  bool    `gorm:"column:is_verified;not null;default:false"`
	IsSpam      bool    `gorm:"column:is_spam;not null;default:false"`
	RateBeam    float64 `gorm:"column:rate_beam"`
	RateUSD     float64 `gorm:"column:rate_usd"`
	UpdatedAt   time.Time
}

func (Asset) TableName() string { return "assets" }

// NativeAssetID is the always-present native token, asset 0.
const NativeAssetID int64 = 0

// Transaction mirrors the node's view of one transaction, enriched with
// the reconciliation bookkeeping fields the projector owns.
type Transaction struct {
	TxID             string         `gorm:"column:tx_id;primaryKey"`
	Status           int            `gorm:"column:status;not null;index:idx_tx_status"`
	StatusString     string         `gorm:"column:status_string"`
	Income           bool           `gorm:"column:income;not null"`
	Type             int            `gorm:"column:type"`
	AssetID          int64          `gorm:"column:asset_id;not null"`
	Value            int64          `gorm:"column:value;not null"`
	Fee              int64          `gorm:"column:fee;not null;default:0"`
	Sender           string         `gorm:"column:sender;index:idx_tx_sender_receiver"`
	Receiver         string         `gorm:"column:receiver;index:idx_tx_sender_receiver"`
	SenderIdentity   string         `gorm:"column:sender_identity"`
	ReceiverIdentity string         `gorm:"column:receiver_identity"`
	Comment          string         `gorm:"column:comment"`
	CreateTime       int64          `gorm:"column:create_time;not null;index:idx_tx_create_time"`
	Confirmations    int            `gorm:"column:confirmations;not null;default:0"`
	Kernel           string         `gorm:"column:kernel"`
	FailureReason    string         `gorm:"column:failure_reason"`
	Success          bool           `gorm:"column:success;not null;default:false"`
	WebhookSent      datatypes.JSON `gorm:"column:webhook_sent"`
}

func (Transaction) TableName() string { return "transactions" }

// Withdrawal lifecycle states.
const (
	WithdrawalStatusPending       = "pending"
	WithdrawalStatusProcessing    = "processing"
	WithdrawalStatusSent          = "sent"
	WithdrawalStatusSentConfirmed = "sent_confirmed"
	WithdrawalStatusFailed        = "failed"
	WithdrawalStatusAdminCheck    = "admin_check"
)

// PendingWithdrawal is a user-requested outgoing transfer awaiting
// submission to the node.
type PendingWithdrawal struct {
	ID         uint    `gorm:"primaryKey"`
	Sender     string  `gorm:"column:sender;not null;index:idx_pw_sender_status"`
	Receiver   string  `gorm:"column:receiver;not null"`
	AssetID    int64   `gorm:"column:asset_id;not null"`
	Value      int64   `gorm:"column:value;not null"`
	Fee        int64   `gorm:"column:fee;not null"`
	Comment    string  `gorm:"column:comment"`
	CreateTime int64   `gorm:"column:create_time;not null;index:idx_pw_status_create_time"`
	Status     string  `gorm:"column:status;not null;default:pending;index:idx_pw_sender_status;index:idx_pw_status_create_time"`
	TxID       *string `gorm:"column:tx_id"`
}

func (PendingWithdrawal) TableName() string { return "pending_withdrawals" }

// FailedWebhook is a dead-lettered webhook delivery awaiting replay.
type FailedWebhook struct {
	ID          string         `gorm:"column:id;primaryKey"`
	URL         string         `gorm:"column:url;not null"`
	EventType   string         `gorm:"column:event_type;not null"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	LastAttempt time.Time      `gorm:"column:last_attempt"`
	Attempts    int            `gorm:"column:attempts;not null;default:0"`
}

func (FailedWebhook) TableName() string { return "failed_webhooks" }
