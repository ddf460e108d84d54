package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"nft_market/internal/event"
	"nft_market/internal/ledger"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const keyAppliedSeq = "applied_seq"

// accountRow is one ledger account.
type accountRow struct {
	Address    string `gorm:"primaryKey"`
	Owner      string `gorm:"index;not null"`
	Lamports   uint64 `gorm:"not null"`
	Data       []byte
	UpdatedSeq uint64 `gorm:"not null"`
}

func (accountRow) TableName() string { return "accounts" }

// instructionRow is one WAL entry.
type instructionRow struct {
	Seq     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Type    uint16 `gorm:"not null"`
	Ts      int64  `gorm:"not null"`
	Signers string `gorm:"not null"`
	Payload []byte `gorm:"not null"`
}

func (instructionRow) TableName() string { return "instructions" }

type metadataRow struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt int64  `gorm:"not null"`
}

func (metadataRow) TableName() string { return "metadata" }

// Storage is the SQLite account database and instruction WAL.
// It implements ledger.Store.
type Storage struct {
	db *gorm.DB
}

var _ ledger.Store = (*Storage)(nil)

// NewStorage opens (or creates) the database at dbPath.
// An empty dbPath resolves to the per-user data directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// Auto Migration
	if err := db.AutoMigrate(&accountRow{}, &instructionRow{}, &metadataRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// DefaultDBPath resolves the database file path based on OS
func DefaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "NftMarket", "data", "market.db"), nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Account Operations
// ======================================================================================

func toRow(a *ledger.Account, seq uint64) accountRow {
	return accountRow{
		Address:    a.Address.String(),
		Owner:      a.Owner.String(),
		Lamports:   a.Lamports,
		Data:       a.Data,
		UpdatedSeq: seq,
	}
}

func fromRow(r *accountRow) (*ledger.Account, error) {
	addr, err := solana.PublicKeyFromBase58(r.Address)
	if err != nil {
		return nil, fmt.Errorf("corrupt address %q: %w", r.Address, err)
	}
	owner, err := solana.PublicKeyFromBase58(r.Owner)
	if err != nil {
		return nil, fmt.Errorf("corrupt owner of %s: %w", r.Address, err)
	}
	return &ledger.Account{Address: addr, Owner: owner, Lamports: r.Lamports, Data: r.Data}, nil
}

// Get retrieves an account by address.
func (s *Storage) Get(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).First(&row, "address = ?", addr.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

// Apply writes a committed batch and records its sequence, atomically.
func (s *Storage) Apply(ctx context.Context, batch *ledger.Batch) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range batch.Puts {
			row := toRow(a, batch.Seq)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to write account %s: %w", a.Address, err)
			}
		}
		if len(batch.Deletes) > 0 {
			keys := make([]string, len(batch.Deletes))
			for i, k := range batch.Deletes {
				keys[i] = k.String()
			}
			if err := tx.Where("address IN ?", keys).Delete(&accountRow{}).Error; err != nil {
				return fmt.Errorf("failed to delete accounts: %w", err)
			}
		}
		return upsertMetadata(tx, keyAppliedSeq, strconv.FormatUint(batch.Seq, 10))
	})
}

// AppliedSeq returns the sequence of the last applied batch.
func (s *Storage) AppliedSeq(ctx context.Context) (uint64, error) {
	v, err := s.GetMetadata(ctx, keyAppliedSeq)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// Accounts retrieves all accounts ordered by address.
func (s *Storage) Accounts(ctx context.Context) ([]*ledger.Account, error) {
	return s.findAccounts(s.db.WithContext(ctx).Order("address"))
}

// AccountsByOwner retrieves the accounts owned by a program.
func (s *Storage) AccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]*ledger.Account, error) {
	return s.findAccounts(s.db.WithContext(ctx).Where("owner = ?", owner.String()).Order("address"))
}

func (s *Storage) findAccounts(q *gorm.DB) ([]*ledger.Account, error) {
	var rows []accountRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ledger.Account, 0, len(rows))
	for i := range rows {
		a, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Restore replaces every account with a snapshot taken at seq.
func (s *Storage) Restore(ctx context.Context, accounts []*ledger.Account, seq uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&accountRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear accounts: %w", err)
		}
		if len(accounts) > 0 {
			rows := make([]accountRow, len(accounts))
			for i, a := range accounts {
				rows[i] = toRow(a, seq)
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("failed to restore accounts: %w", err)
			}
		}
		return upsertMetadata(tx, keyAppliedSeq, strconv.FormatUint(seq, 10))
	})
}

// ======================================================================================
// WAL Operations
// ======================================================================================

func joinKeys(keys []solana.PublicKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

func splitKeys(s string) ([]solana.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	keys := make([]solana.PublicKey, len(parts))
	for i, p := range parts {
		k, err := solana.PublicKeyFromBase58(p)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// Append stores a sequenced instruction in the WAL.
func (s *Storage) Append(ctx context.Context, rec event.Record) error {
	payload, err := event.Encode(rec.Ix)
	if err != nil {
		return err
	}
	row := instructionRow{
		Seq:     rec.Seq,
		Type:    uint16(rec.GetType()),
		Ts:      rec.Ts,
		Signers: joinKeys(rec.Signers),
		Payload: payload,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert instruction %d: %w", rec.Seq, err)
	}
	return nil
}

// LastSeq returns the highest sequence number stored in the WAL.
// Returns 0 if no instructions exist.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.WithContext(ctx).Model(&instructionRow{}).Select("MAX(seq)").Row().Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil // No instructions yet
	}
	return uint64(lastSeq.Int64), nil
}

// LoadRecords loads WAL entries from fromSeq (inclusive) in order.
func (s *Storage) LoadRecords(ctx context.Context, fromSeq uint64) ([]event.Record, error) {
	var rows []instructionRow
	err := s.db.WithContext(ctx).Where("seq >= ?", fromSeq).Order("seq ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query instructions: %w", err)
	}

	records := make([]event.Record, 0, len(rows))
	for _, row := range rows {
		ix, err := event.Decode(event.Type(row.Type), row.Payload)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", row.Seq, err)
		}
		signers, err := splitKeys(row.Signers)
		if err != nil {
			return nil, fmt.Errorf("instruction %d signers: %w", row.Seq, err)
		}
		records = append(records, event.Record{Seq: row.Seq, Ts: row.Ts, Signers: signers, Ix: ix})
	}
	return records, nil
}

// ======================================================================================
// Metadata Operations
// ======================================================================================

func upsertMetadata(tx *gorm.DB, key, value string) error {
	row := metadataRow{Key: key, Value: value, UpdatedAt: time.Now().Unix()}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// UpsertMetadata saves a key-value pair.
func (s *Storage) UpsertMetadata(ctx context.Context, key, value string) error {
	return upsertMetadata(s.db.WithContext(ctx), key, value)
}

// GetMetadata retrieves a value, "" if the key is unset.
func (s *Storage) GetMetadata(ctx context.Context, key string) (string, error) {
	var row metadataRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.Value, err
}
