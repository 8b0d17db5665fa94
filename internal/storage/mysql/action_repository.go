package mysql

import (
	"context"
	"database/sql"
	"sync"
	"time"

	xerrors "FlowPilot-Chain/internal/errors"
)

// ActionRecord 描述一次已结束（执行或取消）的确认类操作，用于审计回溯。
type ActionRecord struct {
	ID        int64  `json:"id"`
	ActionID  string `json:"action_id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Outcome   string `json:"outcome"`
	Params    string `json:"params"`
	TxHash    string `json:"tx_hash,omitempty"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	CreatedAt int64  `json:"created_at"`
}

// 操作结局枚举。
const (
	OutcomeExecuted  = "executed"
	OutcomeCancelled = "cancelled"
)

// ActionRepository 定义操作审计记录的存取接口。
type ActionRepository interface {
	Create(ctx context.Context, record *ActionRecord) error
	ListLatest(ctx context.Context, limit int) ([]*ActionRecord, error)
	Close() error
}

// SQLActionRepository 基于 MySQL 保存操作记录。
type SQLActionRepository struct {
	db *sql.DB
}

// NewSQLActionRepository 建立 MySQL 连接并准备数据表。
func NewSQLActionRepository(ctx context.Context, cfg Config) (*SQLActionRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化操作记录存储失败")
	}
	if err := ensureActionTable(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLActionRepository{db: db}, nil
}

// Create 写入一条操作记录。
func (r *SQLActionRepository) Create(ctx context.Context, record *ActionRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	const query = `INSERT INTO action_log
		(action_id, user_id, kind, outcome, params, tx_hash, message, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		record.ActionID, record.UserID, record.Kind, record.Outcome,
		record.Params, record.TxHash, record.Message, record.Success, record.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入操作记录失败")
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 按时间倒序返回最近的操作记录。
func (r *SQLActionRepository) ListLatest(ctx context.Context, limit int) ([]*ActionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, action_id, user_id, kind, outcome, params, tx_hash, message, success, created_at
		FROM action_log ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询操作记录失败")
	}
	defer rows.Close()

	records := make([]*ActionRecord, 0, limit)
	for rows.Next() {
		record := &ActionRecord{}
		if err := rows.Scan(&record.ID, &record.ActionID, &record.UserID, &record.Kind,
			&record.Outcome, &record.Params, &record.TxHash, &record.Message,
			&record.Success, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取操作记录失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历操作记录失败")
	}
	return records, nil
}

// Close 释放数据库连接。
func (r *SQLActionRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func ensureActionTable(ctx context.Context, db *sql.DB) error {
	const ddl = `CREATE TABLE IF NOT EXISTS action_log (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		action_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		params TEXT,
		tx_hash VARCHAR(128),
		message TEXT,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		INDEX idx_action_log_user (user_id),
		INDEX idx_action_log_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建操作记录表失败")
	}
	return nil
}

// MemoryActionRepository 以内存方式保存操作记录，用于测试与单机部署。
type MemoryActionRepository struct {
	mu      sync.RWMutex
	records []*ActionRecord
	nextID  int64
}

// NewMemoryActionRepository 创建内存操作记录存储。
func NewMemoryActionRepository() *MemoryActionRepository {
	return &MemoryActionRepository{nextID: 1}
}

// Create 实现 ActionRepository 接口。
func (m *MemoryActionRepository) Create(_ context.Context, record *ActionRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	record.ID = m.nextID
	m.nextID++
	clone := *record
	m.records = append(m.records, &clone)
	return nil
}

// ListLatest 实现 ActionRepository 接口。
func (m *MemoryActionRepository) ListLatest(_ context.Context, limit int) ([]*ActionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]*ActionRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(results) < limit; i-- {
		clone := *m.records[i]
		results = append(results, &clone)
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryActionRepository) Close() error {
	return nil
}

var (
	_ ActionRepository = (*SQLActionRepository)(nil)
	_ ActionRepository = (*MemoryActionRepository)(nil)
)
