package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tx-guard-sol/internal/logic/core"
	"tx-guard-sol/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS guard_finding (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	tx_id        TEXT,
	pattern      TEXT NOT NULL,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	account      TEXT NOT NULL DEFAULT '',
	irreversible INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_guard_finding_tx ON guard_finding (tx_id);
CREATE INDEX IF NOT EXISTS idx_guard_finding_created ON guard_finding (created_at);
`

// Store 将发现项持久化到 sqlite，供看板与审计查询使用。
// 写入失败不影响校验结果，由调用方决定是否降级为日志。
type Store struct {
	db *sql.DB
}

// Open 打开（或创建）审计库并确保表结构就绪。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// InsertFindings 批量写入发现项，整批一个事务。
func (s *Store) InsertFindings(ctx context.Context, findings []core.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO guard_finding (tx_id, pattern, severity, message, account, irreversible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for i := range findings {
		f := &findings[i]
		account := ""
		if f.HasAccount() {
			account = f.Account.String()
		}
		irreversible := 0
		if f.Irreversible {
			irreversible = 1
		}
		if _, err := stmt.ExecContext(ctx, f.TxID, string(f.Pattern), string(f.Severity),
			f.Message, account, irreversible, f.CreatedAt); err != nil {
			return fmt.Errorf("insert finding %s: %w", f.Pattern, err)
		}
	}
	return tx.Commit()
}

// Recent 按时间倒序返回最近 limit 条发现项。
func (s *Store) Recent(ctx context.Context, limit int) ([]core.Finding, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, pattern, severity, message, account, irreversible, created_at
		FROM guard_finding ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent findings: %w", err)
	}
	defer rows.Close()

	var out []core.Finding
	for rows.Next() {
		var (
			f            core.Finding
			pattern      string
			severity     string
			account      string
			irreversible int
		)
		if err := rows.Scan(&f.TxID, &pattern, &severity, &f.Message, &account, &irreversible, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		f.Pattern = core.PatternID(pattern)
		f.Severity = core.Severity(severity)
		f.Irreversible = irreversible != 0
		if account != "" {
			if p, err := types.TryPubkeyFromBase58(account); err == nil {
				f.Account = p
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PurgeBefore 删除某时间点之前的记录，返回删除数量。
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guard_finding WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge findings: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
