// Package sqlite is the default store.Store driver, backed by the pure-Go
// modernc.org/sqlite engine.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"shaneshark.com/portfolio/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS qa_info (
	id          INTEGER PRIMARY KEY,
	question    TEXT    NOT NULL,
	answer      TEXT    NOT NULL,
	tag         TEXT    NOT NULL DEFAULT '',
	is_hot      INTEGER NOT NULL DEFAULT 0,
	view_count  INTEGER NOT NULL DEFAULT 0,
	create_time INTEGER NOT NULL,
	update_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_qa_info_tag ON qa_info(tag);
CREATE INDEX IF NOT EXISTS idx_qa_info_is_hot ON qa_info(is_hot);
CREATE INDEX IF NOT EXISTS idx_qa_info_create_time ON qa_info(create_time);

CREATE TABLE IF NOT EXISTS "user" (
	id            INTEGER PRIMARY KEY,
	account       TEXT    NOT NULL UNIQUE,
	email         TEXT,
	phone         TEXT,
	password_hash TEXT    NOT NULL,
	role          TEXT    NOT NULL DEFAULT 'user',
	create_time   INTEGER NOT NULL,
	update_time   INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_user_email ON "user"(email);

CREATE TABLE IF NOT EXISTS verification_code (
	id          INTEGER PRIMARY KEY,
	account     TEXT    NOT NULL,
	code        TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	status      INTEGER NOT NULL DEFAULT 0,
	expire_time INTEGER NOT NULL,
	create_time INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_code_account ON verification_code(account, status);
`

// Store implements store.Store on a single SQLite file
type Store struct {
	db   *sql.DB
	path string
	ids  *store.IDGenerator
}

var _ store.Store = (*Store)(nil)

// Open creates the parent directory and schema when missing
func Open(path string, ids *store.IDGenerator) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time, sqlite serialises them anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, ids: ids}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store ready")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

const qaColumns = "id, question, answer, tag, is_hot, view_count, create_time, update_time"

func scanQa(row interface{ Scan(...any) error }) (store.QaInfo, error) {
	var (
		qa               store.QaInfo
		created, updated int64
	)
	err := row.Scan(&qa.ID, &qa.Question, &qa.Answer, &qa.Tag, &qa.IsHot, &qa.ViewCount, &created, &updated)
	qa.CreateTime = time.UnixMilli(created)
	qa.UpdateTime = time.UnixMilli(updated)
	return qa, err
}

// ListQa returns one page of entries, newest first
func (s *Store) ListQa(ctx context.Context, q store.QaQuery) (store.Page[store.QaInfo], error) {
	var (
		where []string
		args  []any
	)
	if q.Tag != "" {
		where = append(where, "tag = ?")
		args = append(args, q.Tag)
	}
	if q.IsHot != nil {
		where = append(where, "is_hot = ?")
		args = append(args, *q.IsHot)
	}
	if q.Keyword != "" {
		where = append(where, `question LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Keyword)+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qa_info"+clause, args...).Scan(&total); err != nil {
		return store.Page[store.QaInfo]{}, fmt.Errorf("count qa: %w", err)
	}

	query := "SELECT " + qaColumns + " FROM qa_info" + clause + " ORDER BY create_time DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return store.Page[store.QaInfo]{}, fmt.Errorf("list qa: %w", err)
	}
	defer rows.Close()

	var records []store.QaInfo
	for rows.Next() {
		qa, err := scanQa(rows)
		if err != nil {
			return store.Page[store.QaInfo]{}, fmt.Errorf("scan qa: %w", err)
		}
		records = append(records, qa)
	}
	if err := rows.Err(); err != nil {
		return store.Page[store.QaInfo]{}, fmt.Errorf("list qa: %w", err)
	}

	return store.NewPage(records, total, q.Current, q.PageSize), nil
}

func (s *Store) ListHotQa(ctx context.Context) ([]store.QaInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+qaColumns+" FROM qa_info WHERE is_hot = 1 ORDER BY create_time DESC")
	if err != nil {
		return nil, fmt.Errorf("list hot qa: %w", err)
	}
	defer rows.Close()

	var out []store.QaInfo
	for rows.Next() {
		qa, err := scanQa(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qa: %w", err)
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

func (s *Store) GetQa(ctx context.Context, id store.ID) (*store.QaInfo, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+qaColumns+" FROM qa_info WHERE id = ?", id)
	qa, err := scanQa(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get qa %d: %w", id, err)
	}
	return &qa, nil
}

func (s *Store) IncrementQaViews(ctx context.Context, id store.ID) error {
	res, err := s.db.ExecContext(ctx, "UPDATE qa_info SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment views %d: %w", id, err)
	}
	return expectOneRow(res)
}

// CreateQa assigns an id when the caller left it zero
func (s *Store) CreateQa(ctx context.Context, qa *store.QaInfo) error {
	if qa.ID == 0 {
		qa.ID = s.ids.Next()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO qa_info ("+qaColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		qa.ID, qa.Question, qa.Answer, qa.Tag, qa.IsHot, qa.ViewCount,
		qa.CreateTime.UnixMilli(), qa.UpdateTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert qa: %w", err)
	}
	return nil
}

func (s *Store) UpdateQa(ctx context.Context, qa *store.QaInfo) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE qa_info SET question = ?, answer = ?, tag = ?, is_hot = ?, update_time = ? WHERE id = ?",
		qa.Question, qa.Answer, qa.Tag, qa.IsHot, qa.UpdateTime.UnixMilli(), qa.ID)
	if err != nil {
		return fmt.Errorf("update qa %d: %w", qa.ID, err)
	}
	return expectOneRow(res)
}

func (s *Store) DeleteQa(ctx context.Context, id store.ID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM qa_info WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete qa %d: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var (
		u                store.User
		mail, phone      sql.NullString
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account, email, phone, password_hash, role, create_time, update_time FROM "user" WHERE email = ?`, email).
		Scan(&u.ID, &u.Account, &mail, &phone, &u.PasswordHash, &u.Role, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Email = mail.String
	u.Phone = phone.String
	u.CreateTime = time.UnixMilli(created)
	u.UpdateTime = time.UnixMilli(updated)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	if u.ID == 0 {
		u.ID = s.ids.Next()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO "user" (id, account, email, phone, password_hash, role, create_time, update_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Account, nullable(u.Email), nullable(u.Phone), u.PasswordHash, u.Role,
		u.CreateTime.UnixMilli(), u.UpdateTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUserRole(ctx context.Context, email, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE "user" SET role = ?, update_time = ? WHERE email = ?`,
		role, time.Now().UnixMilli(), email)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) SaveVerificationCode(ctx context.Context, c *store.VerificationCode) error {
	if c.ID == 0 {
		c.ID = s.ids.Next()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO verification_code (id, account, code, type, status, expire_time, create_time) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Account, c.Code, c.Type, c.Status, c.ExpireTime.UnixMilli(), c.CreateTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert verification code: %w", err)
	}
	return nil
}

// ConsumeVerificationCode flips the newest matching code to used in one statement
func (s *Store) ConsumeVerificationCode(ctx context.Context, account, code string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_code SET status = ?
		WHERE status = ? AND id = (
			SELECT id FROM verification_code
			WHERE account = ? AND code = ? AND status = ? AND expire_time > ?
			ORDER BY create_time DESC, id DESC LIMIT 1
		)`,
		store.CodeUsed, store.CodeUnused, account, code, store.CodeUnused, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
