// Package storage provides the SQLite persistence layer. All shared state
// lives here; the services above it are stateless.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pairledger/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User, passwordHash string) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, photo_url, couple_id, created_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		u.ID, u.Name, u.Email, passwordHash, u.PhotoURL, u.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, photo_url, couple_id, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail returns the user and their password hash for login checks.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, string, error) {
	var (
		u         core.User
		coupleID  sql.NullString
		createdAt int64
		hash      string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, photo_url, couple_id, created_at, password_hash
		 FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PhotoURL, &coupleID, &createdAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user by email: %w", err)
	}
	if coupleID.Valid {
		u.CoupleID = &coupleID.String
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, hash, nil
}

func scanUser(row *sql.Row) (*core.User, error) {
	var (
		u         core.User
		coupleID  sql.NullString
		createdAt int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhotoURL, &coupleID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if coupleID.Valid {
		u.CoupleID = &coupleID.String
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// --- push tokens ---

// AddPushToken registers a device token for a user. Re-registering the
// same token is a no-op (set semantics).
func (r *SQLiteRepository) AddPushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO push_tokens (user_id, token, created_at) VALUES (?, ?, ?)`,
		userID, token, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert push token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemovePushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM push_tokens WHERE user_id = ? AND token = ?`, userID, token)
	if err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	return nil
}

// ListPushTokens collects the registered tokens for all given users.
func (r *SQLiteRepository) ListPushTokens(ctx context.Context, userIDs []string) ([]string, error) {
	var tokens []string
	for _, id := range userIDs {
		rows, err := r.db.QueryContext(ctx,
			`SELECT token FROM push_tokens WHERE user_id = ? ORDER BY created_at`, id)
		if err != nil {
			return nil, fmt.Errorf("query push tokens: %w", err)
		}
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan push token: %w", err)
			}
			tokens = append(tokens, t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate push tokens: %w", err)
		}
		rows.Close()
	}
	return tokens, nil
}

// --- couples ---

// CreateCouple inserts the couple and binds the creating user's couple_id
// in one transaction. Fails with core.ErrAlreadyPaired when the creator is
// already bound to a couple.
func (r *SQLiteRepository) CreateCouple(ctx context.Context, c *core.Couple) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO couples (id, partner_a_id, partner_a_name, partner_a_photo, join_code,
		                      total_a_cents, total_b_cents, net_balance_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?)`,
		c.ID, c.PartnerA.UserID, c.PartnerA.DisplayName, c.PartnerA.PhotoURL,
		c.JoinCode, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert couple: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET couple_id = ? WHERE id = ? AND couple_id IS NULL`,
		c.ID, c.PartnerA.UserID)
	if err != nil {
		return fmt.Errorf("bind creator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", c.PartnerA.UserID, core.ErrAlreadyPaired)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Couple created", "couple_id", c.ID, "partner_a", c.PartnerA.UserID)
	return nil
}

func (r *SQLiteRepository) GetCouple(ctx context.Context, id string) (*core.Couple, error) {
	row := r.db.QueryRowContext(ctx, selectCouple+` WHERE id = ?`, id)
	c, err := scanCouple(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("couple %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get couple: %w", err)
	}
	return c, nil
}

// FindCoupleByJoinCode resolves a join code, preferring a couple whose
// second slot is still open when a redeemed code was reissued.
func (r *SQLiteRepository) FindCoupleByJoinCode(ctx context.Context, code string) (*core.Couple, error) {
	row := r.db.QueryRowContext(ctx,
		selectCouple+` WHERE join_code = ? ORDER BY (partner_b_id IS NULL) DESC, created_at LIMIT 1`, code)
	c, err := scanCouple(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("find couple by join code: %w", err)
	}
	return c, nil
}

// JoinCodeActive reports whether a code is still redeemable, used to
// collision-check freshly generated codes.
func (r *SQLiteRepository) JoinCodeActive(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM couples WHERE join_code = ? AND partner_b_id IS NULL`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check join code: %w", err)
	}
	return n > 0, nil
}

// BindPartner fills the couple's second slot and the joining user's
// couple_id in one transaction. The conditional update on partner_b_id
// serializes racing joins: exactly one wins, the loser observes the bound
// slot. Re-binding the same user is an idempotent no-op.
func (r *SQLiteRepository) BindPartner(ctx context.Context, coupleID string, partner core.PartnerRef) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE couples
		 SET partner_b_id = ?, partner_b_name = ?, partner_b_photo = ?
		 WHERE id = ? AND partner_b_id IS NULL AND partner_a_id != ?`,
		partner.UserID, partner.DisplayName, partner.PhotoURL, coupleID, partner.UserID)
	if err != nil {
		return fmt.Errorf("bind partner: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		var partnerA string
		var partnerB sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT partner_a_id, partner_b_id FROM couples WHERE id = ?`, coupleID).
			Scan(&partnerA, &partnerB)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("couple %s: %w", coupleID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("inspect couple: %w", err)
		}
		switch {
		case partnerB.Valid && partnerB.String == partner.UserID:
			// already joined by this user
			return nil
		case partnerA == partner.UserID:
			return fmt.Errorf("user %s created this couple: %w", partner.UserID, core.ErrAlreadyPaired)
		default:
			return core.ErrCodeAlreadyUsed
		}
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE users SET couple_id = ? WHERE id = ? AND couple_id IS NULL`,
		coupleID, partner.UserID)
	if err != nil {
		return fmt.Errorf("bind user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", partner.UserID, core.ErrAlreadyPaired)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Partner joined couple", "couple_id", coupleID, "partner_b", partner.UserID)
	return nil
}

// UpdateCoupleStatus overwrites the derived status columns, leaving the
// rest of the couple row untouched (merge-write).
func (r *SQLiteRepository) UpdateCoupleStatus(ctx context.Context, coupleID string, status core.CoupleStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE couples
		 SET total_a_cents = ?, total_b_cents = ?, net_balance_cents = ?, status_updated_at = ?
		 WHERE id = ?`,
		status.TotalA.Cents, status.TotalB.Cents, status.NetBalance.Cents,
		status.LastUpdated.Unix(), coupleID)
	if err != nil {
		return fmt.Errorf("update couple status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("couple %s: %w", coupleID, core.ErrNotFound)
	}
	return nil
}

const selectCouple = `SELECT id, partner_a_id, partner_a_name, partner_a_photo,
       partner_b_id, partner_b_name, partner_b_photo, join_code,
       total_a_cents, total_b_cents, net_balance_cents, status_updated_at, created_at
FROM couples`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCouple(row rowScanner) (*core.Couple, error) {
	var (
		c                core.Couple
		bID, bName, bPic sql.NullString
		statusUpdated    sql.NullInt64
		createdAt        int64
	)
	err := row.Scan(
		&c.ID, &c.PartnerA.UserID, &c.PartnerA.DisplayName, &c.PartnerA.PhotoURL,
		&bID, &bName, &bPic, &c.JoinCode,
		&c.Status.TotalA.Cents, &c.Status.TotalB.Cents, &c.Status.NetBalance.Cents,
		&statusUpdated, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if bID.Valid {
		c.PartnerB = &core.PartnerRef{
			UserID:      bID.String,
			DisplayName: bName.String,
			PhotoURL:    bPic.String,
		}
	}
	if statusUpdated.Valid {
		c.Status.LastUpdated = time.Unix(statusUpdated.Int64, 0)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// --- expenses ---

func (r *SQLiteRepository) AppendExpense(ctx context.Context, e *core.Expense) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, couple_id, amount_cents, category, paid_by, note, emoji, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CoupleID, e.Amount.Cents, e.Category, e.PaidBy, e.Note, e.Emoji,
		e.Timestamp.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"couple_id", e.CoupleID,
		"amount_cents", e.Amount.Cents,
		"paid_by", e.PaidBy)
	return nil
}

// ListExpenses returns the couple's expenses with timestamps inside
// [start, end), newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, coupleID string, start, end time.Time) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, couple_id, amount_cents, category, paid_by, note, emoji, timestamp
		 FROM expenses
		 WHERE couple_id = ? AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp DESC`,
		coupleID, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e  core.Expense
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.CoupleID, &e.Amount.Cents, &e.Category,
			&e.PaidBy, &e.Note, &e.Emoji, &ts); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// SumExpensesByPayer aggregates period amounts grouped by payer id.
func (r *SQLiteRepository) SumExpensesByPayer(ctx context.Context, coupleID string, start, end time.Time) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT paid_by, SUM(amount_cents)
		 FROM expenses
		 WHERE couple_id = ? AND timestamp >= ? AND timestamp < ?
		 GROUP BY paid_by`,
		coupleID, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var payer string
		var total int64
		if err := rows.Scan(&payer, &total); err != nil {
			return nil, fmt.Errorf("scan payer sum: %w", err)
		}
		sums[payer] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payer sums: %w", err)
	}
	return sums, nil
}

// CouplesWithExpensesSince lists couples that had ledger activity after
// the cutoff. The worker sweeps these to heal missed reconciliations.
func (r *SQLiteRepository) CouplesWithExpensesSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT couple_id FROM expenses WHERE created_at >= ? LIMIT ?`,
		since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("query active couples: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan couple id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active couples: %w", err)
	}
	return ids, nil
}
