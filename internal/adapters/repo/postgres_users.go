package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// Register создаёт пользователя, если его ещё нет. Существующая запись не меняется.
// Начальный статус записывается как есть, без проверки набора.
// Возвращает true, если пользователь был создан.
func (p *Postgres) Register(ctx context.Context, user domain.User) (bool, error) {
	db, err := p.handle()
	if err != nil {
		return false, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.Exec(ctx, `
INSERT INTO users (user_id, user_name, user_username, chat_type, language, status)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''))
ON CONFLICT (user_id) DO NOTHING
`, user.UserID, strings.TrimSpace(user.Name), strings.TrimSpace(user.Username), user.ChatType, user.Language, string(user.Status))
	metrics.ObserveNetworkRequest("postgres", "users_register", "users", start, err)
	if err != nil {
		return false, classify("register user", err)
	}
	return res.RowsAffected() > 0, nil
}

// Exists проверяет наличие пользователя.
func (p *Postgres) Exists(ctx context.Context, userID int64) (bool, error) {
	db, err := p.handle()
	if err != nil {
		return false, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err = db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "users_exists", "users", start, err)
	if err != nil {
		return false, classify("user exists", err)
	}
	return exists, nil
}

// Get возвращает пользователя целиком.
func (p *Postgres) Get(ctx context.Context, userID int64) (domain.User, error) {
	db, err := p.handle()
	if err != nil {
		return domain.User{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var row userRow
	start := time.Now()
	err = db.QueryRow(ctx, `
SELECT user_id, user_name, user_username, chat_type, language, status, captions
FROM users WHERE user_id = $1
`, userID).Scan(row.dest()...)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, ignoreNoRows(err))
	if err != nil {
		return domain.User{}, classify("get user", err)
	}
	return row.user(), nil
}

// SetStatus безусловно перезаписывает статус пользователя.
func (p *Postgres) SetStatus(ctx context.Context, userID int64, status domain.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status: %w: %q", domain.ErrInvalidStatus, string(status))
	}
	return p.execUser(ctx, "users_set_status", `UPDATE users SET status = NULLIF($2,'') WHERE user_id = $1`, userID, string(status))
}

// Remove удаляет пользователя.
func (p *Postgres) Remove(ctx context.Context, userID int64) error {
	return p.execUser(ctx, "users_delete", `DELETE FROM users WHERE user_id = $1`, userID)
}

// UpdateProfile перезаписывает имя и username.
func (p *Postgres) UpdateProfile(ctx context.Context, userID int64, name, username string) error {
	return p.execUser(ctx, "users_update_name", `UPDATE users SET user_name = NULLIF($2,''), user_username = NULLIF($3,'') WHERE user_id = $1`,
		userID, strings.TrimSpace(name), strings.TrimSpace(username))
}

// SetCaptions перезаписывает настройку подписей.
func (p *Postgres) SetCaptions(ctx context.Context, userID int64, value string) error {
	return p.execUser(ctx, "users_update_captions", `UPDATE users SET captions = $2 WHERE user_id = $1`, userID, value)
}

func (p *Postgres) execUser(ctx context.Context, op, query string, userID int64, args ...any) error {
	db, err := p.handle()
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.Exec(ctx, query, append([]any{userID}, args...)...)
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if err != nil {
		return classify(op, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

// Status возвращает статус пользователя. Значения из старых записей не валидируются.
func (p *Postgres) Status(ctx context.Context, userID int64) (domain.UserStatus, error) {
	db, err := p.handle()
	if err != nil {
		return domain.UserStatusUnset, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var status sql.NullString
	start := time.Now()
	err = db.QueryRow(ctx, `SELECT status FROM users WHERE user_id = $1`, userID).Scan(&status)
	metrics.ObserveNetworkRequest("postgres", "users_status", "users", start, ignoreNoRows(err))
	if err != nil {
		return domain.UserStatusUnset, classify("user status", err)
	}
	return domain.UserStatus(status.String), nil
}

// Captions возвращает настройку подписей.
func (p *Postgres) Captions(ctx context.Context, userID int64) (string, error) {
	db, err := p.handle()
	if err != nil {
		return "", err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var captions string
	start := time.Now()
	err = db.QueryRow(ctx, `SELECT captions FROM users WHERE user_id = $1`, userID).Scan(&captions)
	metrics.ObserveNetworkRequest("postgres", "users_captions", "users", start, ignoreNoRows(err))
	if err != nil {
		return "", classify("user captions", err)
	}
	return captions, nil
}

// Info возвращает имя, username и статус пользователя.
func (p *Postgres) Info(ctx context.Context, userID int64) (domain.UserInfo, error) {
	db, err := p.handle()
	if err != nil {
		return domain.UserInfo{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var name, username, status sql.NullString
	start := time.Now()
	err = db.QueryRow(ctx, `SELECT user_name, user_username, status FROM users WHERE user_id = $1`, userID).Scan(&name, &username, &status)
	metrics.ObserveNetworkRequest("postgres", "users_info", "users", start, ignoreNoRows(err))
	if err != nil {
		return domain.UserInfo{}, classify("user info", err)
	}
	return domain.UserInfo{
		UserID:   userID,
		Name:     name.String,
		Username: username.String,
		Status:   domain.UserStatus(status.String),
	}, nil
}

// InfoByUsername ищет пользователей по username. Уникальность не гарантируется схемой,
// поэтому возвращаются все совпадения.
func (p *Postgres) InfoByUsername(ctx context.Context, username string) ([]domain.UserInfo, error) {
	db, err := p.handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.Query(ctx, `SELECT user_name, user_id, status FROM users WHERE user_username = $1 ORDER BY user_id`, username)
	metrics.ObserveNetworkRequest("postgres", "users_info_by_username", "users", start, err)
	if err != nil {
		return nil, classify("user info by username", err)
	}
	defer rows.Close()
	var out []domain.UserInfo
	for rows.Next() {
		var (
			info         domain.UserInfo
			name, status sql.NullString
		)
		if err := rows.Scan(&name, &info.UserID, &status); err != nil {
			return nil, classify("scan user info", err)
		}
		info.Name = name.String
		info.Username = username
		info.Status = domain.UserStatus(status.String)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("user info by username", err)
	}
	return out, nil
}

// All возвращает всех пользователей для отчётов и рассылок.
func (p *Postgres) All(ctx context.Context) ([]domain.User, error) {
	db, err := p.handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.Query(ctx, `
SELECT user_id, user_name, user_username, chat_type, language, status, captions
FROM users ORDER BY user_id
`)
	metrics.ObserveNetworkRequest("postgres", "users_all", "users", start, err)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		var row userRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, row.user())
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

// Counts возвращает число всех, активных и прочих пользователей.
// Неактивными считаются все, чей статус не равен active, включая ban и пустой.
func (p *Postgres) Counts(ctx context.Context) (domain.UserCounts, error) {
	db, err := p.handle()
	if err != nil {
		return domain.UserCounts{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var counts domain.UserCounts
	start := time.Now()
	err = db.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'active'),
       COUNT(*) FILTER (WHERE status IS DISTINCT FROM 'active')
FROM users
`).Scan(&counts.Total, &counts.Active, &counts.Inactive)
	metrics.ObserveNetworkRequest("postgres", "users_counts", "users", start, err)
	if err != nil {
		return domain.UserCounts{}, classify("count users", err)
	}
	return counts, nil
}

type userRow struct {
	userID   int64
	name     sql.NullString
	username sql.NullString
	chatType sql.NullString
	language sql.NullString
	status   sql.NullString
	captions string
}

func (r *userRow) dest() []any {
	return []any{&r.userID, &r.name, &r.username, &r.chatType, &r.language, &r.status, &r.captions}
}

func (r *userRow) user() domain.User {
	return domain.User{
		UserID:   r.userID,
		Name:     r.name.String,
		Username: r.username.String,
		ChatType: r.chatType.String,
		Language: r.language.String,
		Status:   domain.UserStatus(r.status.String),
		Captions: r.captions,
	}
}
