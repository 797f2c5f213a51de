package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建 SQL 数据库存储并执行自动迁移。
//
// MySQL DSN 需包含 parseTime=true&loc=UTC。
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	switch driverName {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		dialector = mysql.New(mysql.Config{Conn: db})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	db, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.AccessCode{},
		&domain.Mailbox{},
		&domain.Message{},
		&domain.AdminUser{},
	)
}

// translate 将驱动错误映射为存储层错误
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if isDuplicateKey(err) {
		return storage.ErrDuplicateKey
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// CreateAccessCode 保存访问码
func (s *Store) CreateAccessCode(ctx context.Context, code *domain.AccessCode) error {
	return translate(s.gormDB.WithContext(ctx).Create(code).Error)
}

// GetAccessCodeByCode 按访问码查找
func (s *Store) GetAccessCodeByCode(ctx context.Context, code string) (*domain.AccessCode, error) {
	var out domain.AccessCode
	if err := s.gormDB.WithContext(ctx).Where("code = ?", code).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// MarkAccessCodeUsed 条件更新 used=false -> true，RowsAffected 为 0 表示已被他人兑换
func (s *Store) MarkAccessCodeUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	result := s.gormDB.WithContext(ctx).
		Model(&domain.AccessCode{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]interface{}{"used": true, "used_at": usedAt})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListAccessCodes 按创建时间倒序列出访问码
func (s *Store) ListAccessCodes(ctx context.Context) ([]domain.AccessCode, error) {
	codes := make([]domain.AccessCode, 0)
	err := s.gormDB.WithContext(ctx).Order("created_at DESC").Order("id ASC").Find(&codes).Error
	return codes, err
}

// DeleteAccessCode 删除访问码
func (s *Store) DeleteAccessCode(ctx context.Context, id string) error {
	result := s.gormDB.WithContext(ctx).Where("id = ?", id).Delete(&domain.AccessCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountAccessCodes 按条件计数
func (s *Store) CountAccessCodes(ctx context.Context, q storage.CodeQuery) (int64, error) {
	tx := s.gormDB.WithContext(ctx).Model(&domain.AccessCode{})
	if q.Used != nil {
		tx = tx.Where("used = ?", *q.Used)
	}
	if q.ExpiresBefore != nil {
		tx = tx.Where("expires_at < ?", *q.ExpiresBefore)
	}
	var n int64
	err := tx.Count(&n).Error
	return n, err
}

// CreateMailbox 保存邮箱
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	return translate(s.gormDB.WithContext(ctx).Create(mailbox).Error)
}

// GetMailboxByAddress 按地址查找邮箱
func (s *Store) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	var out domain.Mailbox
	if err := s.gormDB.WithContext(ctx).Where("address = ?", address).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// ListMailboxesBySession 列出会话的全部邮箱
func (s *Store) ListMailboxesBySession(ctx context.Context, sessionID string) ([]domain.Mailbox, error) {
	mailboxes := make([]domain.Mailbox, 0)
	err := s.gormDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&mailboxes).Error
	return mailboxes, err
}

// CountMailboxes 邮箱总数
func (s *Store) CountMailboxes(ctx context.Context) (int64, error) {
	var n int64
	err := s.gormDB.WithContext(ctx).Model(&domain.Mailbox{}).Count(&n).Error
	return n, err
}

// CreateMessage 保存邮件
func (s *Store) CreateMessage(ctx context.Context, message *domain.Message) error {
	return translate(s.gormDB.WithContext(ctx).Create(message).Error)
}

// GetMessage 按 ID 获取邮件
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var out domain.Message
	if err := s.gormDB.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// ListMessagesByAddresses 列出投递到任一地址的邮件，最新的在前
func (s *Store) ListMessagesByAddresses(ctx context.Context, addresses []string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	if len(addresses) == 0 {
		return messages, nil
	}
	err := s.gormDB.WithContext(ctx).
		Where("to_address IN ?", addresses).
		Order("received_at DESC").Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// MarkMessageRead 标记已读
func (s *Store) MarkMessageRead(ctx context.Context, id string) error {
	var count int64
	tx := s.gormDB.WithContext(ctx)
	if err := tx.Model(&domain.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return tx.Model(&domain.Message{}).Where("id = ?", id).Update("is_read", true).Error
}

// DeleteMessage 删除邮件
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result := s.gormDB.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountMessages 邮件总数
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.gormDB.WithContext(ctx).Model(&domain.Message{}).Count(&n).Error
	return n, err
}

// CreateAdminUser 保存管理员
func (s *Store) CreateAdminUser(ctx context.Context, admin *domain.AdminUser) error {
	return translate(s.gormDB.WithContext(ctx).Create(admin).Error)
}

// GetAdminUserByUsername 按用户名查找管理员
func (s *Store) GetAdminUserByUsername(ctx context.Context, username string) (*domain.AdminUser, error) {
	var out domain.AdminUser
	if err := s.gormDB.WithContext(ctx).Where("username = ?", username).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// UpdateAdminPassword 更新管理员密码哈希
func (s *Store) UpdateAdminPassword(ctx context.Context, id, passwordHash string) error {
	result := s.gormDB.WithContext(ctx).Model(&domain.AdminUser{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// truncate 清空全部业务表，仅供测试使用
func (s *Store) truncate(ctx context.Context) error {
	for _, model := range []interface{}{&domain.Message{}, &domain.Mailbox{}, &domain.AccessCode{}, &domain.AdminUser{}} {
		if err := s.gormDB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
