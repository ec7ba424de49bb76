// internal/service/order/infrastructure/gorm_store.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atlas/internal/service/order/domain"
)

// OpenDB 建立 MySQL 连接并迁移订单相关表。
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql")
	}
	if err := db.AutoMigrate(&OrderModel{}, &OrderItemModel{}, &OrderUserModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate order schema")
	}
	return db, nil
}

// GormStore 是订单域 domain.Store 的 GORM 实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var model OrderModel
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load order")
	}
	return toDomainOrder(&model), nil
}

func (s *GormStore) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	var models []OrderModel
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders by user")
	}
	orders := make([]domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, *toDomainOrder(&models[i]))
	}
	return orders, nil
}

func (s *GormStore) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check order existence")
	}
	return count > 0, nil
}

func (s *GormStore) UpsertUser(ctx context.Context, user domain.User) error {
	return upsertUser(s.db.WithContext(ctx), user)
}

// gormTx 实现订单域 domain.Tx，排它锁通过 clause.Locking 表达。
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	model := &OrderModel{
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CancelledAt: order.CancelledAt,
	}
	if err := t.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "failed to insert order")
	}
	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

func (t *gormTx) InsertOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]OrderItemModel, len(items))
	for i, item := range items {
		models[i] = OrderItemModel{
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			Currency:    item.Currency,
		}
	}
	if err := t.db.WithContext(ctx).Create(&models).Error; err != nil {
		return errors.Wrap(err, "failed to insert order items")
	}
	return nil
}

func (t *gormTx) LockOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var model OrderModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock order")
	}
	return toDomainOrder(&model), nil
}

func (t *gormTx) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	err := t.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":       string(order.Status),
			"cancelled_at": order.CancelledAt,
		}).Error
	return errors.Wrap(err, "failed to update order status")
}

func (t *gormTx) UpsertUser(ctx context.Context, user domain.User) error {
	return upsertUser(t.db.WithContext(ctx), user)
}

func upsertUser(db *gorm.DB, user domain.User) error {
	model := OrderUserModel{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}
	// 下单路径只带 id/role，不能把用户事件流写入的资料字段冲掉
	columns := []string{"role", "updated_at"}
	if user.Email != "" {
		columns = append(columns, "email")
	}
	if user.Name != "" {
		columns = append(columns, "name")
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&model).Error
	return errors.Wrap(err, "failed to upsert order user")
}
