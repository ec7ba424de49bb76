// internal/service/inventory/infrastructure/gorm_store.go
package infrastructure

import (
	"context"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atlas/internal/pkg/apperr"
	"atlas/internal/service/inventory/domain"
)

// OpenDB 建立 MySQL 连接并迁移库存相关表。
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql")
	}
	if err := db.AutoMigrate(&InventoryItemModel{}, &InventoryReservationModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate inventory schema")
	}
	return db, nil
}

// GormStore 是 domain.Store 的 GORM 实现。
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

func (s *GormStore) GetStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	return getStockItem(s.db.WithContext(ctx), productID, false)
}

func (s *GormStore) GetReservationsByOrder(ctx context.Context, orderID int64) ([]domain.Reservation, error) {
	var models []InventoryReservationModel
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load reservations by order")
	}
	return toDomainReservations(models), nil
}

// gormTx 实现 domain.Tx。排他锁通过 clause.Locking 表达为 SELECT ... FOR UPDATE，
// 锁的持有范围就是外层事务。
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	return getStockItem(t.db.WithContext(ctx), productID, true)
}

func (t *gormTx) GetStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	return getStockItem(t.db.WithContext(ctx), productID, false)
}

func (t *gormTx) InsertStockItem(ctx context.Context, item *domain.StockItem) error {
	model := &InventoryItemModel{
		ProductID:        item.ProductID,
		TotalQuantity:    item.TotalQuantity,
		ReservedQuantity: item.ReservedQuantity,
	}
	if err := t.db.WithContext(ctx).Create(model).Error; err != nil {
		// product_id 是主键，并发首次建行时后到者会撞唯一键
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return apperr.Conflict("Inventory item already exists")
		}
		return errors.Wrap(err, "failed to insert inventory item")
	}
	item.CreatedAt = model.CreatedAt
	item.UpdatedAt = model.UpdatedAt
	return nil
}

func (t *gormTx) SetTotalQuantity(ctx context.Context, productID int64, total int) error {
	err := t.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("product_id = ?", productID).
		Update("total_quantity", total).Error
	return errors.Wrap(err, "failed to set total quantity")
}

func (t *gormTx) AddReservedQuantity(ctx context.Context, productID int64, delta int) error {
	err := t.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("product_id = ?", productID).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", delta)).Error
	return errors.Wrap(err, "failed to add reserved quantity")
}

func (t *gormTx) SubReservedQuantityClamped(ctx context.Context, productID int64, delta int) error {
	// 下钳到 0：防御外部数据修正造成的漂移，正常路径不会走到 ELSE 分支
	err := t.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("product_id = ?", productID).
		Update("reserved_quantity", gorm.Expr(
			"CASE WHEN reserved_quantity >= ? THEN reserved_quantity - ? ELSE 0 END", delta, delta)).Error
	return errors.Wrap(err, "failed to subtract reserved quantity")
}

func (t *gormTx) ConsumeStock(ctx context.Context, productID int64, quantity int) error {
	err := t.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"total_quantity":    gorm.Expr("total_quantity - ?", quantity),
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", quantity),
		}).Error
	return errors.Wrap(err, "failed to consume stock")
}

func (t *gormTx) LockActiveReservation(ctx context.Context, orderID, productID int64) (*domain.Reservation, error) {
	var model InventoryReservationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND product_id = ? AND status = ?", orderID, productID, string(domain.StatusActive)).
		Limit(1).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock active reservation")
	}
	return toDomainReservation(&model), nil
}

func (t *gormTx) LockActiveReservationsByOrder(ctx context.Context, orderID int64) ([]domain.Reservation, error) {
	var models []InventoryReservationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status = ?", orderID, string(domain.StatusActive)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock active reservations by order")
	}
	return toDomainReservations(models), nil
}

func (t *gormTx) LockReservation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	var model InventoryReservationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", reservationID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock reservation")
	}
	return toDomainReservation(&model), nil
}

func (t *gormTx) LockExpiredActiveReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	var models []InventoryReservationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", string(domain.StatusActive), now).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock expired reservations")
	}
	return toDomainReservations(models), nil
}

func (t *gormTx) InsertReservation(ctx context.Context, reservation *domain.Reservation) error {
	model := &InventoryReservationModel{
		OrderID:   reservation.OrderID,
		ProductID: reservation.ProductID,
		Quantity:  reservation.Quantity,
		Status:    string(reservation.Status),
		ExpiresAt: reservation.ExpiresAt,
	}
	if err := t.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "failed to insert reservation")
	}
	reservation.ID = model.ID
	reservation.CreatedAt = model.CreatedAt
	reservation.UpdatedAt = model.UpdatedAt
	return nil
}

func (t *gormTx) FinishReservations(ctx context.Context, ids []int64, status domain.ReservationStatus, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).
		Model(&InventoryReservationModel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":         string(status),
			"release_reason": reason,
		}).Error
	return errors.Wrap(err, "failed to finish reservations")
}

func getStockItem(db *gorm.DB, productID int64, forUpdate bool) (*domain.StockItem, error) {
	query := db
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model InventoryItemModel
	err := query.Where("product_id = ?", productID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load inventory item")
	}
	return toDomainStockItem(&model), nil
}
