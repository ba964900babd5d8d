package fulfillment

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pleyazul/oraculo-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByPaymentReference(reference string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("payment_reference = ?", reference).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

// ListOrders returns orders in insertion order, newest last, capped at limit.
func (d *Database) ListOrders(limit int) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Order("id asc").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) CreateReading(reading *types.Reading) error {
	return d.db.Create(reading).Error
}

func (d *Database) GetReadingByOrder(orderID string) (*types.Reading, error) {
	var reading types.Reading
	if err := d.db.Where("order_id = ?", orderID).First(&reading).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (d *Database) MarkReadingDelivered(orderID string, at time.Time) error {
	return d.db.Model(&types.Reading{}).
		Where("order_id = ?", orderID).
		Update("delivered_at", at).Error
}

// ListStaleAwaitingPayment returns orders still awaiting payment that were
// created before the cutoff. Used by the expiry processor.
func (d *Database) ListStaleAwaitingPayment(cutoff time.Time) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status = ? AND created_at < ?", types.OrderStatusAwaitingPayment, cutoff).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ExpireOrder fails an order only if it is still awaiting payment. The status
// predicate makes the update atomic against a concurrent confirmation: a
// payment that lands between listing and expiry leaves the row untouched and
// the update reports false.
func (d *Database) ExpireOrder(orderID string) (bool, error) {
	res := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, types.OrderStatusAwaitingPayment).
		Update("status", types.OrderStatusFailed)
	return res.RowsAffected > 0, res.Error
}
