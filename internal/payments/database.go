package payments

import (
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateTransaction appends a new audit record. Records are append-only;
// there is deliberately no update or delete path.
func (d *Database) CreateTransaction(txn *OrderTransaction) error {
	return d.db.Create(txn).Error
}

// CountTransactions counts prior attempts for the exact (order, method) pair.
func (d *Database) CountTransactions(orderNumber, method string) (int64, error) {
	var count int64
	if err := d.db.Model(&OrderTransaction{}).
		Where("order_number = ? AND method = ?", orderNumber, method).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// GetTransactionsForOrder retrieves all audit records for an order, newest
// first.
func (d *Database) GetTransactionsForOrder(orderNumber string) ([]OrderTransaction, error) {
	var txns []OrderTransaction
	if err := d.db.Where("order_number = ?", orderNumber).
		Order("date_created DESC, id DESC").
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txns, nil
}
