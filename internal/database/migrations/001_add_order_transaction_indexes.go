package migrations

import (
	"gorm.io/gorm"
)

// AddOrderTransactionIndexes creates the indexes backing reference counting
// and audit listing.
func AddOrderTransactionIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for the (order, method) count used by
		// merchant reference generation
		`CREATE INDEX IF NOT EXISTS idx_order_transactions_order_method
		 ON order_transactions(order_number, method)`,

		// Index for newest-first audit listing
		`CREATE INDEX IF NOT EXISTS idx_order_transactions_date_created
		 ON order_transactions(date_created)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
