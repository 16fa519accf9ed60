package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/pkg/config"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.StockLedger{},
		&models.Reservation{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrate creates the schema from the GORM models. It backs the sqlite and
// mysql drivers, which the goose SQL files do not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// UsesGoose reports whether the driver is served by the SQL migrations.
func UsesGoose(driver string) bool {
	return driver == config.DBDriverPostgres
}
