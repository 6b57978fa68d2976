package db

import (
	"fmt"

	"github.com/router-for-me/APIMarketplace/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch dialect := DialectOf(conn); dialect {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", dialect)
	}
}

// schemaModels lists every table owned by the service in dependency order.
func schemaModels() []any {
	return []any{
		&models.User{},
		&models.APIProduct{},
		&models.MonetizationPlan{},
		&models.CartItem{},
		&models.SalesReceipt{},
		&models.UsageLog{},
	}
}

// ddl defines an index or DDL statement to apply.
type ddl struct {
	name string // Human-readable name for error reporting.
	sql  string // SQL to execute.
}

// sharedIndexes are valid on both PostgreSQL and SQLite.
var sharedIndexes = []ddl{
	{
		name: "idx_sales_receipts_customer_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_sales_receipts_customer_created_at
			ON sales_receipts (customer_id, created_at DESC)
		`,
	},
	{
		name: "idx_sales_receipts_seller_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_sales_receipts_seller_created_at
			ON sales_receipts (seller_id, created_at DESC)
		`,
	},
	{
		name: "idx_sales_receipts_active_id",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_sales_receipts_active_id
			ON sales_receipts (id)
			WHERE status = 'active'
		`,
	},
	{
		name: "idx_usage_logs_receipt_type",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_usage_logs_receipt_type
			ON usage_logs (sales_receipt_id, type)
		`,
	},
	{
		name: "idx_monetization_plans_product_price",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_monetization_plans_product_price
			ON monetization_plans (api_product_id, price_cents, id)
		`,
	},
	{
		name: "idx_api_products_status_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_api_products_status_created_at
			ON api_products (status, created_at DESC)
		`,
	},
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	ddls := append([]ddl{}, sharedIndexes...)
	ddls = append(ddls,
		ddl{
			name: "chk_cart_items_quantity",
			sql: `
				DO $$
				BEGIN
					IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_cart_items_quantity') THEN
						ALTER TABLE cart_items ADD CONSTRAINT chk_cart_items_quantity CHECK (quantity >= 1);
					END IF;
				END $$;
			`,
		},
		ddl{
			name: "idx_sales_receipts_plan_snapshot_category",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_sales_receipts_plan_snapshot_category
				ON sales_receipts ((plan_snapshot->>'category'))
			`,
		},
	)
	return applyDDLs(conn, ddls)
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return applyDDLs(conn, sharedIndexes)
}

// applyDDLs executes each statement in order.
func applyDDLs(conn *gorm.DB, ddls []ddl) error {
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			return fmt.Errorf("db: create %s: %w", stmt.name, errExec)
		}
	}
	return nil
}
