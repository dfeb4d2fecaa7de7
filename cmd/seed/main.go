// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"fmt"
	"os"

	"lotledger/internal/core/id"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Connect to database
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seedDemoData(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	log.Info("seeding demo data...")

	// 1. Seed Warehouses
	warehouses := []struct {
		name      string
		address   string
		wType     string
		isDefault bool
	}{
		{"Main warehouse", "1 Depot street", "main", true},
		{"Retail shop", "5 Market street", "retail", false},
	}

	// Map code -> UUID for product references
	warehouseIDs := make(map[string]id.ID)

	for i, w := range warehouses {
		whID := id.New()
		code := fmt.Sprintf("WH-%03d", i+1)
		commandTag, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_warehouses (id, code, name, address, type, is_active, is_default, version, deletion_mark, attributes)
			VALUES ($1, $2, $3, $4, $5, true, $6, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, whID, code, w.name, w.address, w.wType, w.isDefault)
		if err != nil {
			log.Warnw("failed to seed warehouse", "name", w.name, "error", err)
			continue
		}

		// If inserted, use new ID. If conflict, fetch the existing one.
		if commandTag.RowsAffected() == 0 {
			err = pool.Pool.QueryRow(ctx, `
				SELECT id FROM cat_warehouses WHERE code = $1 AND deletion_mark = FALSE
			`, code).Scan(&whID)
			if err != nil {
				log.Warnw("failed to fetch existing warehouse id", "code", code, "error", err)
				continue
			}
		}

		warehouseIDs[code] = whID
	}

	mainWH, ok := warehouseIDs["WH-001"]
	if !ok {
		return fmt.Errorf("main warehouse was not seeded")
	}

	// 2. Seed Products
	// Metered goods carry a size in ml and a drop resolution; discrete
	// goods leave both at zero. Quantity stays zero: stock arrives
	// through receivings, never through the catalog.
	products := []struct {
		name       string
		barcode    string
		category   string
		unit       string
		sizeScaled int64 // types.Quantity scale (10_000 per unit)
		dropsPerMl int
		salePrice  float64
	}{
		{"Lavender essential oil 15ml", "5900000000017", "essential-oil", "ml", 150_000, 20, 24.90},
		{"Peppermint essential oil 15ml", "5900000000024", "essential-oil", "ml", 150_000, 20, 22.50},
		{"Frankincense essential oil 5ml", "5900000000031", "essential-oil", "ml", 50_000, 20, 49.00},
		{"Fractionated coconut oil 115ml", "5900000000048", "carrier-oil", "ml", 1_150_000, 20, 14.00},
		{"Roll-on bottle 10ml", "5900000000055", "accessory", "db", 0, 0, 1.80},
		{"Aroma diffuser", "5900000000062", "accessory", "db", 0, 0, 39.90},
	}

	for i, p := range products {
		prodID := id.New()
		code := fmt.Sprintf("PRD-%05d", i+1)

		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_products (
				id, code, name, barcode, category, unit,
				size, drops_per_ml, quantity, purchase_price, sale_price,
				warehouse_id, version, deletion_mark, attributes
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, $10, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, prodID, code, p.name, p.barcode, p.category, p.unit,
			p.sizeScaled, p.dropsPerMl, p.salePrice, mainWH.String())
		if err != nil {
			log.Warnw("failed to seed product", "name", p.name, "error", err)
		}
	}

	// 3. Seed Customers
	customers := []struct {
		name  string
		group string
	}{
		{"Walk-in", "retail"},
		{"Aroma Studio Kft.", "wholesale"},
	}

	for i, c := range customers {
		custID := id.New()
		code := fmt.Sprintf("CST-%05d", i+1)
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_customers (id, code, name, group_name, total_revenue, version, deletion_mark, attributes)
			VALUES ($1, $2, $3, $4, 0, 1, false, '{}')
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, custID, code, c.name, c.group)
		if err != nil {
			log.Warnw("failed to seed customer", "name", c.name, "error", err)
		}
	}

	log.Info("demo data seeded successfully")
	return nil
}
