package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	dialect := flag.String("dialect", "sqlite", "sqlite, postgres, mysql or sqlserver")
	ns := flag.String("ns", "inspect_case", "namespace to create")
	flag.Parse()

	if *dialect != "sqlite" {
		// Column types only, no server needed
		for _, def := range catalog.All() {
			fmt.Printf("\n=== Category: %s ===\n", def.Name)
			for _, col := range def.Columns() {
				fmt.Printf("  %-28s %s\n", col.Name, database.ColumnDDL(*dialect, col))
			}
		}
		return
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		log.Fatal(err)
	}

	// Migrate the control tables and create one case namespace to see what gets created
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}
	if err := database.CreateNamespace(db, *ns); err != nil {
		log.Fatal(err)
	}

	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE name = ?", table).Scan(&schema)
		fmt.Println(schema)
	}
}
