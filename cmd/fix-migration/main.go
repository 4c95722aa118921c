// Package main is a repair tool for dirty migration state in the gateway database.
// Dirty state occurs when golang-migrate marks a version as in progress and the process
// is interrupted before it completes. The tool reads the recorded version and, when it is
// dirty, forces the same version so the next startup can retry cleanly.
//
// Usage: fix-migration [version]
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	target := int(version)
	if len(os.Args) > 1 {
		target, err = strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[1], err)
		}
	} else if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	log.Printf("Forcing migration version %d...", target)
	if err := db.ForceMigrationVersion(database, target); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	fmt.Printf("Final migration state: version=%d, dirty=%v\n", version, dirty)
}
