// Package main is a diagnostic tool for database connectivity. It connects with the
// server's configuration, prints the migration version and a per-project summary of
// platforms and message traffic, and exits non-zero on any failure so it can gate
// deployments on a reachable, migrated database.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/db"
)

const projectSummaryQuery = `
	SELECT p.slug,
	       (SELECT COUNT(*) FROM project_platforms pp WHERE pp.project_id = p.id) AS platforms,
	       (SELECT COUNT(*) FROM received_messages rm WHERE rm.project_id = p.id) AS received,
	       (SELECT COUNT(*) FROM sent_messages sm WHERE sm.project_id = p.id) AS sent
	FROM projects p
	ORDER BY p.slug`

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		log.Fatal("Schema is dirty; run fix-migration")
	}

	fmt.Println("\n=== PROJECTS ===")
	rows, err := database.Query(projectSummaryQuery)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var slug string
		var platforms, received, sent int64
		if err := rows.Scan(&slug, &platforms, &received, &sent); err != nil {
			log.Printf("Warning: failed to scan project row: %v", err)
			continue
		}
		fmt.Printf("Project: %s - platforms: %d, received: %d, sent: %d\n", slug, platforms, received, sent)
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if count == 0 {
		fmt.Println("No projects found!")
	}
}
