// Package main is a development utility for seeding a project API key directly in a
// local database. It prints the raw key, its SHA-256 hash, the display prefix and suffix,
// and a ready-to-run SQL INSERT. Do not use generated keys in production; create keys
// through the API so they carry an owner, scopes and an expiry.
//
// Usage: go run scripts/generate-key.go <project-slug> [prefix]
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/msgcore/msgcore-sub001/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <project-slug> [prefix]", os.Args[0])
	}
	slug := os.Args[1]

	prefix := "msc"
	if len(os.Args) > 2 {
		prefix = os.Args[2]
	}

	key, err := auth.GenerateAPIKey(prefix)
	if err != nil {
		log.Fatal(err)
	}

	scopes, err := json.Marshal(auth.GetDefaultScopes())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("API Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", key.Key)
	fmt.Printf("\nHash: %s\n", key.Hash)
	fmt.Printf("\nDisplay: %s...%s\n", key.Prefix, key.Suffix)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO api_keys (project_id, name, key_hash, key_prefix, key_suffix, scopes)
SELECT id, 'dev seed', '%s', '%s', '%s', '%s'::jsonb
FROM projects WHERE slug = '%s';
`, key.Hash, key.Prefix, key.Suffix, scopes, slug)
	fmt.Println("\n==========================================================")
	fmt.Printf("Header: X-API-Key: %s\n", key.Key)
	fmt.Println("==========================================================")
}
