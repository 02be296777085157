// Applies the SQL migrations (transaction store, spend table, rollup
// functions) against DATABASE_URL. --verify checks that the rollup
// functions the gateway calls actually exist, which catches a schema
// that migrated but never got the function release.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

var rollupFunctions = []string{
	"get_daily_rollup",
	"get_period_summary",
	"get_daily_rollup_filtered",
	"get_period_summary_filtered",
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	mode := "apply"
	for _, a := range os.Args[1:] {
		switch a {
		case "--list":
			mode = "list"
		case "--verify":
			mode = "verify"
		default:
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	switch mode {
	case "list":
		listTables(db)
	case "verify":
		verifyRollupFunctions(db)
	default:
		applyMigrations(db, dir)
		verifyRollupFunctions(db)
	}
}

func listTables(db *sql.DB) {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' ORDER BY tablename")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var t string
		rows.Scan(&t)
		fmt.Println(" ", t)
		n++
	}
	fmt.Printf("Total: %d tables\n", n)
}

func verifyRollupFunctions(db *sql.DB) {
	missing := 0
	for _, fn := range rollupFunctions {
		var exists bool
		err := db.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = $1)", fn,
		).Scan(&exists)
		if err != nil {
			log.Fatalf("verify %s: %v", fn, err)
		}
		if exists {
			fmt.Printf("  %s ... present\n", fn)
		} else {
			fmt.Printf("  %s ... MISSING\n", fn)
			missing++
		}
	}
	if missing > 0 {
		log.Fatalf("%d rollup function(s) missing; canonical reads will fail over to raw aggregation", missing)
	}
	log.Println("All rollup functions present")
}

func applyMigrations(db *sql.DB, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
}
