// Command archivecheck verifies the Postgres archive is reachable and prints
// what it holds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/deusflow/topicnews/internal/storage"
)

func main() {
	section := flag.String("section", "", "only show this category")
	limit := flag.Int("limit", 5, "number of recent articles to list")
	cleanup := flag.Duration("cleanup", 0, "delete rows not seen within this retention, e.g. 720h (0 keeps everything)")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Testing PostgreSQL connection...")
	fmt.Printf("Database URL: %s\n\n", maskPassword(dbURL))

	archive, err := storage.NewPostgresArchive(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer archive.Close()

	fmt.Println("Connected.")

	stats, err := archive.GetStats(ctx)
	if err != nil {
		log.Printf("Failed to get stats: %v", err)
	} else {
		fmt.Println("\nArchive statistics:")
		fmt.Printf("  Total items: %d\n", stats["total_items"])
		for k, v := range stats {
			if k != "total_items" {
				fmt.Printf("  %s: %d\n", k, v)
			}
		}
	}

	if *cleanup > 0 {
		deleted, err := archive.Cleanup(ctx, *cleanup)
		if err != nil {
			log.Printf("Cleanup failed: %v", err)
		} else {
			fmt.Printf("\nCleanup: removed %d rows older than %s\n", deleted, *cleanup)
		}
	}

	recent, err := archive.Recent(ctx, *section, *limit)
	if err != nil {
		log.Printf("Failed to list recent articles: %v", err)
		return
	}
	fmt.Printf("\nRecent articles (last %d):\n", *limit)
	if len(recent) == 0 {
		fmt.Println("  (archive is empty)")
	}
	for i, item := range recent {
		fmt.Printf("  %d. %s\n", i+1, item.Title)
		fmt.Printf("     Section: %s | Source: %s | Published: %s\n",
			item.Section, item.Source, item.Published.Format("2006-01-02 15:04:05"))
	}
}

var dsnPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// maskPassword hides the password of a postgres:// URL or a key=value DSN.
func maskPassword(dbURL string) string {
	if u, err := url.Parse(dbURL); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dbURL, "${1}xxxxx")
}
