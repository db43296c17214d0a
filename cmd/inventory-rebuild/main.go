package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/workflow"
	"gorm.io/gorm"
)

func main() {
	ownerID := flag.String("owner-id", "", "Required: owner id (uuid)")
	unitID := flag.Int("unit-id", 0, "Optional: inventory unit id. When omitted, every unit of the owner is rebuilt.")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing units and continue rebuilding others")
	flag.Parse()

	if strings.TrimSpace(*ownerID) == "" {
		fmt.Fprintln(os.Stderr, "--owner-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	ctx := context.Background()

	if *unitID > 0 {
		fmt.Printf("Rebuilding owner=%s unit=%d\n", *ownerID, *unitID)
		if err := db.Transaction(func(tx *gorm.DB) error {
			_, err := workflow.RebuildUnitStock(ctx, tx, logger, *ownerID, *unitID)
			return err
		}); err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rebuild complete.")
		return
	}

	fmt.Printf("Rebuilding all units for owner=%s\n", *ownerID)
	repaired, failed, err := workflow.RebuildOwnerStock(ctx, db, logger, *ownerID)
	if err != nil && !*continueOnError {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "rebuild finished with %d failed unit(s)\n", failed)
	}
	fmt.Printf("Rebuild complete: %d unit(s) repaired.\n", repaired)
	if failed > 0 && !*continueOnError {
		os.Exit(1)
	}
}
