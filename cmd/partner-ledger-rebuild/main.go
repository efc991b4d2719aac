// partner-ledger-rebuild recomputes the d2na_partners counters from
// pan_records and kotak_records.
//
// Usage:
//
//	go run ./cmd/partner-ledger-rebuild [-dry-run]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var errDryRun = errors.New("dry run")

func main() {
	dryRun := flag.Bool("dry-run", false, "compute counters and roll back instead of committing")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	var written int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := models.RebuildPartnerLedger(ctx, tx)
		if err != nil {
			return err
		}
		written = n
		if *dryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		logger.WithFields(logrus.Fields{"field": "partner-ledger-rebuild"}).Error(err.Error())
		os.Exit(1)
	}

	logger.WithFields(logrus.Fields{
		"partners": written,
		"dry_run":  *dryRun,
	}).Info("partner ledger rebuilt")
}
