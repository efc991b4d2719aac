package models

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var partnerExportHeadings = []string{
	"PartnerCode", "PartnerName", "LoginId", "Mobile", "Email",
	"PanCount", "KotakCount", "TotalTransactions", "LastUpdate",
}

// ExportPartnersExcel writes the ledger as an xlsx workbook, one row per
// partner ordered by partner code.
func ExportPartnersExcel(ctx context.Context, w io.Writer) error {
	partners, err := ListPartners(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheetName := "Partners"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, h := range partnerExportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheetName, cell, h)
	}

	for i, p := range partners {
		row := i + 2
		lastUpdate := ""
		if p.LastUpdate != nil {
			lastUpdate = p.LastUpdate.UTC().Format("2006-01-02 15:04:05")
		}
		f.SetCellValue(sheetName, "A"+fmt.Sprint(row), p.PartnerCode)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(row), p.PartnerName)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(row), p.LoginId)
		f.SetCellValue(sheetName, "D"+fmt.Sprint(row), p.Mobile)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(row), p.Email)
		f.SetCellValue(sheetName, "F"+fmt.Sprint(row), p.PanCount)
		f.SetCellValue(sheetName, "G"+fmt.Sprint(row), p.KotakCount)
		f.SetCellValue(sheetName, "H"+fmt.Sprint(row), p.TotalTransactions)
		f.SetCellValue(sheetName, "I"+fmt.Sprint(row), lastUpdate)
	}

	return f.Write(w)
}
