package report

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// FileRow is one line of the batch summary workbook. Value columns hold
// pre-rendered strings so the sheet matches the markdown reports.
type FileRow struct {
	File     string
	Status   string
	Format   string
	Width    string
	Height   string
	Channels string
	Error    string
}

var workbookHeader = []string{"File", "Status", "Format", "Width", "Height", "Channels", "Error"}

// WriteWorkbook writes the batch summary spreadsheet: a Files sheet with
// one row per input file and a Run sheet with the batch totals. A row with
// a non-empty Error column counts as a failure.
func WriteWorkbook(path, runID, target string, rows []FileRow) error {
	f := xlsx.NewFile()

	files, err := f.AddSheet("Files")
	if err != nil {
		return eris.Wrap(err, "report: add files sheet")
	}
	header := files.AddRow()
	for _, h := range workbookHeader {
		header.AddCell().SetString(h)
	}
	failed := 0
	for _, r := range rows {
		if r.Error != "" {
			failed++
		}
		row := files.AddRow()
		for _, cell := range []string{r.File, r.Status, r.Format, r.Width, r.Height, r.Channels, r.Error} {
			row.AddCell().SetString(cell)
		}
	}

	run, err := f.AddSheet("Run")
	if err != nil {
		return eris.Wrap(err, "report: add run sheet")
	}
	addPair(run, "Run ID", runID)
	addPair(run, "Target", target)
	addPair(run, "Total Files", strconv.Itoa(len(rows)))
	addPair(run, "Succeeded", strconv.Itoa(len(rows)-failed))
	addPair(run, "Failed", strconv.Itoa(failed))

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addPair(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}
