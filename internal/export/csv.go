// Package export writes the packet log and conversation snapshots out of the
// process: CSV for the displayed packet list, gob files and ClickHouse rows
// for periodic conversation snapshots.
package export

import (
	"RedWire/internal/model"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSVHeader is the first row of every packet export.
var CSVHeader = []string{"Sequence", "Time", "Source", "Destination", "Protocol", "Length", "Summary"}

// csvTimeLayout matches the time column of the packet view.
const csvTimeLayout = "15:04:05"

// WriteCSV writes one row per record, in the order given.
func WriteCSV(w io.Writer, records []model.PacketRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatUint(rec.Seq, 10),
			rec.Timestamp.Local().Format(csvTimeLayout),
			rec.Source,
			rec.Destination,
			rec.ProtocolName(),
			strconv.Itoa(rec.Length),
			rec.Summary,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", rec.Seq, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes records to path, replacing any existing file.
func WriteCSVFile(path string, records []model.PacketRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
