package visualize

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/meterelf/meterelf-store/internal/process"
)

// RawField is a named column of the raw data output.
type RawField struct {
	Key   string
	Value string
}

// RawRecord is one value as raw data.
type RawRecord struct {
	T      time.Time
	Fields []RawField
}

// RawRecords converts values into raw data records. Fields that do not
// apply to a value are empty.
func RawRecords(values []process.InterpretedValue) []RawRecord {
	records := make([]RawRecord, 0, len(values))
	for _, v := range values {
		var lpm, dfv, dt string
		if v.HasDelta {
			if v.DT > 0 {
				lpm = fmt.Sprintf("%.9f", 60.0*v.DFV/v.DT.Seconds())
			}
			dfv = fmt.Sprintf("%.9f", v.DFV)
			dt = fmt.Sprintf("%.2f", v.DT.Seconds())
		}
		event := ""
		if v.FilenameData.EventNumber != 0 {
			event = strconv.Itoa(v.FilenameData.EventNumber)
		}
		snapshot := "f"
		if v.FilenameData.IsSnapshot {
			snapshot = "t"
		}
		records = append(records, RawRecord{
			T: v.T,
			Fields: []RawField{
				{"value", fmt.Sprintf("%.9f", v.FV)},
				{"litres_per_minute", lpm},
				{"value_diff", dfv},
				{"time_diff", dt},
				{"correction", fmt.Sprintf("%.9f", v.Correction)},
				{"event_num", event},
				{"format", `"` + v.FilenameData.Extension + `"`},
				{"snapshot", snapshot},
				{"filename", `"` + v.Filename + `"`},
			},
		})
	}
	return records
}

// WriteTable writes records as tab separated values with a header line.
func WriteTable(w io.Writer, records []RawRecord) error {
	for i, rec := range records {
		if i == 0 {
			header := []string{"time"}
			for _, f := range rec.Fields {
				header = append(header, f.Key)
			}
			if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
				return err
			}
		}
		cols := []string{rec.T.Format("2006-01-02T15:04:05.000000-0700")}
		for _, f := range rec.Fields {
			cols = append(cols, f.Value)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cols, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// WriteInflux writes records in influx line protocol under measurement
// "water". Empty fields are left out.
func WriteInflux(w io.Writer, records []RawRecord) error {
	for _, rec := range records {
		var kv []string
		for _, f := range rec.Fields {
			if f.Value != "" {
				kv = append(kv, f.Key+"="+f.Value)
			}
		}
		if _, err := fmt.Fprintf(w, "water %s %d\n", strings.Join(kv, ","), rec.T.UnixNano()); err != nil {
			return err
		}
	}
	return nil
}
