package readers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/sensorload/core"
)

// DecodeParquet decodes a Parquet object into raw records, one per row.
// A struct column named "location" becomes a nested map. Flat latitude and
// longitude columns are folded into a location map when no such column exists.
func DecodeParquet(key string, body []byte) ([]core.RawRecord, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(body))
	if err != nil {
		return nil, &core.ParseError{Key: key, Err: fmt.Errorf("open parquet: %w", err)}
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, &core.ParseError{Key: key, Err: fmt.Errorf("arrow reader: %w", err)}
	}

	rr, err := fr.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, &core.ParseError{Key: key, Err: fmt.Errorf("record reader: %w", err)}
	}
	defer rr.Release()

	records := make([]core.RawRecord, 0, pf.NumRows())
	for {
		rec, err := rr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &core.ParseError{Key: key, Err: err}
		}
		if rec == nil {
			break
		}
		sch := rec.Schema()
		for row := 0; row < int(rec.NumRows()); row++ {
			raw := make(core.RawRecord, rec.NumCols())
			for i := 0; i < int(rec.NumCols()); i++ {
				raw[sch.Field(i).Name] = arrowValue(rec.Column(i), row)
			}
			records = append(records, nestLocation(raw))
		}
	}
	return records, nil
}

// nestLocation moves flat latitude/longitude values under a location map.
func nestLocation(raw core.RawRecord) core.RawRecord {
	if _, ok := raw[core.FieldLocation]; ok {
		return raw
	}
	lat, hasLat := raw[core.FieldLatitude]
	lon, hasLon := raw[core.FieldLongitude]
	if !hasLat && !hasLon {
		return raw
	}
	loc := make(map[string]interface{}, 2)
	if hasLat {
		loc[core.FieldLatitude] = lat
		delete(raw, core.FieldLatitude)
	}
	if hasLon {
		loc[core.FieldLongitude] = lon
		delete(raw, core.FieldLongitude)
	}
	raw[core.FieldLocation] = loc
	return raw
}

// arrowValue extracts one cell as the Go value the validators understand.
// Small integer types widen to int64 and temporal types become RFC 3339 strings.
func arrowValue(col arrow.Array, row int) interface{} {
	if col.IsNull(row) {
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(row)
	case *array.Int8:
		return int64(arr.Value(row))
	case *array.Int16:
		return int64(arr.Value(row))
	case *array.Int32:
		return arr.Value(row)
	case *array.Int64:
		return arr.Value(row)
	case *array.Uint8:
		return int64(arr.Value(row))
	case *array.Uint16:
		return int64(arr.Value(row))
	case *array.Uint32:
		return int64(arr.Value(row))
	case *array.Float32:
		return arr.Value(row)
	case *array.Float64:
		return arr.Value(row)
	case *array.String:
		return arr.Value(row)
	case *array.LargeString:
		return arr.Value(row)
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(row).ToTime(unit).UTC().Format(time.RFC3339Nano)
	case *array.Date32:
		return arr.Value(row).ToTime().Format("2006-01-02")
	case *array.Struct:
		st := arr.DataType().(*arrow.StructType)
		m := make(map[string]interface{}, arr.NumField())
		for i := 0; i < arr.NumField(); i++ {
			m[st.Field(i).Name] = arrowValue(arr.Field(i), row)
		}
		return m
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(row))
	}
}
