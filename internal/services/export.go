package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
)

// ExportScoresCSV renders dimension scores in long format, one row per
// (reviewee, dimension).
func ExportScoresCSV(rows []DimensionScore) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"reviewee_id", "dimension", "raw_score", "level", "percentile", "review_count"})
	for _, r := range rows {
		rec := []string{
			r.RevieweeID,
			string(r.Dimension),
			strconv.FormatFloat(r.RawScore, 'f', 2, 64),
			string(r.Level),
			itoa(r.Percentile),
			itoa(r.ReviewCount),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportLevelsWideCSV renders one row per reviewee with a level column per
// canonical dimension. Dimensions without data are left blank.
func ExportLevelsWideCSV(rows []DimensionScore) ([]byte, error) {
	levels := map[string]map[Dimension]Level{}
	for _, r := range rows {
		if levels[r.RevieweeID] == nil {
			levels[r.RevieweeID] = map[Dimension]Level{}
		}
		levels[r.RevieweeID][r.Dimension] = r.Level
	}
	ids := make([]string, 0, len(levels))
	for id := range levels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"reviewee_id"}
	for _, d := range AllDimensions {
		header = append(header, string(d))
	}
	_ = w.Write(header)
	for _, id := range ids {
		row := make([]string, 0, 1+len(AllDimensions))
		row = append(row, id)
		for _, d := range AllDimensions {
			row = append(row, string(levels[id][d]))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
