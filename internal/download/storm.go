package download

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DamageColumn is the Storm Events column used to drop unusable rows.
const DamageColumn = "DAMAGE_PROPERTY"

// ArchiveStats reports what the storm archive post-processing kept.
type ArchiveStats struct {
	CSVPath string
	Kept    int
	Dropped int
}

// ExpandStormArchive decompresses a Storm Events ".csv.gz" file next to
// itself, dropping rows whose DAMAGE_PROPERTY is empty when that column
// exists. The CSV is published via a temp file and the archive is removed
// once the CSV is in place.
func ExpandStormArchive(gzPath string) (ArchiveStats, error) {
	csvPath := strings.TrimSuffix(gzPath, ".gz")
	if csvPath == gzPath {
		return ArchiveStats{}, fmt.Errorf("%s is not a .gz archive", gzPath)
	}
	stats := ArchiveStats{CSVPath: csvPath}

	in, err := os.Open(gzPath)
	if err != nil {
		return stats, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return stats, fmt.Errorf("read gzip header: %w", err)
	}
	defer zr.Close()

	tmp := csvPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return stats, fmt.Errorf("create csv: %w", err)
	}

	kept, dropped, filterErr := filterDamageRows(zr, out)
	closeErr := out.Close()
	if filterErr == nil && closeErr != nil {
		filterErr = fmt.Errorf("close csv: %w", closeErr)
	}
	if filterErr != nil {
		_ = os.Remove(tmp)
		return stats, filterErr
	}
	if err := os.Rename(tmp, csvPath); err != nil {
		_ = os.Remove(tmp)
		return stats, fmt.Errorf("publish csv: %w", err)
	}
	stats.Kept, stats.Dropped = kept, dropped

	if err := os.Remove(gzPath); err != nil {
		return stats, fmt.Errorf("remove archive: %w", err)
	}
	return stats, nil
}

func filterDamageRows(r io.Reader, w io.Writer) (kept, dropped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	cw := csv.NewWriter(w)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		cw.Flush()
		return 0, 0, cw.Error()
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	if err := cw.Write(header); err != nil {
		return 0, 0, fmt.Errorf("write header: %w", err)
	}

	damageIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), DamageColumn) {
			damageIdx = i
			break
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return kept, dropped, fmt.Errorf("read row %d: %w", kept+dropped+2, err)
		}
		if damageIdx >= 0 && (damageIdx >= len(row) || strings.TrimSpace(row[damageIdx]) == "") {
			dropped++
			continue
		}
		if err := cw.Write(row); err != nil {
			return kept, dropped, fmt.Errorf("write row: %w", err)
		}
		kept++
	}

	cw.Flush()
	return kept, dropped, cw.Error()
}
