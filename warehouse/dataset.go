package warehouse

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

var datasetColumns = []string{FieldSystem, FieldSnapshotAt, FieldPackageName, FieldDependent, FieldMinimumDepth}

// ImportCSV converts a CSV export of the dependents table into the source
// dataset name in store. The first line must be a header naming at least
// the dataset columns, in any order; other columns are ignored. It returns
// the number of records written.
func ImportCSV(ctx context.Context, store ArtifactStore, name string, r io.Reader) (int64, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	header, err := reader.Read()
	if err != nil {
		return 0, errors.Wrap(err, "reading header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, len(datasetColumns))
	for i, c := range datasetColumns {
		j, ok := idx[c]
		if !ok {
			return 0, errors.Errorf("header is missing column '%s'", c)
		}
		cols[i] = j
	}

	pr, pw := io.Pipe()
	written := make(chan int64, 1)
	go func() {
		n, werr := writeDataset(ctx, reader, cols, pw)
		pw.CloseWithError(werr)
		written <- n
	}()
	err = store.Put(ctx, artifactKey(name), pr)
	pr.CloseWithError(err)
	n := <-written
	if err != nil {
		return 0, errors.Wrapf(err, "storing dataset %s", name)
	}
	return n, nil
}

func writeDataset(ctx context.Context, reader *csv.Reader, cols []int, w io.Writer) (int64, error) {
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           datasetCodec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return 0, errors.Wrap(err, "creating dataset writer")
	}
	var n int64
	block := make([]interface{}, 0, 1000)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return n, errors.Wrapf(err, "reading line %d", line)
		}
		depth, err := strconv.ParseInt(strings.TrimSpace(rec[cols[4]]), 10, 64)
		if err != nil {
			return n, errors.Wrapf(err, "parsing %s on line %d", FieldMinimumDepth, line)
		}
		block = append(block, map[string]interface{}{
			FieldSystem:       rec[cols[0]],
			FieldSnapshotAt:   rec[cols[1]],
			FieldPackageName:  rec[cols[2]],
			FieldDependent:    rec[cols[3]],
			FieldMinimumDepth: depth,
		})
		if len(block) == cap(block) {
			if err := ocf.Append(block); err != nil {
				return n, errors.Wrap(err, "writing dataset block")
			}
			n += int64(len(block))
			block = block[:0]
		}
	}
	if len(block) > 0 {
		if err := ocf.Append(block); err != nil {
			return n, errors.Wrap(err, "writing dataset block")
		}
		n += int64(len(block))
	}
	return n, nil
}
