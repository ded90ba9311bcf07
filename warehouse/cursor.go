package warehouse

import (
	"context"
	"io"

	"github.com/linkedin/goavro/v2"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// Cursor reads collect.Rows from a result artifact in Avro object container
// format. The package name becomes Row.To and the dependent name Row.From, so
// each row reads "From depends on To".
type Cursor struct {
	rc   io.ReadCloser
	ocf  *goavro.OCFReader
	read int64
}

// NewCursor reads the container header from rc. The Cursor takes ownership
// of rc and closes it on Close.
func NewCursor(rc io.ReadCloser) (*Cursor, error) {
	ocf, err := goavro.NewOCFReader(rc)
	if err != nil {
		rc.Close()
		return nil, errors.Wrap(err, "reading container header")
	}
	return &Cursor{rc: rc, ocf: ocf}, nil
}

// Next implements collect.Cursor.
func (c *Cursor) Next(ctx context.Context) (collect.Row, error) {
	if err := ctx.Err(); err != nil {
		return collect.Row{}, err
	}
	if !c.ocf.Scan() {
		if err := c.ocf.Err(); err != nil {
			return collect.Row{}, errors.Wrapf(err, "scanning after record %d", c.read)
		}
		return collect.Row{}, io.EOF
	}
	datum, err := c.ocf.Read()
	if err != nil {
		return collect.Row{}, errors.Wrapf(err, "decoding record %d", c.read)
	}
	c.read++
	rec, ok := datum.(map[string]interface{})
	if !ok {
		return collect.Row{}, errors.Wrapf(collect.ErrSchemaMismatch, "record %d is a %T", c.read, datum)
	}
	var row collect.Row
	if row.To, err = stringField(rec, FieldPackageName); err != nil {
		return collect.Row{}, err
	}
	if row.From, err = stringField(rec, FieldDependent); err != nil {
		return collect.Row{}, err
	}
	if row.Depth, err = longField(rec, FieldMinimumDepth); err != nil {
		return collect.Row{}, err
	}
	return row, nil
}

// Close implements collect.Cursor.
func (c *Cursor) Close() error {
	return c.rc.Close()
}

func stringField(rec map[string]interface{}, name string) (string, error) {
	s, ok := rec[name].(string)
	if !ok {
		return "", errors.Wrapf(collect.ErrSchemaMismatch, "field '%s' is %T, not string", name, rec[name])
	}
	return s, nil
}

func longField(rec map[string]interface{}, name string) (int64, error) {
	switch v := rec[name].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	}
	return 0, errors.Wrapf(collect.ErrSchemaMismatch, "field '%s' is %T, not long", name, rec[name])
}
