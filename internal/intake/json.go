package intake

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// ReadJSON reads either a JSON array of objects or newline-delimited
// objects. Nested values are kept as decoded.
func ReadJSON(ctx context.Context, r io.Reader, opts Options) ([]model.StagingRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read")
	}

	source := sourceOrDefault(opts.Source)
	dec := json.NewDecoder(br)

	if first == '[' {
		var objs []map[string]any
		if err := dec.Decode(&objs); err != nil {
			return nil, eris.Wrap(err, "json: decode array")
		}
		return objectsToRecords(objs, source), nil
	}

	var objs []map[string]any
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "json: context cancelled")
		}
		var obj map[string]any
		err := dec.Decode(&obj)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "json: decode object %d", len(objs)+1)
		}
		objs = append(objs, obj)
	}
	return objectsToRecords(objs, source), nil
}

func objectsToRecords(objs []map[string]any, source string) []model.StagingRecord {
	recs := make([]model.StagingRecord, 0, len(objs))
	for _, obj := range objs {
		if len(obj) == 0 {
			continue
		}
		recs = append(recs, model.StagingRecord{RawData: obj, Source: source})
	}
	return recs
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}
