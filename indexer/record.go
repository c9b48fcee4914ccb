package indexer

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/bundle"
)

// WriteRecord writes item to w as a single line of JSON.
func WriteRecord(w io.Writer, item bundle.Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(ErrSerialize, err.Error())
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// ReadRecords parses an artifact written by a Session, returning its items in
// order.
func ReadRecords(r io.Reader) ([]bundle.Item, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var result []bundle.Item
	for {
		var item bundle.Item
		err := dec.Decode(&item)
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, errors.Wrapf(err, "record %d", len(result))
		}
		result = append(result, item)
	}
}
