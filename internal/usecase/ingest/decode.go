package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode reads a sequence of JSON batches, typically one per line.
func Decode(r io.Reader) ([]Batch, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var out []Batch
	for {
		var b Batch
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode batch %d: %w", len(out)+1, err)
		}
		out = append(out, b)
	}
}
