package intake

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Import copies form documents from r into w. r holds either a JSON array of
// documents (a container export) or a stream of documents, one after the
// other. Documents are stored byte-for-byte so field order survives. Records
// without an id get a generated one.
func Import(ctx context.Context, r io.Reader, w RecordWriter) (int, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}

	dec := json.NewDecoder(br)
	array := first == '['
	if array {
		if _, err := dec.Token(); err != nil {
			return 0, fmt.Errorf("read array start: %w", err)
		}
	}

	count := 0
	for {
		if array && !dec.More() {
			break
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if !array && errors.Is(err, io.EOF) {
				break
			}
			return count, fmt.Errorf("decode document %d: %w", count+1, err)
		}

		var rec FormRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return count, fmt.Errorf("decode document %d: %w", count+1, err)
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := w.Put(ctx, id, rec.BlobURL, raw); err != nil {
			return count, fmt.Errorf("store document %s: %w", id, err)
		}
		count++
	}

	return count, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
