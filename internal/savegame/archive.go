package savegame

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
)

// ArchiveLine is one record of a slot archive (JSONL inside zstd).
type ArchiveLine struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Raw       []byte          `json:"raw,omitempty"` // non-JSON values, base64
	UpdatedAt time.Time       `json:"updated_at"`
}

// ExportArchive writes every record under prefix to w as zstd-compressed
// JSON lines. It returns the number of records written.
func ExportArchive(ctx context.Context, kv storage.KeyValueStore, prefix string, w io.Writer) (int, error) {
	records, err := kv.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	je := json.NewEncoder(bw)

	n := 0
	for _, rec := range records {
		line := ArchiveLine{Key: rec.Key, UpdatedAt: rec.UpdatedAt}
		if json.Valid(rec.Value) {
			line.Value = json.RawMessage(rec.Value)
		} else {
			line.Raw = rec.Value
		}
		if err := je.Encode(line); err != nil {
			enc.Close()
			return n, fmt.Errorf("archive %s: %w", rec.Key, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return n, err
	}
	if err := enc.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// ReadArchive decodes an archive without writing anything.
func ReadArchive(r io.Reader) ([]ArchiveLine, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024))
	var lines []ArchiveLine
	for {
		var line ArchiveLine
		err := jd.Decode(&line)
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("archive line %d: %w", len(lines)+1, err)
		}
		if line.Key == "" {
			return lines, fmt.Errorf("archive line %d: empty key", len(lines)+1)
		}
		lines = append(lines, line)
	}
}

// ImportArchive writes every archived record back into kv, overwriting
// existing keys. It returns the number of records written.
func ImportArchive(ctx context.Context, kv storage.KeyValueStore, r io.Reader) (int, error) {
	lines, err := ReadArchive(r)
	if err != nil {
		return 0, err
	}
	for i, line := range lines {
		value := []byte(line.Value)
		if len(value) == 0 {
			value = line.Raw
		}
		if err := kv.Put(ctx, line.Key, value); err != nil {
			return i, err
		}
	}
	return len(lines), nil
}
