package history

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/klauspost/compress/zstd"
)

// Shared zstd coders. EncodeAll and DecodeAll are safe for concurrent use.
var (
	coderOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	coderErr  error
)

func coders() (*zstd.Encoder, *zstd.Decoder, error) {
	coderOnce.Do(func() {
		encoder, coderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if coderErr != nil {
			return
		}
		decoder, coderErr = zstd.NewReader(nil)
	})
	return encoder, decoder, coderErr
}

// encodePayload serializes an entry to compressed JSON.
func encodePayload(e *Entry) ([]byte, error) {
	enc, _, err := coders()
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// decodePayload reverses encodePayload.
func decodePayload(payload []byte) (*Entry, error) {
	_, dec, err := coders()
	if err != nil {
		return nil, fmt.Errorf("init zstd: %w", err)
	}
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	if e.Chat == nil {
		e.Chat = []analysis.Turn{}
	}
	return &e, nil
}
