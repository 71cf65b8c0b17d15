package redis

import (
	"fmt"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Job outputs are msgpack encoded and zstd compressed; a state carrying a
// long chat history shrinks considerably.
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil)
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

func encodeState(st *domain.State) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("msgpack encoding failed: %w", err)
	}
	return enc.EncodeAll(raw, nil), nil
}

func decodeState(data []byte) (*domain.State, error) {
	_, dec, err := codec()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	st := &domain.State{}
	if err := msgpack.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("msgpack decoding failed: %w", err)
	}
	return st.Normalize(), nil
}
