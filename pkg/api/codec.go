package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// EncodeFrame кодирует сообщение в JSON. Если compress включен и lz4 кадр
// короче JSON, возвращается сжатый кадр и binary == true.
func EncodeFrame(v any, compress bool) (data []byte, binary bool, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode frame: %w", err)
	}
	if !compress {
		return raw, false, nil
	}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, false, fmt.Errorf("failed to compress frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to compress frame: %w", err)
	}

	if buf.Len() >= len(raw) {
		return raw, false, nil
	}
	return buf.Bytes(), true, nil
}

// DecodeFrame возвращает JSON содержимое кадра, распаковывая бинарные кадры
func DecodeFrame(data []byte, binary bool) ([]byte, error) {
	if !binary {
		return data, nil
	}
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress frame: %w", err)
	}
	return raw, nil
}
