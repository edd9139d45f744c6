package redis

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Stored values carry a one byte header describing the encoding
const (
	valueRaw  byte = 'r'
	valueZstd byte = 'z'
)

// initializeCodec creates the shared zstd encoder and decoder. Both are
// used only through EncodeAll/DecodeAll, which are safe for concurrent use.
func (m *Manager) initializeCodec() error {
	if !m.config.LargeValue.EnableCompression {
		return nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return err
	}
	m.encoder = enc
	m.decoder = dec
	return nil
}

// encodeValue prefixes the header and compresses values above the
// configured threshold when that makes them smaller
func (m *Manager) encodeValue(value []byte) []byte {
	threshold := m.config.LargeValue.CompressThreshold
	if m.encoder != nil && len(value) > threshold {
		out := make([]byte, 1, len(value)/2+1)
		out[0] = valueZstd
		out = m.encoder.EncodeAll(value, out)
		if len(out) < len(value)+1 {
			m.metrics.RecordCompression(uint64(len(value) + 1 - len(out)))
			return out
		}
	}

	out := make([]byte, len(value)+1)
	out[0] = valueRaw
	copy(out[1:], value)
	return out
}

// decodeValue strips the header and decompresses if needed
func (m *Manager) decodeValue(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrCorruptValue)
	}
	switch raw[0] {
	case valueRaw:
		return raw[1:], nil
	case valueZstd:
		if m.decoder == nil {
			// values compressed by another instance with compression on
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
			}
			defer dec.Close()
			return decodeZstd(dec, raw[1:])
		}
		return decodeZstd(m.decoder, raw[1:])
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrCorruptValue, raw[0])
	}
}

func decodeZstd(dec *zstd.Decoder, data []byte) ([]byte, error) {
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
	}
	return out, nil
}
