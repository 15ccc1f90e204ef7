package protocol

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	flagRaw  uint8 = 0x00
	flagZstd uint8 = 0x01

	// Снапшоты короче порога уходят без сжатия: на маленьких
	// датаграммах заголовок zstd съедает весь выигрыш.
	compressThreshold = 512
)

var (
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
)

func init() {
	var err error
	compressor, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("не удалось создать zstd-компрессор: %v", err))
	}
	decompressor, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать zstd-декомпрессор: %v", err))
	}
}

func compressPayload(data []byte) []byte {
	return compressor.EncodeAll(data, nil)
}

func decompressPayload(data []byte) ([]byte, error) {
	out, err := decompressor.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось распаковать снапшот: %w", err)
	}
	return out, nil
}
