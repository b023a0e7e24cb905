package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"0x6080", []byte{0x60, 0x80}, false},
		{"6080", []byte{0x60, 0x80}, false},
		{" 0x00\n", []byte{0x00}, false},
		{"0x", []byte{}, false},
		{"", []byte{}, false},
		{"0x608", nil, true},
		{"0xzz", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMetadataStart(t *testing.T) {
	// STOP + {a1 01 02} + 0x0003
	code := []byte{0x00, 0xa1, 0x01, 0x02, 0x00, 0x03}
	assert.Equal(t, uint64(1), MetadataStart(code))

	assert.Equal(t, uint64(2), MetadataStart([]byte{0x00, 0x00}))
	assert.Equal(t, uint64(0), MetadataStart(nil))
	// 长度超出字节码
	assert.Equal(t, uint64(3), MetadataStart([]byte{0x00, 0xff, 0xff}))
	// 不是 CBOR map
	assert.Equal(t, uint64(6), MetadataStart([]byte{0x00, 0x60, 0x01, 0x02, 0x00, 0x03}))
}

func TestAssemble(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x0c, 0x61, 0xff}
	assert.Equal(t, code, Assemble(Decode(code)))
}
