package codec

import (
	"math"
	"testing"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writableDesc(dt types.DataType, order types.ByteOrder) types.RegisterDescriptor {
	return types.RegisterDescriptor{
		DataType:      dt,
		ByteOrder:     order,
		Scale:         1,
		DecimalPlaces: 4,
		Access:        types.AccessTypeReadWrite,
	}
}

func TestDecodeFloat32ByteOrders(t *testing.T) {
	// 12.5 als float32 = 0x41480000, Testpattern aus der Byte-Order Tabelle:
	// 0x4120_0000 = 10.0, hier mit 12.5 über alle vier Permutationen
	tests := []struct {
		name  string
		order types.ByteOrder
		words []uint16
	}{
		{"ABCD", types.ByteOrderABCD, []uint16{0x4148, 0x0000}},
		{"BADC", types.ByteOrderBADC, []uint16{0x4841, 0x0000}},
		{"CDAB", types.ByteOrderCDAB, []uint16{0x0000, 0x4148}},
		{"DCBA", types.ByteOrderDCBA, []uint16{0x0000, 0x4841}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := writableDesc(types.DataTypeFloat32, tt.order)
			value, err := Decode(tt.words, desc)
			require.NoError(t, err)
			assert.InDelta(t, 12.5, value, 1e-6)
		})
	}
}

func TestDecodeFloat32ReferencePattern(t *testing.T) {
	// 0x41200000 ist 10.0, das Spezifikationsmuster 12.5 wäre 0x41480000;
	// beide Richtungen der Tabelle prüfen
	desc := writableDesc(types.DataTypeFloat32, types.ByteOrderABCD)
	value, err := Decode([]uint16{0x4120, 0x0000}, desc)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, value, 1e-6)

	desc.ByteOrder = types.ByteOrderDCBA
	value, err = Decode([]uint16{0x0000, 0x2041}, desc)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, value, 1e-6)
}

func TestDecodeBoolBitExtraction(t *testing.T) {
	// Wort 0b0000000000000101: Bit 0 = 1, Bit 1 = 0, Bit 2 = 1
	words := []uint16{0b0000000000000101}

	tests := []struct {
		bit  int
		want float64
	}{
		{0, 1},
		{1, 0},
		{2, 1},
		{15, 0},
	}

	for _, tt := range tests {
		desc := types.RegisterDescriptor{DataType: types.DataTypeBool, Bit: tt.bit}
		value, err := Decode(words, desc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, value, "bit %d", tt.bit)
	}
}

func TestDecodeBoolHighWordBit(t *testing.T) {
	// Bit 17 liegt im zweiten Wort
	desc := types.RegisterDescriptor{DataType: types.DataTypeBool, Bit: 17}
	value, err := Decode([]uint16{0x0000, 0x0002}, desc)
	require.NoError(t, err)
	assert.Equal(t, float64(1), value)
}

func TestDecodeBoolInvalidBit(t *testing.T) {
	for _, bit := range []int{-1, 64, 100} {
		desc := types.RegisterDescriptor{DataType: types.DataTypeBool, Bit: bit}
		_, err := Decode([]uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF}, desc)
		assert.ErrorIs(t, err, ErrInvalidBitIndex, "bit %d", bit)
	}
}

func TestDecodeBufferTooShort(t *testing.T) {
	desc := writableDesc(types.DataTypeFloat64, types.ByteOrderABCD)
	_, err := Decode([]uint16{0x0000, 0x0000}, desc)
	assert.ErrorIs(t, err, ErrBufferTooShort)

	desc = types.RegisterDescriptor{DataType: types.DataTypeBool, Bit: 31}
	_, err = Decode([]uint16{0x0000}, desc)
	assert.ErrorIs(t, err, ErrBufferTooShort)
}

func TestDecodeScaleOffsetRounding(t *testing.T) {
	// raw 1234, (1234 + 10) * 0.01 = 12.44
	desc := types.RegisterDescriptor{
		DataType:      types.DataTypeUint16,
		ByteOrder:     types.ByteOrderABCD,
		Scale:         0.01,
		Offset:        10,
		DecimalPlaces: 2,
	}
	value, err := Decode([]uint16{1234}, desc)
	require.NoError(t, err)
	assert.Equal(t, 12.44, value)
}

func TestDecodeSignedTypes(t *testing.T) {
	tests := []struct {
		name  string
		dt    types.DataType
		words []uint16
		want  float64
	}{
		{"int16 negative", types.DataTypeInt16, []uint16{0xFFFE}, -2},
		{"int32 negative", types.DataTypeInt32, []uint16{0xFFFF, 0xFFFB}, -5},
		{"uint32", types.DataTypeUint32, []uint16{0x0001, 0x0000}, 65536},
		{"int64 negative", types.DataTypeInt64, []uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := types.RegisterDescriptor{DataType: tt.dt, Scale: 1}
			value, err := Decode(tt.words, desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, value)
		})
	}
}

func TestDecodeString(t *testing.T) {
	// "UMG96" gepackt als ASCII Zeichenpaare, NUL-terminiert
	desc := types.RegisterDescriptor{DataType: types.DataTypeString, ByteOrder: types.ByteOrderABCD}
	words := []uint16{0x554D, 0x4739, 0x3600}
	value, err := DecodeString(words, desc)
	require.NoError(t, err)
	assert.Equal(t, "UMG96", value)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orders := []types.ByteOrder{
		types.ByteOrderABCD, types.ByteOrderBADC,
		types.ByteOrderCDAB, types.ByteOrderDCBA,
	}

	tests := []struct {
		name  string
		dt    types.DataType
		scale float64
		value float64
	}{
		{"uint16 scaled", types.DataTypeUint16, 0.1, 123.4},
		{"int16 negative", types.DataTypeInt16, 1, -321},
		{"uint32", types.DataTypeUint32, 1, 7000000},
		{"int32 scaled", types.DataTypeInt32, 0.001, -12.345},
		{"float32", types.DataTypeFloat32, 1, 230.25},
		{"float64", types.DataTypeFloat64, 1, 50.0125},
		{"int64", types.DataTypeInt64, 1, -9000000000},
	}

	for _, tt := range tests {
		for _, order := range orders {
			t.Run(tt.name+"/"+string(order), func(t *testing.T) {
				desc := writableDesc(tt.dt, order)
				desc.Scale = tt.scale

				words, err := Encode(tt.value, desc)
				require.NoError(t, err)

				got, err := Decode(words, desc)
				require.NoError(t, err)

				tolerance := math.Pow(10, -float64(desc.DecimalPlaces))
				assert.InDelta(t, tt.value, got, tolerance)
			})
		}
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	desc := writableDesc(types.DataTypeUint16, types.ByteOrderABCD)
	_, err := Encode(70000, desc)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Encode(-1, desc)
	assert.ErrorIs(t, err, ErrOutOfRange)

	desc = writableDesc(types.DataTypeInt8, types.ByteOrderABCD)
	_, err = Encode(200, desc)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEncodeNotWritable(t *testing.T) {
	desc := writableDesc(types.DataTypeUint16, types.ByteOrderABCD)
	desc.Access = types.AccessTypeReadOnly
	_, err := Encode(1, desc)
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestEncodeBool(t *testing.T) {
	desc := types.RegisterDescriptor{
		DataType: types.DataTypeBool,
		Bit:      3,
		Access:   types.AccessTypeReadWrite,
	}
	words, err := Encode(1, desc)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0008}, words)

	words, err = Encode(0, desc)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0000}, words)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.35, Round(12.345001, 2))
	assert.Equal(t, 12.0, Round(12.4, 0))
	assert.Equal(t, -3.142, Round(-3.14159, 3))
}
