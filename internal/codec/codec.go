package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
)

// Codec Fehler - immer fatal für den einzelnen Decode/Encode Call,
// wird nie automatisch retried
var (
	ErrBufferTooShort  = errors.New("buffer too short")
	ErrInvalidBitIndex = errors.New("invalid bit index")
	ErrOutOfRange      = errors.New("value out of range")
	ErrNotWritable     = errors.New("register not writable")
	ErrUnsupportedType = errors.New("unsupported data type")
)

// Decode übersetzt rohe 16-bit Registerworte in einen Engineering-Unit Wert.
// Numerische Werte (außer bool) werden mit (raw + offset) * scale umgerechnet
// und auf DecimalPlaces gerundet. Booleans werden nie skaliert.
func Decode(words []uint16, desc types.RegisterDescriptor) (float64, error) {
	if desc.DataType == types.DataTypeBool {
		return decodeBool(words, desc)
	}

	need := desc.DataType.WordCount()
	if len(words) < need {
		return 0, fmt.Errorf("%w: need %d words, got %d", ErrBufferTooShort, need, len(words))
	}

	buf := orderBytes(words[:need], desc.EffectiveByteOrder())

	var raw float64
	switch desc.DataType {
	case types.DataTypeUint8:
		raw = float64(buf[1])
	case types.DataTypeInt8:
		raw = float64(int8(buf[1]))
	case types.DataTypeUint16:
		raw = float64(binary.BigEndian.Uint16(buf))
	case types.DataTypeInt16:
		raw = float64(int16(binary.BigEndian.Uint16(buf)))
	case types.DataTypeUint32:
		raw = float64(binary.BigEndian.Uint32(buf))
	case types.DataTypeInt32:
		raw = float64(int32(binary.BigEndian.Uint32(buf)))
	case types.DataTypeUint64:
		raw = float64(binary.BigEndian.Uint64(buf))
	case types.DataTypeInt64:
		raw = float64(int64(binary.BigEndian.Uint64(buf)))
	case types.DataTypeFloat32:
		raw = float64(math.Float32frombits(binary.BigEndian.Uint32(buf)))
	case types.DataTypeFloat64:
		raw = math.Float64frombits(binary.BigEndian.Uint64(buf))
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, desc.DataType)
	}

	value := (raw + desc.Offset) * desc.EffectiveScale()
	return Round(value, desc.DecimalPlaces), nil
}

// decodeBool extrahiert ein einzelnes Bit aus dem Statuswort.
// Bit 0 = LSB. Statusworte werden in natürlicher Wortreihenfolge gelesen,
// Byte-Order Permutationen gelten nur für numerische Werte.
func decodeBool(words []uint16, desc types.RegisterDescriptor) (float64, error) {
	if desc.Bit < 0 || desc.Bit > 63 {
		return 0, fmt.Errorf("%w: bit %d", ErrInvalidBitIndex, desc.Bit)
	}

	need := desc.Bit/16 + 1
	if len(words) < need {
		return 0, fmt.Errorf("%w: need %d words for bit %d, got %d",
			ErrBufferTooShort, need, desc.Bit, len(words))
	}

	// Wort das das Bit enthält, LSB-first über die Wortfolge
	word := words[desc.Bit/16]
	if word>>(uint(desc.Bit)%16)&1 == 1 {
		return 1, nil
	}
	return 0, nil
}

// DecodeString interpretiert die Wortfolge als gepackte ASCII Zeichenpaare
func DecodeString(words []uint16, desc types.RegisterDescriptor) (string, error) {
	if desc.DataType != types.DataTypeString {
		return "", fmt.Errorf("%w: %s is not string", ErrUnsupportedType, desc.DataType)
	}
	if len(words) == 0 {
		return "", ErrBufferTooShort
	}

	buf := orderBytes(words, desc.EffectiveByteOrder())

	var sb strings.Builder
	for _, b := range buf {
		if b == 0 {
			break
		}
		sb.WriteByte(b)
	}
	return strings.TrimRight(sb.String(), " "), nil
}

// Encode ist die Umkehrung von Decode für beschreibbare Register:
// raw = value/scale - offset, auf den nächsten darstellbaren Integer
// gerundet und per Byte-Order Tabelle gepackt.
func Encode(value float64, desc types.RegisterDescriptor) ([]uint16, error) {
	if desc.Access != types.AccessTypeReadWrite {
		return nil, fmt.Errorf("%w: register is %s", ErrNotWritable, desc.Access)
	}

	if desc.DataType == types.DataTypeBool {
		return encodeBool(value, desc)
	}

	raw := value/desc.EffectiveScale() - desc.Offset

	buf := make([]byte, desc.DataType.WordCount()*2)
	switch desc.DataType {
	case types.DataTypeUint8:
		n, err := roundToUint(raw, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(buf, uint16(n))
	case types.DataTypeInt8:
		n, err := roundToInt(raw, math.MinInt8, math.MaxInt8)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(buf, uint16(uint8(n)))
	case types.DataTypeUint16:
		n, err := roundToUint(raw, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(buf, uint16(n))
	case types.DataTypeInt16:
		n, err := roundToInt(raw, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(buf, uint16(int16(n)))
	case types.DataTypeUint32:
		n, err := roundToUint(raw, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(buf, uint32(n))
	case types.DataTypeInt32:
		n, err := roundToInt(raw, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
	case types.DataTypeUint64:
		if raw < 0 || raw > math.MaxUint64 {
			return nil, fmt.Errorf("%w: %v does not fit uint64", ErrOutOfRange, raw)
		}
		binary.BigEndian.PutUint64(buf, uint64(math.Round(raw)))
	case types.DataTypeInt64:
		if raw < math.MinInt64 || raw > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %v does not fit int64", ErrOutOfRange, raw)
		}
		binary.BigEndian.PutUint64(buf, uint64(int64(math.Round(raw))))
	case types.DataTypeFloat32:
		if !math.IsInf(raw, 0) && math.Abs(raw) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %v does not fit float32", ErrOutOfRange, raw)
		}
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(raw)))
	case types.DataTypeFloat64:
		binary.BigEndian.PutUint64(buf, math.Float64bits(raw))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, desc.DataType)
	}

	// Alle vier Permutationen sind Involutionen, dieselbe Umordnung
	// funktioniert für beide Richtungen
	return bytesToWords(applyOrder(buf, desc.EffectiveByteOrder())), nil
}

func encodeBool(value float64, desc types.RegisterDescriptor) ([]uint16, error) {
	if desc.Bit < 0 || desc.Bit > 15 {
		return nil, fmt.Errorf("%w: writable bit must be in word 0, got %d", ErrInvalidBitIndex, desc.Bit)
	}
	var word uint16
	if value != 0 {
		word = 1 << uint(desc.Bit)
	}
	return []uint16{word}, nil
}

func roundToInt(raw, min, max float64) (int64, error) {
	n := math.Round(raw)
	if n < min || n > max {
		return 0, fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, raw, min, max)
	}
	return int64(n), nil
}

func roundToUint(raw, max float64) (uint64, error) {
	n := math.Round(raw)
	if n < 0 || n > max {
		return 0, fmt.Errorf("%w: %v not in [0, %v]", ErrOutOfRange, raw, max)
	}
	return uint64(n), nil
}

// orderBytes legt die Registerworte als Bytefolge in der konfigurierten
// Reihenfolge ab. Referenz-Layout ist ABCD: word1 = high, big-endian Bytes.
//
//	ABCD: A B C D    (high word zuerst)
//	BADC: B A D C    (Bytes je Wort getauscht)
//	CDAB: C D A B    (Worte getauscht)
//	DCBA: D C B A    (komplett gespiegelt)
func orderBytes(words []uint16, order types.ByteOrder) []byte {
	buf := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[i*2:], w)
	}
	return applyOrder(buf, order)
}

func applyOrder(buf []byte, order types.ByteOrder) []byte {
	out := make([]byte, len(buf))
	switch order {
	case types.ByteOrderBADC:
		for i := 0; i < len(buf); i += 2 {
			out[i], out[i+1] = buf[i+1], buf[i]
		}
	case types.ByteOrderCDAB:
		for i := 0; i < len(buf); i += 2 {
			j := len(buf) - 2 - i
			out[j], out[j+1] = buf[i], buf[i+1]
		}
	case types.ByteOrderDCBA:
		for i := range buf {
			out[len(buf)-1-i] = buf[i]
		}
	default: // ABCD
		copy(out, buf)
	}
	return out
}

func bytesToWords(buf []byte) []uint16 {
	words := make([]uint16, len(buf)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(buf[i*2:])
	}
	return words
}

// Round rundet auf die gegebene Anzahl Nachkommastellen
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
