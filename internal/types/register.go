package types

import "fmt"

type DataType string

const (
	DataTypeBool    DataType = "bool"
	DataTypeInt8    DataType = "int8"
	DataTypeUint8   DataType = "uint8"
	DataTypeInt16   DataType = "int16"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt32   DataType = "int32"
	DataTypeUint32  DataType = "uint32"
	DataTypeInt64   DataType = "int64"
	DataTypeUint64  DataType = "uint64"
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat64 DataType = "float64"
	DataTypeString  DataType = "string"
)

// WordCount gibt die Anzahl 16-bit Register für den Datentyp zurück
func (d DataType) WordCount() int {
	switch d {
	case DataTypeBool, DataTypeInt8, DataTypeUint8, DataTypeInt16, DataTypeUint16:
		return 1
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 2
	case DataTypeInt64, DataTypeUint64, DataTypeFloat64:
		return 4
	default:
		return 1
	}
}

func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeBool, DataTypeString:
		return false
	default:
		return true
	}
}

// Word/Byte Reihenfolge für Multi-Register Werte
type ByteOrder string

const (
	ByteOrderABCD ByteOrder = "ABCD" // high word first, big-endian bytes
	ByteOrderBADC ByteOrder = "BADC" // high word first, bytes swapped per word
	ByteOrderCDAB ByteOrder = "CDAB" // low word first, big-endian bytes
	ByteOrderDCBA ByteOrder = "DCBA" // fully reversed
)

type AccessType string

const (
	AccessTypeReadOnly  AccessType = "read_only"
	AccessTypeReadWrite AccessType = "read_write"
)

// RegisterDescriptor beschreibt einen physikalischen Messpunkt auf einem
// Analyzer: Adresse, Roh-Encoding und Umrechnung in Engineering Units.
// Ein Trend Log kopiert den Descriptor bei Erstellung, damit spätere
// Register-Änderungen bestehende Logs nicht umdeuten.
type RegisterDescriptor struct {
	Address       uint32     `json:"address" yaml:"address"`
	DataType      DataType   `json:"data_type" yaml:"data_type"`
	ByteOrder     ByteOrder  `json:"byte_order" yaml:"byte_order"`
	Bit           int        `json:"bit,omitempty" yaml:"bit,omitempty"` // nur für bool, 0 = LSB
	Scale         float64    `json:"scale" yaml:"scale"`
	Offset        float64    `json:"offset" yaml:"offset"`
	DecimalPlaces int        `json:"decimal_places" yaml:"decimal_places"`
	Access        AccessType `json:"access" yaml:"access"`
	Unit          string     `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// EffectiveScale behandelt scale=0 als 1.0 (unkonfigurierte Register)
func (r RegisterDescriptor) EffectiveScale() float64 {
	if r.Scale == 0 {
		return 1.0
	}
	return r.Scale
}

func (r RegisterDescriptor) EffectiveByteOrder() ByteOrder {
	if r.ByteOrder == "" {
		return ByteOrderABCD
	}
	return r.ByteOrder
}

// WatchKey ist die Dedup-Identität einer Live-Subscription. Zwei UI-Clients,
// die dasselbe physikalische Register beobachten, teilen sich eine
// Wire-Subscription mit diesem Key.
type WatchKey struct {
	AnalyzerID string    `json:"analyzer_id"`
	Address    uint32    `json:"address"`
	DataType   DataType  `json:"data_type"`
	Scale      float64   `json:"scale"`
	ByteOrder  ByteOrder `json:"byte_order"`
	Bit        int       `json:"bit"`
}

func (k WatchKey) String() string {
	if k.DataType == DataTypeBool {
		return fmt.Sprintf("%s-%d-bit%d", k.AnalyzerID, k.Address, k.Bit)
	}
	return fmt.Sprintf("%s-%d", k.AnalyzerID, k.Address)
}

// NewWatchKey leitet den Key aus Analyzer und Descriptor ab
func NewWatchKey(analyzerID string, desc RegisterDescriptor) WatchKey {
	key := WatchKey{
		AnalyzerID: analyzerID,
		Address:    desc.Address,
		DataType:   desc.DataType,
		Scale:      desc.EffectiveScale(),
		ByteOrder:  desc.EffectiveByteOrder(),
	}
	if desc.DataType == DataTypeBool {
		key.Bit = desc.Bit
	}
	return key
}
