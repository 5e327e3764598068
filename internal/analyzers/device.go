package analyzers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/codec"
	"github.com/KevinKickass/OpenEnergyCore/internal/modbus"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
)

// Conn ist die Transportsicht eines Device. *modbus.Client erfüllt das
// Interface; Tests hängen einen Fake dran.
type Conn interface {
	Connect() error
	Close() error
	IsConnected() bool
	ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error)
	WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error
	WriteMultipleRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error
}

// Device ist ein verbundener Analyzer: Transport + Register-Map + Decoder
type Device struct {
	Analyzer    types.Analyzer
	Profile     *types.AnalyzerProfileDefinition
	conn        Conn
	registerMap map[string]*types.NamedRegister
	mu          sync.RWMutex
	lastValues  map[string]float64
	connected   bool
}

func NewDevice(analyzer types.Analyzer, profile *types.AnalyzerProfileDefinition, timeout time.Duration) *Device {
	address := fmt.Sprintf("%s:%d", analyzer.IPAddress, analyzer.Port)
	return newDeviceWithConn(analyzer, profile, modbus.NewClient(address, timeout))
}

func newDeviceWithConn(analyzer types.Analyzer, profile *types.AnalyzerProfileDefinition, conn Conn) *Device {
	registerMap := make(map[string]*types.NamedRegister)
	for i := range profile.Registers {
		reg := &profile.Registers[i]
		registerMap[reg.Name] = reg
	}

	return &Device{
		Analyzer:    analyzer,
		Profile:     profile,
		conn:        conn,
		registerMap: registerMap,
		lastValues:  make(map[string]float64),
	}
}

func (d *Device) Connect() error {
	if err := d.conn.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.Analyzer.Name, err)
	}

	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()

	return nil
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	if err := d.conn.Close(); err != nil {
		return err
	}

	d.connected = false
	return nil
}

func (d *Device) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// LookupRegister liefert den benannten Register-Descriptor aus dem Profil
func (d *Device) LookupRegister(name string) (*types.NamedRegister, bool) {
	reg, exists := d.registerMap[name]
	return reg, exists
}

// wordsNeeded liefert die Anzahl zu lesender 16-bit Register. Bools lesen
// in natürlicher Reihenfolge bis zum Wort, das den Bit-Index enthält.
func wordsNeeded(desc types.RegisterDescriptor) uint16 {
	if desc.DataType == types.DataTypeBool {
		return uint16(desc.Bit/16) + 1
	}
	return uint16(desc.DataType.WordCount())
}

// ReadRegister liest und dekodiert ein benanntes Register
func (d *Device) ReadRegister(ctx context.Context, registerName string) (float64, error) {
	reg, exists := d.registerMap[registerName]
	if !exists {
		return 0, fmt.Errorf("register not found: %s", registerName)
	}

	value, err := d.ReadDescriptor(ctx, reg.RegisterDescriptor)
	if err != nil {
		return 0, fmt.Errorf("failed to read register %s: %w", registerName, err)
	}

	d.mu.Lock()
	d.lastValues[registerName] = value
	d.mu.Unlock()

	return value, nil
}

// ReadDescriptor liest und dekodiert einen beliebigen Descriptor über die
// Verbindung dieses Analyzers
func (d *Device) ReadDescriptor(ctx context.Context, desc types.RegisterDescriptor) (float64, error) {
	words, err := d.conn.ReadHoldingRegisters(ctx,
		uint8(d.Analyzer.UnitID), uint16(desc.Address), wordsNeeded(desc))
	if err != nil {
		return 0, err
	}

	return codec.Decode(words, desc)
}

// WriteRegister enkodiert und schreibt einen Wert in ein benanntes Register
func (d *Device) WriteRegister(ctx context.Context, registerName string, value float64) error {
	reg, exists := d.registerMap[registerName]
	if !exists {
		return fmt.Errorf("register not found: %s", registerName)
	}

	words, err := codec.Encode(value, reg.RegisterDescriptor)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", registerName, err)
	}

	if len(words) == 1 {
		return d.conn.WriteSingleRegister(ctx,
			uint8(d.Analyzer.UnitID), uint16(reg.Address), words[0])
	}
	return d.conn.WriteMultipleRegisters(ctx,
		uint8(d.Analyzer.UnitID), uint16(reg.Address), words)
}

// LastValue liefert den zuletzt gelesenen Wert eines Registers
func (d *Device) LastValue(registerName string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, exists := d.lastValues[registerName]
	return value, exists
}
