package analyzers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfileJSON = `{
  "analyzer_profile": {
    "id": "janitza-umg96",
    "vendor": "Janitza",
    "model": "UMG 96-S2",
    "version": "1.0"
  },
  "connection": {
    "protocol": "modbus_tcp",
    "port": 502,
    "unit_id": 1,
    "poll_interval_ms": 1000,
    "timeout_ms": 2000
  },
  "registers": [
    {
      "name": "voltage_l1",
      "label": "Spannung L1",
      "address": 19000,
      "data_type": "float32",
      "byte_order": "ABCD",
      "scale": 1.0,
      "decimal_places": 1,
      "access": "read_only",
      "unit": "V"
    }
  ]
}`

const validProfileYAML = `analyzer_profile:
  id: siemens-pac3200
  vendor: Siemens
  model: PAC3200
  version: "1.0"
connection:
  protocol: modbus_tcp
  port: 502
  unit_id: 2
  poll_interval_ms: 500
registers:
  - name: active_power
    label: Wirkleistung
    address: 2
    data_type: float32
    byte_order: ABCD
    scale: 1.0
    decimal_places: 0
    access: read_only
    unit: W
`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadJSONProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "janitza/umg96.json", validProfileJSON)

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	profile, err := loader.Load("janitza/umg96")
	require.NoError(t, err)

	assert.Equal(t, "Janitza", profile.Profile.Vendor)
	assert.Equal(t, 502, profile.Connection.Port)
	require.Len(t, profile.Registers, 1)
	assert.Equal(t, "voltage_l1", profile.Registers[0].Name)
	assert.Equal(t, uint32(19000), profile.Registers[0].Address)
}

func TestLoadYAMLProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "siemens/pac3200.yaml", validProfileYAML)

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	profile, err := loader.Load("siemens/pac3200")
	require.NoError(t, err)

	assert.Equal(t, "PAC3200", profile.Profile.Model)
	require.Len(t, profile.Registers, 1)
	assert.Equal(t, "active_power", profile.Registers[0].Name)
}

func TestLoadCachesProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "janitza/umg96.json", validProfileJSON)

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	first, err := loader.Load("janitza/umg96")
	require.NoError(t, err)

	// Datei löschen: der Cache muss den zweiten Load bedienen
	require.NoError(t, os.Remove(filepath.Join(dir, "janitza/umg96.json")))

	second, err := loader.Load("janitza/umg96")
	require.NoError(t, err)
	assert.Same(t, first, second)

	loader.ClearCache()
	_, err = loader.Load("janitza/umg96")
	assert.Error(t, err)
}

func TestLoadMissingProfile(t *testing.T) {
	loader, err := NewProfileLoader([]string{t.TempDir()})
	require.NoError(t, err)

	_, err = loader.Load("does/not-exist")
	assert.ErrorContains(t, err, "profile not found")
}

func TestValidatorRejectsInvalidProfiles(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile string
	}{
		{"missing registers", `{"analyzer_profile":{"id":"x","vendor":"v","model":"m","version":"1"},"connection":{"protocol":"modbus_tcp","port":502,"unit_id":1}}`},
		{"bad data type", `{"analyzer_profile":{"id":"x","vendor":"v","model":"m","version":"1"},"connection":{"protocol":"modbus_tcp","port":502,"unit_id":1},"registers":[{"name":"a","address":1,"data_type":"float128"}]}`},
		{"bad byte order", `{"analyzer_profile":{"id":"x","vendor":"v","model":"m","version":"1"},"connection":{"protocol":"modbus_tcp","port":502,"unit_id":1},"registers":[{"name":"a","address":1,"data_type":"float32","byte_order":"XYZW"}]}`},
		{"register name uppercase", `{"analyzer_profile":{"id":"x","vendor":"v","model":"m","version":"1"},"connection":{"protocol":"modbus_tcp","port":502,"unit_id":1},"registers":[{"name":"Voltage","address":1,"data_type":"float32"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateProfile([]byte(tt.profile))
			assert.Error(t, err)
		})
	}
}
