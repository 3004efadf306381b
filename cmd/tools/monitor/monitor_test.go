package main

import "testing"

func TestFormatLine(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		want    string
	}{
		{"modbus/dxe007r/measured_psi", "50.24", "modbus/dxe007r/measured_psi 50.24"},
		{
			"homeassistant/sensor/dxe007r_measured_psi/config",
			`{"name":"Measured Psi","unique_id":"dxe007r_measured_psi","state_topic":"modbus/dxe007r/measured_psi","unit_of_measurement":"psi"}`,
			`homeassistant/sensor/dxe007r_measured_psi/config discovery name="Measured Psi" id=dxe007r_measured_psi state=modbus/dxe007r/measured_psi unit=psi`,
		},
		{"homeassistant/sensor/x/config", "not json", "homeassistant/sensor/x/config not json"},
	}
	for _, tt := range tests {
		if got := formatLine(tt.topic, []byte(tt.payload)); got != tt.want {
			t.Errorf("formatLine(%q) =\n%q\nwant\n%q", tt.topic, got, tt.want)
		}
	}
}
