package energy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolarfund_Energy_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			raw  string
			want Reading
		}{
			{
				name: "numeric timestamp",
				raw:  `{"device_id":"sensor-001","energy":25.4531,"timestamp":1764460076}`,
				want: Reading{DeviceID: "sensor-001", Energy: 25.453, Timestamp: 1764460076},
			},
			{
				name: "fractional timestamp is floored",
				raw:  `{"device_id":"sensor-001","energy":1,"timestamp":1764460076.9}`,
				want: Reading{DeviceID: "sensor-001", Energy: 1, Timestamp: 1764460076},
			},
			{
				name: "rfc3339 timestamp",
				raw:  `{"device_id":"sensor-001","energy":2.5,"timestamp":"2025-11-30T00:00:00Z"}`,
				want: Reading{DeviceID: "sensor-001", Energy: 2.5, Timestamp: 1764460800},
			},
			{
				name: "date only timestamp",
				raw:  `{"device_id":"sensor-001","energy":0,"timestamp":"2025-11-30"}`,
				want: Reading{DeviceID: "sensor-001", Energy: 0, Timestamp: 1764460800},
			},
			{
				name: "device id is trimmed",
				raw:  `{"device_id":"  sensor-002 ","energy":-3.2,"timestamp":10}`,
				want: Reading{DeviceID: "sensor-002", Energy: -3.2, Timestamp: 10},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				got, err := Normalize([]byte(tt.raw))
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			raw  string
			want string
		}{
			{"not json", `nope`, msgNotObject},
			{"array", `[1,2]`, msgNotObject},
			{"null", `null`, msgNotObject},
			{"missing device", `{"energy":1,"timestamp":1}`, msgDeviceID},
			{"blank device", `{"device_id":"  ","energy":1,"timestamp":1}`, msgDeviceID},
			{"numeric device", `{"device_id":7,"energy":1,"timestamp":1}`, msgDeviceID},
			{"missing energy", `{"device_id":"a","timestamp":1}`, msgEnergy},
			{"string energy", `{"device_id":"a","energy":"12","timestamp":1}`, msgEnergy},
			{"missing timestamp", `{"device_id":"a","energy":1}`, msgMissingTime},
			{"null timestamp", `{"device_id":"a","energy":1,"timestamp":null}`, msgMissingTime},
			{"garbage timestamp", `{"device_id":"a","energy":1,"timestamp":"yesterday"}`, msgInvalidTimeForm},
			{"bool timestamp", `{"device_id":"a","energy":1,"timestamp":true}`, msgInvalidTimeForm},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				_, err := Normalize([]byte(tt.raw))
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, tt.want, verr.Message)
			})
		}
	})
}

func TestSolarfund_Energy_Grants(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Grants(0))
	require.Equal(t, "", Grants(9))
	require.Equal(t, "granted 1 hours of free green zone parking", Grants(10))
	require.Equal(t, "granted 3 hours of free green zone parking", Grants(33))
}
