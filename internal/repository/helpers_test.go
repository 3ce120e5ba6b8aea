package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagridint/slv-extractor/internal/models"
)

var base = time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)

func record(path, name string, event time.Time, values map[models.Metric]float64) models.WideRecord {
	return models.WideRecord{
		GeoZoneNamesPath: path,
		DeviceName:       name,
		EventTime:        event,
		UpdateTime:       event.Add(30 * time.Second),
		Values:           values,
	}
}

func sampleRecords() []models.WideRecord {
	return []models.WideRecord{
		record("Leeds/Headingley", "Lamp 1", base.Add(10*time.Minute), map[models.Metric]float64{
			models.MetricTemperature: 21.5,
			models.MetricEnergy:      1043.25,
		}),
		record("Leeds/Headingley", "Lamp 1", base.Add(2*time.Hour+30*time.Minute), map[models.Metric]float64{
			models.MetricTemperature:  19,
			models.MetricPowerFactor:  0.97,
			models.MetricMainVoltage:  239.8,
			models.MetricCurrent:      0.41,
			models.MetricMeteredPower: 96,
		}),
		record("Leeds/Hyde Park", "Lamp, 2", base.Add(2*time.Hour+45*time.Minute), map[models.Metric]float64{
			models.MetricRunningHoursLamp: 40211,
		}),
	}
}

func assertRecordsEqual(t *testing.T, expected, actual []models.WideRecord) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.Equal(t, expected[i].Key(), actual[i].Key(), "record %d key", i)
		assert.True(t, expected[i].UpdateTime.Equal(actual[i].UpdateTime), "record %d update time", i)
		assert.Equal(t, expected[i].Values, actual[i].Values, "record %d values", i)
	}
}
