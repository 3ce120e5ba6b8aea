package tsdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

type fakeWriter struct {
	batches [][]*write.Point
	err     error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, points)
	return nil
}

var eventTime = time.Date(2016, 5, 1, 10, 15, 0, 0, time.UTC)

func TestRecordToPoint(t *testing.T) {
	r := models.WideRecord{
		GeoZoneNamesPath: "Leeds/Headingley",
		DeviceName:       "Lamp 1",
		EventTime:        eventTime,
		Values: map[models.Metric]float64{
			models.MetricTemperature: 21.5,
			models.MetricEnergy:      1043.25,
		},
	}

	p := recordToPoint(r)

	require.NotNil(t, p)
	assert.Equal(t, Measurement, p.Name())
	assert.True(t, eventTime.Equal(p.Time()))

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"zone": "Leeds/Headingley", "device": "Lamp 1"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]interface{}{"Temperature": 21.5, "Energy": 1043.25}, fields)
}

func TestRecordToPoint_NoValues(t *testing.T) {
	assert.Nil(t, recordToPoint(models.WideRecord{DeviceName: "Lamp 1", EventTime: eventTime}))
}

func TestMirror_WriteBatches(t *testing.T) {
	w := &fakeWriter{}
	m := &Mirror{writer: w, logger: zap.NewNop()}

	records := make([]models.WideRecord, 0, batchSize+2)
	for i := 0; i < batchSize+1; i++ {
		records = append(records, models.WideRecord{
			GeoZoneNamesPath: "Leeds",
			DeviceName:       "Lamp 1",
			EventTime:        eventTime.Add(time.Duration(i) * time.Minute),
			Values:           map[models.Metric]float64{models.MetricCurrent: 0.4},
		})
	}
	records = append(records, models.WideRecord{DeviceName: "Lamp 2", EventTime: eventTime})

	require.NoError(t, m.Write(t.Context(), records))

	require.Len(t, w.batches, 2)
	assert.Len(t, w.batches[0], batchSize)
	assert.Len(t, w.batches[1], 1)
}

func TestMirror_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("unauthorized")}
	m := &Mirror{writer: w, logger: zap.NewNop()}

	err := m.Write(t.Context(), []models.WideRecord{{
		DeviceName: "Lamp 1",
		EventTime:  eventTime,
		Values:     map[models.Metric]float64{models.MetricTemperature: 20},
	}})

	assert.Error(t, err)
}

func TestMirror_CloseWithoutClient(t *testing.T) {
	m := &Mirror{writer: &fakeWriter{}, logger: zap.NewNop()}
	assert.NotPanics(t, m.Close)
}
