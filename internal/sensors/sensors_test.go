package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/apavital/internal/models"
)

type staticSource struct {
	snap *models.Snapshot
	ok   bool
}

func (s staticSource) Snapshot() (*models.Snapshot, bool) { return s.snap, s.ok }

var readingTime = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Index:        100.5,
		DailyDelta:   0.5,
		ReadingTime:  readingTime,
		MeterSerial:  "AB123",
		Hourly:       0.02,
		Today:        0.3,
		Weekly:       1.2,
		Monthly:      4.8,
		LeakDetected: false,
	}
}

func TestAccessorsUnavailableWithoutSnapshot(t *testing.T) {
	src := staticSource{}

	_, ok := TotalIndex(src)
	assert.False(t, ok)
	_, ok = DailyDelta(src)
	assert.False(t, ok)
	_, ok = LastReading(src)
	assert.False(t, ok)
	_, ok = MeterSerial(src)
	assert.False(t, ok)

	for _, st := range States(src) {
		assert.False(t, st.Available, st.Key)
		assert.Nil(t, st.Value, st.Key)
	}
}

func TestAccessors(t *testing.T) {
	src := staticSource{snap: sampleSnapshot(), ok: true}

	idx, ok := TotalIndex(src)
	require.True(t, ok)
	assert.Equal(t, 100.5, idx)

	delta, ok := DailyDelta(src)
	require.True(t, ok)
	assert.Equal(t, 0.5, delta)

	ts, ok := LastReading(src)
	require.True(t, ok)
	assert.Equal(t, readingTime, ts)

	serial, ok := MeterSerial(src)
	require.True(t, ok)
	assert.Equal(t, "AB123", serial)
}

func TestEmptySnapshot(t *testing.T) {
	src := staticSource{snap: &models.Snapshot{Empty: true, Average: 1}, ok: true}

	_, ok := TotalIndex(src)
	assert.False(t, ok)
	st, err := StateOf(src, KeyLeak)
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestStates(t *testing.T) {
	src := staticSource{snap: sampleSnapshot(), ok: true}

	states := States(src)
	require.Len(t, states, len(Descriptions))

	byKey := map[string]State{}
	for _, st := range states {
		byKey[st.Key] = st
	}
	assert.Equal(t, 100.5, byKey[KeyIndex].Value)
	assert.Equal(t, "m³", byKey[KeyIndex].Unit)
	assert.Equal(t, "2024-01-15T14:00:00Z", byKey[KeyLastReading].Value)
	assert.Equal(t, false, byKey[KeyLeak].Value)
	assert.True(t, byKey[KeyMonthly].Available)
}

func TestStateOf(t *testing.T) {
	src := staticSource{snap: sampleSnapshot(), ok: true}

	st, err := StateOf(src, KeyMeterSerial)
	require.NoError(t, err)
	assert.Equal(t, "AB123", st.Value)
	assert.True(t, st.Available)

	_, err = StateOf(src, "water_yearly")
	assert.ErrorIs(t, err, ErrUnknownSensor)
}

func TestCoreSensorsComeFirst(t *testing.T) {
	keys := []string{KeyIndex, KeyDaily, KeyLastReading, KeyMeterSerial}
	for i, k := range keys {
		assert.Equal(t, k, Descriptions[i].Key)
	}
	d, ok := Lookup(KeyMeterSerial)
	require.True(t, ok)
	assert.False(t, d.EnabledByDefault)
}
