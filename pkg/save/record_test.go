package save

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncodeDecode(t *testing.T) {
	record := NewRecord()
	record.MarkGranted(0)
	record.MarkGranted(1)
	record.MarkGranted(5)
	record.AddLocation(100200)
	record.AddLocation(-42)
	record.SetSeed("seed-abc")

	data, err := record.Encode()
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.GrantedCount())
	assert.True(t, decoded.IsGranted(0))
	assert.True(t, decoded.IsGranted(5))
	assert.False(t, decoded.IsGranted(2))
	assert.Equal(t, []int64{-42, 100200}, decoded.Locations())
	assert.Equal(t, "seed-abc", decoded.Seed())
}

func TestDecodeRecordEmpty(t *testing.T) {
	data, err := NewRecord().Encode()
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.GrantedCount())
	assert.Equal(t, 0, decoded.LocationCount())
	assert.Equal(t, "", decoded.Seed())
}

func TestDecodeRecordCorruption(t *testing.T) {
	record := NewRecord()
	record.MarkGranted(1)
	record.AddLocation(7)
	record.SetSeed("seed")
	valid, err := record.Encode()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated by one byte", data: valid[:len(valid)-1]},
		{name: "empty buffer", data: nil},
		{name: "not zstd", data: []byte("definitely not a record")},
		{name: "trailing garbage", data: append(append([]byte{}, valid...), 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := DecodeRecord(tt.data)
				assert.Error(t, err)
			})
		})
	}
}

func TestSeedMatches(t *testing.T) {
	record := NewRecord()
	assert.False(t, record.SeedMatches("seed"))
	record.SetSeed("seed")
	assert.True(t, record.SeedMatches("seed"))
	assert.False(t, record.SeedMatches("other"))
}

func TestStoreLoadCorruptResetsToEmpty(t *testing.T) {
	store := NewStore(func() bool { return true })
	record := store.Current()
	require.NotNil(t, record)
	record.MarkGranted(3)

	store.Load([]byte("garbage"))
	record = store.Current()
	require.NotNil(t, record)
	assert.Equal(t, 0, record.GrantedCount())
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(func() bool { return true })
	store.Current().MarkGranted(9)
	store.Current().SetSeed("seed-xyz")

	data, ok := store.Save()
	require.True(t, ok)

	fresh := NewStore(func() bool { return true })
	fresh.Load(data)
	assert.True(t, fresh.Current().IsGranted(9))
	assert.Equal(t, "seed-xyz", fresh.Current().Seed())
}

func TestStoreGatedOnLiveness(t *testing.T) {
	active := false
	store := NewStore(func() bool { return active })

	assert.Nil(t, store.Current())
	_, ok := store.Save()
	assert.False(t, ok)

	active = true
	assert.NotNil(t, store.Current())
	_, ok = store.Save()
	assert.True(t, ok)
}
