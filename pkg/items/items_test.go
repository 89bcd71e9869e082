package items

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDCategoryAndValue(t *testing.T) {
	id := NewID(CategoryGoods, 9030)
	assert.Equal(t, CategoryGoods, id.Category())
	assert.Equal(t, uint32(9030), id.Value())

	id = NewID(CategoryWeapon, 23010001)
	assert.Equal(t, CategoryWeapon, id.Category())
	assert.Equal(t, uint32(23010001), id.Value())
}

func TestIsSynthetic(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		want bool
	}{
		{name: "vanilla weapon", id: NewID(CategoryWeapon, 23010000), want: false},
		{name: "synthetic weapon", id: NewID(CategoryWeapon, 23010001), want: true},
		{name: "vanilla protector", id: NewID(CategoryProtector, 99003000), want: false},
		{name: "synthetic protector", id: NewID(CategoryProtector, 99003100), want: true},
		{name: "vanilla accessory", id: NewID(CategoryAccessory, 3780000), want: false},
		{name: "synthetic accessory", id: NewID(CategoryAccessory, 3780001), want: true},
		{name: "vanilla good", id: NewID(CategoryGoods, 100), want: false},
		{name: "synthetic good", id: NewID(CategoryGoods, 3790000), want: true},
		{name: "unrecognized category", id: ID(0x30000001), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.IsSynthetic())
		})
	}
}

func TestPackLocationID(t *testing.T) {
	assert.Equal(t, int64(42), PackLocationID(42, 0))
	assert.Equal(t, int64(1)<<32+int64(7), PackLocationID(7, 1))
}
