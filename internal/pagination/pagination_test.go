package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		rawPage    string
		totalItems int64
		wantNumber int
		wantOffset int
		wantPages  int
	}{
		{"first page by default", "", 25, 1, 0, 3},
		{"explicit page", "2", 25, 2, 10, 3},
		{"last partial page", "3", 25, 3, 20, 3},
		{"non-numeric clamps to one", "abc", 25, 1, 0, 3},
		{"zero clamps to one", "0", 25, 1, 0, 3},
		{"negative clamps to one", "-4", 25, 1, 0, 3},
		{"overshoot clamps to last", "99", 25, 3, 20, 3},
		{"empty set still has one page", "5", 0, 1, 0, 1},
		{"exact multiple", "2", 20, 2, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := New(tt.rawPage, DefaultPerPage, tt.totalItems)
			assert.Equal(t, tt.wantNumber, page.Number)
			assert.Equal(t, tt.wantOffset, page.Offset)
			assert.Equal(t, tt.wantPages, page.TotalPages)
		})
	}
}

func TestThirteenItemsSplitTenThree(t *testing.T) {
	first := New("1", DefaultPerPage, 13)
	assert.Equal(t, 10, first.Size())
	assert.True(t, first.HasNext())
	assert.False(t, first.HasPrev())

	second := New("2", DefaultPerPage, 13)
	assert.Equal(t, 3, second.Size())
	assert.False(t, second.HasNext())
	assert.True(t, second.HasPrev())
}

func TestMeta(t *testing.T) {
	meta := New("2", 10, 25).Meta()
	assert.Equal(t, 2, meta.Page)
	assert.Equal(t, 10, meta.PerPage)
	assert.Equal(t, int64(25), meta.TotalItems)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrev)
}

func TestParsePerPage(t *testing.T) {
	assert.Equal(t, 10, ParsePerPage("", 10, 100))
	assert.Equal(t, 10, ParsePerPage("junk", 10, 100))
	assert.Equal(t, 10, ParsePerPage("0", 10, 100))
	assert.Equal(t, 50, ParsePerPage("50", 10, 100))
	assert.Equal(t, 100, ParsePerPage("500", 10, 100))
}
