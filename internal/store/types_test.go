package store

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		ID ID `json:"id"`
	}{ID: 1844674407370955161})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1844674407370955161"}`, string(b))

	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{"string", `"42"`, 42, false},
		{"number", `42`, 42, false},
		{"empty string", `""`, 0, false},
		{"null", `null`, 0, false},
		{"garbage", `"abc"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestNewPage(t *testing.T) {
	got := NewPage[QaInfo](nil, 25, 2, 12)
	want := Page[QaInfo]{Records: []QaInfo{}, Total: 25, Current: 2, Size: 12, Pages: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewPage mismatch (-want +got):\n%s", diff)
	}

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"records":[]`)
}

func TestQaQueryOffset(t *testing.T) {
	assert.Equal(t, int64(0), QaQuery{Current: 0, PageSize: 10}.Offset())
	assert.Equal(t, int64(0), QaQuery{Current: 1, PageSize: 10}.Offset())
	assert.Equal(t, int64(20), QaQuery{Current: 3, PageSize: 10}.Offset())
	assert.Positive(t, QaQuery{Current: math.MaxInt64, PageSize: 12}.Offset(), "no overflow")
}

func TestIDGeneratorMonotonic(t *testing.T) {
	g, err := NewIDGenerator(7)
	require.NoError(t, err)

	fixed := time.UnixMilli(epoch + 1000)
	g.now = func() time.Time { return fixed }

	prev := g.Next()
	for i := 0; i < 5000; i++ {
		next := g.Next()
		require.Greater(t, int64(next), int64(prev))
		prev = next
	}

	node := (int64(prev) >> sequenceBits) & maxNode
	assert.Equal(t, int64(7), node)
}

func TestIDGeneratorRejectsBadNode(t *testing.T) {
	_, err := NewIDGenerator(1024)
	assert.Error(t, err)
	_, err = NewIDGenerator(-1)
	assert.Error(t, err)
}
