package robot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition_Clamps(t *testing.T) {
	p := NewPosition(-5, 2000, 512, 0, true)
	assert.Equal(t, [NumMotors]int{0, 1023, 512, 0}, p.Motors)
	assert.True(t, p.Magnet)
}

func TestDefaultHome(t *testing.T) {
	assert.Equal(t, Position{Motors: [NumMotors]int{512, 512, 512, 512}}, DefaultHome())
}

func TestPosition_WithMotorsKeepsMagnet(t *testing.T) {
	p := NewPosition(1, 2, 3, 4, true).WithMotors([NumMotors]int{10, 20, 30, 9999})
	assert.Equal(t, [NumMotors]int{10, 20, 30, 1023}, p.Motors)
	assert.True(t, p.Magnet)
}

func TestPosition_ListRoundTrip(t *testing.T) {
	for _, p := range []Position{
		DefaultHome(),
		NewPosition(0, 1023, 7, 900, true),
	} {
		l := p.List()
		got, err := PositionFromList(l[:])
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestPositionFromList(t *testing.T) {
	tests := []struct {
		name    string
		in      []int
		want    Position
		wantErr bool
	}{
		{"valid", []int{100, 200, 300, 400, 1}, NewPosition(100, 200, 300, 400, true), false},
		{"clamped", []int{-1, 1500, 0, 1023, 0}, NewPosition(0, 1023, 0, 1023, false), false},
		{"too short", []int{1, 2, 3, 4}, Position{}, true},
		{"too long", []int{1, 2, 3, 4, 0, 0}, Position{}, true},
		{"bad magnet", []int{1, 2, 3, 4, 2}, Position{}, true},
		{"negative magnet", []int{1, 2, 3, 4, -1}, Position{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositionFromList(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPosition_JSON(t *testing.T) {
	data, err := json.Marshal(NewPosition(1, 2, 3, 4, true))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3,4,1]`, string(data))

	var p Position
	require.NoError(t, json.Unmarshal([]byte(`[512,600,700,800,0]`), &p))
	assert.Equal(t, NewPosition(512, 600, 700, 800, false), p)

	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"motors":[1,2,3,4]}`), &p))
	// failed decodes leave the value alone
	assert.Equal(t, NewPosition(512, 600, 700, 800, false), p)
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "512,512,512,512, MAG=0", DefaultHome().String())
	assert.Equal(t, "1,2,3,4, MAG=1", NewPosition(1, 2, 3, 4, true).String())
}
