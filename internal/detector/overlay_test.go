package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/doccapture/internal/vision"
)

func TestOverlay_Snapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	o := NewOverlay(80)
	defer o.Close()

	data, seq, err := o.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, uint64(0), seq)

	frame := gocv.NewMatWithSize(800, 1000, gocv.MatTypeCV8UC3)
	defer frame.Close()

	o.Render(frame, testQuad(0), true)
	o.Render(frame, nil, false)

	data, seq, err = o.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	mat, err := vision.Decode(data)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, 1000, mat.Cols())
	assert.Equal(t, 800, mat.Rows())

	// Rendering must not draw on the caller's frame.
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	assert.Zero(t, gocv.CountNonZero(gray))

	o.Clear()
	data, _, err = o.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, data)
}
