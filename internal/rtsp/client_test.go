package rtsp

import (
	"testing"

	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPlayRejectsBadURL(t *testing.T) {
	var events []Event
	c := NewClient(zerolog.Nop(), func(e Event) { events = append(events, e) })

	err := c.Play("http://camera/stream")
	require.Error(t, err)
	require.Len(t, events, 1)
	require.Equal(t, StatusError, events[0].Status)
	require.Equal(t, StatusError, c.Status())
}

func TestStopIdleAndClose(t *testing.T) {
	var events []Event
	c := NewClient(zerolog.Nop(), func(e Event) { events = append(events, e) })

	c.Stop()
	require.Empty(t, events, "stopping an idle client reports nothing")
	require.Equal(t, StatusStopped, c.Status())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
	require.Error(t, c.Play("rtsp://127.0.0.1:1/live"))
}

func TestFindVideo(t *testing.T) {
	audio := &description.Media{Type: description.MediaTypeAudio, Formats: []format.Format{&format.G711{}}}
	mjpeg := &description.Media{Type: description.MediaTypeVideo, Formats: []format.Format{&format.MJPEG{}}}
	h265 := &description.Media{Type: description.MediaTypeVideo, Formats: []format.Format{&format.H265{PayloadTyp: 97}}}
	h264 := &description.Media{Type: description.MediaTypeVideo, Formats: []format.Format{&format.H264{PayloadTyp: 96}}}

	require.Same(t, h264, findVideo(&description.Session{Medias: []*description.Media{audio, mjpeg, h265, h264}}))

	// only H264 is relayed to the browser
	require.Nil(t, findVideo(&description.Session{Medias: []*description.Media{audio, mjpeg}}))
	require.Nil(t, findVideo(&description.Session{Medias: []*description.Media{h265}}))
	require.Nil(t, findVideo(&description.Session{Medias: []*description.Media{audio}}))
}
