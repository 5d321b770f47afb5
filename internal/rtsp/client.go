package rtsp

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Status of the video stream
type Status string

const (
	StatusPlaying Status = "playing"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// ErrNoVideo means the stream has no H264 track, the only codec relayed
var ErrNoVideo = errors.New("rtsp: no H264 video track in stream")

// Event is reported on every status change
type Event struct {
	Status Status
	URL    string
	Err    error
}

// Client pulls one camera stream over RTSP/TCP and hands out raw RTP
// packets. The URL can be replaced while running.
type Client struct {
	log      zerolog.Logger
	rtpChan  chan []byte
	done     chan struct{}
	onStatus func(Event)

	mu      sync.Mutex
	url     string
	client  *gortsplib.Client
	stopCh  chan struct{}
	status  Status
	closed  bool
	backoff time.Duration
}

// NewClient creates an idle client
func NewClient(log zerolog.Logger, onStatus func(Event)) *Client {
	return &Client{
		log:      log,
		rtpChan:  make(chan []byte, 500),
		done:     make(chan struct{}),
		onStatus: onStatus,
		status:   StatusStopped,
		backoff:  30 * time.Second,
	}
}

// ValidateURL reports whether u is a usable rtsp:// URL
func ValidateURL(u string) error {
	_, err := base.ParseURL(u)
	return err
}

// Play connects to url, replacing any current stream. Connection errors
// are returned and also reported as StatusError; reconnects continue in
// the background until Stop.
func (c *Client) Play(url string) error {
	if err := ValidateURL(url); err != nil {
		c.report(StatusError, url, err)
		return err
	}

	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("rtsp: client closed")
	}
	stopCh := make(chan struct{})
	c.url = url
	c.stopCh = stopCh
	c.mu.Unlock()

	if err := c.connect(url, stopCh); err != nil {
		c.report(StatusError, url, err)
		go c.reconnect(url, stopCh)
		return err
	}
	return nil
}

// URL returns the stream currently requested
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Status returns the last reported status
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) connect(url string, stopCh chan struct{}) error {
	client := &gortsplib.Client{
		// interleaved TCP, cameras behind NAT rarely pass UDP
		Transport: func() *gortsplib.Transport {
			t := gortsplib.TransportTCP
			return &t
		}(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		OnDecodeError: func(err error) {
			c.log.Debug().Err(err).Msg("[rtsp] decode")
		},
	}

	u, err := base.ParseURL(url)
	if err != nil {
		return err
	}

	if err = client.Start(u.Scheme, u.Host); err != nil {
		return err
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return err
	}

	media := findVideo(desc)
	if media == nil {
		client.Close()
		return ErrNoVideo
	}

	if _, err = client.Setup(desc.BaseURL, media, 0, 0); err != nil {
		client.Close()
		return err
	}

	client.OnPacketRTPAny(func(_ *description.Media, _ format.Format, pkt *rtp.Packet) {
		buf, err := pkt.Marshal()
		if err != nil {
			return
		}

		select {
		case c.rtpChan <- buf:
		case <-stopCh:
		default:
			// slow consumer, drop
		}
	})

	if _, err = client.Play(nil); err != nil {
		client.Close()
		return err
	}

	c.mu.Lock()
	select {
	case <-stopCh:
		c.mu.Unlock()
		client.Close()
		return errors.New("rtsp: stopped while connecting")
	default:
	}
	c.client = client
	c.mu.Unlock()

	c.report(StatusPlaying, url, nil)
	go c.monitor(client, url, stopCh)
	return nil
}

// findVideo returns the first H264 media. Other codecs would reach the
// browser as garbage on the H264 track.
func findVideo(desc *description.Session) *description.Media {
	for _, media := range desc.Medias {
		for _, forma := range media.Formats {
			if _, ok := forma.(*format.H264); ok {
				return media
			}
		}
	}
	return nil
}

func (c *Client) monitor(client *gortsplib.Client, url string, stopCh chan struct{}) {
	err := client.Wait()

	select {
	case <-stopCh:
		return
	default:
	}

	c.report(StatusError, url, err)
	c.reconnect(url, stopCh)
}

// reconnect retries with exponential backoff until connected or stopped
func (c *Client) reconnect(url string, stopCh chan struct{}) {
	for attempt := 1; ; attempt++ {
		delay := min(time.Duration(1<<uint(min(attempt-1, 10)))*time.Second, c.backoff)
		c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("[rtsp] reconnect")

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(url, stopCh); err != nil {
			c.log.Warn().Err(err).Msg("[rtsp] reconnect failed")
			continue
		}
		return
	}
}

// RTPChannel returns the packet stream shared by all viewers. It is never
// closed; readers also watch Done.
func (c *Client) RTPChannel() <-chan []byte {
	return c.rtpChan
}

// Done is closed by Close
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stop ends the current stream; the client can Play again
func (c *Client) Stop() {
	c.mu.Lock()
	stopCh, client, url := c.stopCh, c.client, c.url
	c.stopCh = nil
	c.client = nil
	c.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	if client != nil {
		client.Close()
	}
	c.report(StatusStopped, url, nil)
}

// Close stops the stream for good
func (c *Client) Close() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}

func (c *Client) report(status Status, url string, err error) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Str("status", string(status)).Msg("[rtsp] status")
	} else {
		c.log.Info().Str("url", url).Str("status", string(status)).Msg("[rtsp] status")
	}

	if c.onStatus != nil {
		c.onStatus(Event{Status: status, URL: url, Err: err})
	}
}
