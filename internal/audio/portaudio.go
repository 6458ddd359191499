package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/live-classify/internal/config"
	"github.com/rs/zerolog"
)

// framesPerBuffer is the number of frames read from the device at a time.
const framesPerBuffer = 512

type portAudioCapture struct {
	log zerolog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// New creates a new PortAudio-based audio capture
func New(cfg config.AudioConfig, log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{
		log: log.With().Str("component", "audio").Logger(),
	}, nil
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error {
	device, err := findDevice(deviceID)
	if err != nil {
		return err
	}

	// Stereo devices are downmixed; more channels than that are not opened
	channels := device.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		return fmt.Errorf("device has no input channels: %s", device.Name)
	}

	// Interleaved float32 buffer
	buffer := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, buffer)

	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()

	p.log.Info().
		Str("device", device.Name).
		Int("channels", channels).
		Int("sample_rate", sampleRate).
		Msg("Microphone started")

	// Read loop
	go func() {
		defer func() {
			p.mu.Lock()
			if p.stream == stream {
				stream.Close()
				p.stream = nil
			}
			p.mu.Unlock()
		}()
		dropped := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := stream.Read(); err != nil {
					p.log.Error().Err(err).Msg("Audio read failed")
					return
				}
				samples := downmixInterleaved(buffer, channels, framesPerBuffer)

				select {
				case out <- samples:
				case <-ctx.Done():
					return
				default:
					// Drop if channel full (backpressure)
					dropped++
					if dropped%100 == 1 {
						p.log.Debug().Int("dropped", dropped).Msg("Audio consumer behind, dropping buffers")
					}
				}
			}
		}
	}()

	return nil
}

// findDevice returns the default input device for an empty id, otherwise the
// device whose name matches.
func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

// downmixInterleaved averages interleaved channels into a new mono slice.
func downmixInterleaved(buffer []float32, channels, frames int) []float32 {
	mono := make([]float32, frames)
	if channels <= 1 {
		copy(mono, buffer[:frames])
		return mono
	}

	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += buffer[f*channels+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return p.stream.Stop()
	}
	return nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:       d.Name,
				Name:     d.Name,
				Channels: d.MaxInputChannels,
				Default:  d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	p.mu.Lock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.mu.Unlock()
	return portaudio.Terminate()
}
