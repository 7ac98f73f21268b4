package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

const (
	OpusClockRate   = 48000
	OpusChannels    = 2
	opusPayloadType = 111
	opusFmtpLine    = "minptime=10;useinbandfec=1"
)

// OpusCapability - единственный кодек, который согласуют участники комнаты
var OpusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   OpusClockRate,
	Channels:    OpusChannels,
	SDPFmtpLine: opusFmtpLine,
}

// Factory создает pion соединения с одним набором ICE серверов
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(iceServers []webrtc.ICEServer) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: OpusCapability,
		PayloadType:        opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	// NACK и RTCP отчеты для аудио
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
		),
		config: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

func (f *Factory) NewPeerConnection() (domain.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &peerConnection{pc: pc}, nil
}
