package audio

import (
	"sync"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

type Kind string

const (
	KindDisplay    Kind = "display"
	KindMicrophone Kind = "microphone"
)

// Source is an ordered stream of opaque audio chunks.
type Source interface {
	Kind() Kind
	MediaType() string
	HasAudio() bool
	Chunks() <-chan models.AudioChunk
	Close() error
}

// ChannelSource is fed by a transport (the websocket handler) with Push.
type ChannelSource struct {
	kind      Kind
	mediaType string
	hasAudio  bool

	mu     sync.Mutex
	closed bool
	ch     chan models.AudioChunk
}

func NewChannelSource(kind Kind, mediaType string, hasAudio bool, buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSource{kind: kind, mediaType: mediaType, hasAudio: hasAudio, ch: make(chan models.AudioChunk, buffer)}
}

func (s *ChannelSource) Kind() Kind                       { return s.kind }
func (s *ChannelSource) MediaType() string                { return s.mediaType }
func (s *ChannelSource) HasAudio() bool                   { return s.hasAudio }
func (s *ChannelSource) Chunks() <-chan models.AudioChunk { return s.ch }

// Push hands one chunk to the reader. It returns false when the source is
// closed or the reader is too slow.
func (s *ChannelSource) Push(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- models.AudioChunk{Data: data, MediaType: s.mediaType, ReceivedAt: time.Now()}:
		return true
	default:
		return false
	}
}

func (s *ChannelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Select prefers the primary source and falls back to the secondary one
// (a microphone) when the primary carries no audio track.
func Select(primary, fallback Source) (Source, error) {
	const op = "audio.Select"

	if primary != nil && primary.HasAudio() {
		if fallback != nil {
			_ = fallback.Close()
		}
		return primary, nil
	}
	if primary != nil {
		_ = primary.Close()
	}
	if fallback != nil && fallback.HasAudio() {
		return fallback, nil
	}
	if fallback != nil {
		_ = fallback.Close()
	}
	return nil, utils.E(utils.CodeNoAudioSource, op, "neither the shared screen nor the microphone has an audio track", nil)
}
