// Package capability implements the calls the embedded content may make into
// the host.
package capability

import (
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/storage"
	"github.com/jeanpaulrichter/phasorviz/uistate"
)

// DefaultMaxNotice is the exclusive upper bound on notice length in characters.
const DefaultMaxNotice = 128

// Notifier shows a short transient notice.
type Notifier interface {
	Notify(msg string)
}

// Poster delivers affordance transitions to the chrome.
type Poster interface {
	Post(t uistate.Transition)
}

// Saver persists a document.
type Saver interface {
	Save(filename, payload string) (string, error)
}

// Readiness receives the content's ready signal.
type Readiness interface {
	MarkReady() error
}

// Info is the static host description handed to the content.
type Info struct {
	Device      string
	Locale      string
	VersionCode int
}

// Options wires a Surface.
type Options struct {
	Notifier  Notifier
	UI        Poster
	Files     Saver
	Readiness Readiness
	Info      Info
	MaxNotice int
	Logger    *zap.Logger
}

// Surface is the set of host operations exposed to the content. Methods are
// safe for concurrent use and never touch chrome state directly.
type Surface struct {
	notifier  Notifier
	ui        Poster
	files     Saver
	readiness Readiness
	info      Info
	log       *zap.Logger

	maxNotice atomic.Int64
}

// New creates a Surface.
func New(opts Options) *Surface {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Surface{
		notifier:  opts.Notifier,
		ui:        opts.UI,
		files:     opts.Files,
		readiness: opts.Readiness,
		info:      opts.Info,
		log:       log,
	}
	s.SetMaxNotice(opts.MaxNotice)
	return s
}

// SetMaxNotice changes the notice length ceiling; n <= 0 restores the default.
func (s *Surface) SetMaxNotice(n int) {
	if n <= 0 {
		n = DefaultMaxNotice
	}
	s.maxNotice.Store(int64(n))
}

// Notify shows msg unless it reaches the length ceiling, in which case it is
// dropped. It reports whether the notice was shown.
func (s *Surface) Notify(msg string) bool {
	if int64(utf8.RuneCountInString(msg)) >= s.maxNotice.Load() {
		s.log.Debug("notice dropped", zap.Int("len", utf8.RuneCountInString(msg)))
		return false
	}
	s.notifier.Notify(msg)
	return true
}

// SetEditingEnabled posts one transition for the edit/delete pair.
func (s *Surface) SetEditingEnabled(enabled bool) {
	s.ui.Post(uistate.Transition{EditingEnabled: enabled})
}

// DescribeDevice returns a short description of the host machine.
func (s *Surface) DescribeDevice() string { return s.info.Device }

// Locale returns the ISO 639-2 code of the host language.
func (s *Surface) Locale() string { return s.info.Locale }

// AppVersion returns the version code, 0 when unknown.
func (s *Surface) AppVersion() int { return s.info.VersionCode }

// Save persists a document and tells the user how it went.
func (s *Surface) Save(filename, payload string) error {
	_, err := s.files.Save(filename, payload)
	if err != nil {
		s.log.Warn("save rejected", zap.String("filename", filename), zap.Error(err))
	}
	s.notifier.Notify(storage.Notice(err))
	return err
}

// Ready signals that the content finished initializing.
func (s *Surface) Ready() error {
	return s.readiness.MarkReady()
}
