package captcha

import (
	"embed"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatternsFS embed.FS

// VariantPattern holds the weighted detection features for one variant.
type VariantPattern struct {
	Selectors      map[string]float64 `yaml:"selectors"`
	Keywords       map[string]float64 `yaml:"keywords"`
	ScriptPatterns map[string]float64 `yaml:"script_patterns"`
	URLPatterns    map[string]float64 `yaml:"url_patterns"`
	MinConfidence  float64            `yaml:"min_confidence"`
}

// Patterns is the full detection pattern set, keyed by variant.
type Patterns struct {
	Variants map[Variant]VariantPattern `yaml:"variants"`
}

// PatternManager serves detection patterns with optional hot reload from an
// external override file. Reads are lock-free via atomic.Value.
type PatternManager struct {
	current      atomic.Value // *Patterns
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // serializes reloads
	closed       bool
}

// NewPatternManager loads the embedded defaults and, when an external path
// is given, overlays it and optionally watches it for changes.
func NewPatternManager(externalPath string, hotReload bool) (*PatternManager, error) {
	embedded, err := loadEmbeddedPatterns()
	if err != nil {
		return nil, err
	}

	m := &PatternManager{
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(embedded)

	if externalPath != "" {
		if err := m.reloadExternal(); err != nil {
			log.Warn().Err(err).Str("path", externalPath).Msg("External patterns unreadable, using embedded defaults")
		}
		if hotReload {
			if err := m.watch(); err != nil {
				log.Warn().Err(err).Msg("Pattern hot-reload unavailable")
			}
		}
	}

	return m, nil
}

// Get returns the active pattern set.
func (m *PatternManager) Get() *Patterns {
	return m.current.Load().(*Patterns)
}

// Close stops the file watcher.
func (m *PatternManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stopCh)
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	m.wg.Wait()
}

func loadEmbeddedPatterns() (*Patterns, error) {
	data, err := defaultPatternsFS.ReadFile("patterns.yaml")
	if err != nil {
		return nil, err
	}
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	log.Debug().Int("variants", len(p.Variants)).Msg("Detection patterns loaded")
	return &p, nil
}

// reloadExternal swaps in the external pattern file.
func (m *PatternManager) reloadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		return err
	}
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return err
	}
	if len(p.Variants) == 0 {
		log.Warn().Str("path", m.externalPath).Msg("External patterns file has no variants, ignoring")
		return nil
	}

	m.current.Store(&p)
	log.Info().
		Str("path", m.externalPath).
		Int("variants", len(p.Variants)).
		Msg("Detection patterns reloaded")
	return nil
}

// watch starts the fsnotify loop on the external file's directory.
func (m *PatternManager) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	// Watch the directory so atomic replace (write + rename) is seen.
	if err := watcher.Add(filepath.Dir(m.externalPath)); err != nil {
		_ = watcher.Close()
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.externalPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := m.reloadExternal(); err != nil {
						log.Warn().Err(err).Msg("Pattern reload failed, keeping previous set")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Pattern watcher error")
			}
		}
	}()

	log.Info().Str("path", m.externalPath).Msg("Watching detection patterns for changes")
	return nil
}
