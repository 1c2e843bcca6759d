// Package partlib manages the part library (§3): an ordered list of part
// profiles, each naming its available detection methods and the
// currently-selected one, persisted alongside the rest of Config and
// hot-reloadable on external edit.
package partlib

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/crmado/realtime-item-monitor/apperr"
	"github.com/crmado/realtime-item-monitor/config"
)

// ChangeListener is invoked after the library is reloaded, either from an
// explicit Reload call or a file-system watch event.
type ChangeListener func(profiles []config.PartProfile)

// Store owns the live part library and its backing file, grounded on the
// fsnotify-driven config watch idiom of the Elliot727-gocvkit example
// (app.watchConfig).
type Store struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	// mu guards profiles: Save persisting to path triggers the file watch's
	// own Write event, so the watch goroutine's Reload runs concurrently
	// with whatever caller invoked Save/Add/Remove.
	mu        sync.Mutex
	profiles  []config.PartProfile
	listeners []ChangeListener
}

// NewStore loads the part library from a Config already read from path,
// and wires hot-reload watching the same file.
func NewStore(path string, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger, profiles: cfg.PartLibrary}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigInvalid, err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, apperr.Wrap(apperr.ConfigInvalid, err)
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

func (s *Store) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.Reload(); err != nil && s.logger != nil {
					s.logger.Warn("part library reload failed", "error", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.logger != nil {
				s.logger.Warn("part library watch error", "error", err)
			}
		}
	}
}

// Close stops the file watch.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Profiles returns the current in-memory part library.
func (s *Store) Profiles() []config.PartProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles
}

// Find returns the profile with the given part_id.
func (s *Store) Find(partID string) (config.PartProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.PartID == partID {
			return p, true
		}
	}
	return config.PartProfile{}, false
}

// Reload re-reads the backing config file, replacing the in-memory part
// library on success and notifying listeners. Per §6 it validates against
// I1-I3 and the method-registry cross-check before taking effect.
func (s *Store) Reload() error {
	cfg, err := config.Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles = cfg.PartLibrary
	s.mu.Unlock()
	s.notify()
	return nil
}

// Add appends a new part profile and persists the library immediately,
// supplementing §3's "loaded at startup, re-read on user action" with the
// CRUD surface original_source/utils/settings_manager.py exposes.
func (s *Store) Add(profile config.PartProfile) error {
	s.mu.Lock()
	s.profiles = append(s.profiles, profile)
	s.mu.Unlock()
	return s.Save()
}

// Remove deletes the part profile with the given part_id, if present, and
// persists the library immediately.
func (s *Store) Remove(partID string) error {
	s.mu.Lock()
	kept := s.profiles[:0]
	for _, p := range s.profiles {
		if p.PartID != partID {
			kept = append(kept, p)
		}
	}
	s.profiles = kept
	s.mu.Unlock()
	return s.Save()
}

// Save persists the in-memory part library back to the backing config
// file, preserving the other sections already on disk.
func (s *Store) Save() error {
	cfg, err := config.Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	cfg.PartLibrary = s.profiles
	s.mu.Unlock()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(s.path, cfg); err != nil {
		return err
	}
	s.notify()
	return nil
}

// AddListener registers a listener invoked whenever the in-memory library
// changes, whether via Reload, Add, Remove or a file-system watch event.
func (s *Store) AddListener(l ChangeListener) { s.listeners = append(s.listeners, l) }

func (s *Store) notify() {
	profiles := s.Profiles()
	for _, l := range s.listeners {
		l(profiles)
	}
}
