package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/omalloc/cellar/contrib/log"
)

// debounce collapses the burst of events an editor save produces.
const debounce = 200 * time.Millisecond

// Load decodes the yaml file at path onto base. Keys missing from the file
// keep the value base already holds.
func Load[T any](path string, base *T) (*T, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(buf, base); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return base, nil
}

// Watch reloads path onto a fresh newBase() every time the file changes and
// hands the result to onChange. Files that fail to parse are skipped. Watch
// blocks until ctx is done.
func Watch[T any](ctx context.Context, path string, newBase func() *T, onChange func(*T)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	// watch the directory, editors replace the file on save
	if err = watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		reload = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			c, err := Load(abs, newBase())
			if err != nil {
				log.Warnf("config reload skipped: %v", err)
				continue
			}
			log.Infof("config %s reloaded", abs)
			onChange(c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher error: %v", err)
		}
	}
}
