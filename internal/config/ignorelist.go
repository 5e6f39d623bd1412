/*******************************************************************************
* Copyright 2026 The janus authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sapcc/go-bits/logg"
)

// IgnoreList is the set of group names that are skipped during
// synchronization. It is backed by a file with one name per line (empty lines
// and #-comments are skipped) and reloads itself when the file changes, so
// the daemon does not need a restart after an operator edit.
type IgnoreList struct {
	path    string
	watcher *fsnotify.Watcher
	mutex   sync.RWMutex
	names   map[string]bool
}

// NewIgnoreList loads the ignore list from the given file and starts watching
// it for changes. An empty path yields a list that ignores nothing.
func NewIgnoreList(path string) (*IgnoreList, error) {
	list := &IgnoreList{path: path, names: make(map[string]bool)}
	if path == "" {
		return list, nil
	}

	err := list.reload()
	if err != nil {
		return nil, err
	}

	list.watcher, err = makeWatcherBackend(path)
	if err != nil {
		return nil, err
	}
	go list.watchLoop()
	return list, nil
}

// IsIgnored returns whether this group name is on the list.
func (l *IgnoreList) IsIgnored(groupName string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.names[groupName]
}

// Close stops watching the backing file.
func (l *IgnoreList) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	if err != nil {
		return fmt.Errorf("cannot cleanup filesystem watcher: %w", err)
	}
	l.watcher = nil
	return nil
}

func (l *IgnoreList) reload() error {
	buf, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("cannot read ignore list: %w", err)
	}

	names := make(map[string]bool)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names[line] = true
	}

	l.mutex.Lock()
	l.names = names
	l.mutex.Unlock()
	return nil
}

func (l *IgnoreList) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			err := l.reload()
			if err != nil {
				logg.Error("reload of ignore list failed, keeping the previous list: %s", err.Error())
			} else {
				logg.Info("ignore list %s reloaded", l.path)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logg.Error("filesystem watcher on %s: %s", l.path, err.Error())
		}
	}
}

func makeWatcherBackend(path string) (*fsnotify.Watcher, error) {
	backend, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot initialize filesystem watcher: %w", err)
	}
	err = backend.Add(path)
	if err != nil {
		return nil, fmt.Errorf("cannot setup filesystem watcher on %s: %w", path, err)
	}
	return backend, nil
}
