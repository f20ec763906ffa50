package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watch reloads the registry whenever its file changes until ctx is done.
// The directory is watched rather than the file so editors that replace
// the file by rename are picked up. onReload, when non-nil, is called after
// every reload attempt with its result.
func (r *Registry) Watch(ctx context.Context, log logrus.FieldLogger, onReload func(error)) error {
	if r.path == "" {
		return errors.New("registry is not backed by a file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "error creating registry watcher")
	}

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "error watching %s", dir)
	}

	target := filepath.Clean(r.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				// a rename into place shows up as Create on the target
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				err := r.Reload()
				if err != nil {
					log.Errorf("Registry reload failed, keeping previous registry: %v", err)
				} else {
					log.Infof("Registry reloaded from %s (%d components)", r.path, len(r.Keys()))
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Registry watcher error: %v", err)
			}
		}
	}()
	return nil
}
