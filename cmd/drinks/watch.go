package main

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// untilModified returns a context cancelled once the file at path is written,
// created, removed or renamed. The cause names the event.
func untilModified(ctx context.Context, path string) (context.Context, context.CancelFunc, error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		cancel(err)
		return nil, nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching %s: %w", path, err))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
