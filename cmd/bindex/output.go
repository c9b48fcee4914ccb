package main

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/store"
)

// ErrOutputName is returned for an output path without a file name.
var ErrOutputName = errors.New("output path has no file name")

// outputDir is an indexer destination writing each key as the file of that
// name in the directory. Any file name is allowed. A value is staged in a
// hidden temporary file next to its target, so nothing else in the
// directory is created or removed.
type outputDir string

func (d outputDir) Create(key string) (store.Writer, error) {
	if key == "" || key == "." || key == ".." {
		return nil, ErrOutputName
	}
	f, err := ioutil.TempFile(string(d), "."+key+".*")
	if err != nil {
		return nil, err
	}
	return &renameWriter{File: f, target: filepath.Join(string(d), key)}, nil
}

// renameWriter renames its temporary file onto target when closed.
type renameWriter struct {
	*os.File
	target string
	done   bool
}

func (w *renameWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, store.ErrWriterDone
	}
	return w.File.Write(p)
}

func (w *renameWriter) Close() error {
	if w.done {
		return store.ErrWriterDone
	}
	w.done = true
	name := w.File.Name()
	err := w.File.Sync()
	if cerr := w.File.Close(); err == nil {
		err = cerr
	}
	// TempFile makes files only the owner can read
	if err == nil {
		err = os.Chmod(name, 0644)
	}
	if err == nil {
		err = os.Rename(name, w.target)
	}
	if err != nil {
		os.Remove(name)
	}
	return err
}

func (w *renameWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.File.Close()
	err := os.Remove(w.File.Name())
	if os.IsNotExist(err) {
		err = nil
	}
	return err
}
