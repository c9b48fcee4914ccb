package store

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	raven "github.com/getsentry/raven-go"
)

// FileSystem implements the simple file system based store. Every key is a
// file directly under the root, so the artifact for key k is at <root>/k.
//
// Values are first written into a file in the scratch subdirectory and then
// renamed into place when the Writer is closed. The scratch directory is
// under the root so the rename never crosses file systems. Scratch files left
// behind by a crash are overwritten the next time the same key is created.
type FileSystem struct {
	root string
}

const (
	// the subdir to store files while they are being written to.
	scratchdir = "scratch"
)

var (
	// make sure it implements the Store interface
	_ Store = &FileSystem{}

	// ErrKeyEmpty means the key provided was empty, or was "." or ".."
	ErrKeyEmpty = errors.New("Key is empty")

	// ErrKeyReserved means the key provided is the name of the scratch
	// directory
	ErrKeyReserved = errors.New("Key is reserved")

	// ErrKeyContainsSlash means the key provided contains a forward slash '/'
	ErrKeyContainsSlash = errors.New("Key contains forward slash")

	// ErrKeyContainsNonUnicode means the key provided contains a Non Unicode Rune
	ErrKeyContainsNonUnicode = errors.New("Key contains Non-Unicode character")

	// ErrKeyContainsWhiteSpace  means the key provided contains WhiteSpace
	ErrKeyContainsWhiteSpace = errors.New("Key contains White Space")

	// ErrKeyContainsControlChar  means the key provided contains Control Characters
	ErrKeyContainsControlChar = errors.New("Key contains Control  Characters")
)

// NewFileSystem creates a new FileSystem store based at the given root path.
// The root is created when the first key is.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root}
}

// Root returns the directory the store keeps its files in.
func (s *FileSystem) Root() string {
	return s.root
}

// List returns a channel listing all the keys in this store.
func (s *FileSystem) List() <-chan string {
	c := make(chan string)
	go func() {
		defer close(c)
		keys, err := s.ListPrefix("")
		if err != nil {
			// we have no other way of passing this error back
			log.Println(err)
			raven.CaptureError(err, map[string]string{"Root": s.root})
			return
		}
		for _, key := range keys {
			c <- key
		}
	}()
	return c
}

// ListPrefix returns a sorted list of all the keys beginning with the given
// prefix.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		result = append(result, e.Name())
	}
	return result, nil
}

// Open returns a reader for the given object along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := isKeyValid(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.root, key))
	if os.IsNotExist(err) {
		return nil, 0, ErrNotExist
	} else if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create starts a new value for the given key, and returns a writer to allow
// for saving data into it. The key is only updated when the writer is closed.
func (s *FileSystem) Create(key string) (Writer, error) {
	// Perform Key Name Validation
	err := isKeyValid(key)
	if err != nil {
		return nil, err
	}
	// set up the scratch location we will temporarily save the file to.
	// this creates the root as well.
	temp, err := s.setupSubDir(scratchdir, key)
	if err != nil {
		return nil, err
	}
	w, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	return &moveCloser{File: w, source: temp, target: filepath.Join(s.root, key)}, nil
}

// Tidy removes the scratch directory if it is empty. It is meant to be called
// when no writers are open. It is not an error if the directory is missing or
// not empty.
func (s *FileSystem) Tidy() error {
	err := os.Remove(filepath.Join(s.root, scratchdir))
	// IsExist covers ENOTEMPTY
	if err != nil && (os.IsNotExist(err) || os.IsExist(err)) {
		err = nil
	}
	return err
}

// setupSubDir makes sure the given subdirectory exists under the root, and
// then returns the absolute path to the keyed file, and an optional error.
func (s *FileSystem) setupSubDir(subdir, key string) (string, error) {
	dir := filepath.Join(s.root, subdir)
	err := os.MkdirAll(dir, 0775)
	return filepath.Join(dir, key), err
}

// track the file so when it is closed, we can move it into the correct place
type moveCloser struct {
	*os.File
	source string
	target string
	done   bool
}

func (w *moveCloser) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	return w.File.Write(p)
}

func (w *moveCloser) Close() error {
	if w.done {
		return ErrWriterDone
	}
	w.done = true
	err := w.File.Sync()
	if err == nil {
		err = w.File.Close()
	} else {
		w.File.Close()
	}
	if err == nil {
		err = os.Rename(w.source, w.target)
	}
	if err != nil {
		w.removeSource()
	}
	return err
}

func (w *moveCloser) Abort() error {
	if w.done {
		if w.File == nil {
			return nil
		}
		return ErrWriterDone
	}
	w.done = true
	w.File.Close()
	w.File = nil
	return w.removeSource()
}

// removeSource deletes the scratch file. A missing file is not an error.
func (w *moveCloser) removeSource() error {
	err := os.Remove(w.source)
	if err != nil && !os.IsNotExist(err) {
		log.Println("removing scratch file:", err)
		raven.CaptureError(err, map[string]string{"Path": w.source})
		return err
	}
	return nil
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist.
func (s *FileSystem) Delete(key string) error {
	if err := isKeyValid(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, key))
	// don't report a missing file as an error
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	return err
}

// Some Simple Item Key Validations
func isKeyValid(key string) error {
	switch key {
	case "", ".", "..":
		return ErrKeyEmpty
	case scratchdir:
		return ErrKeyReserved
	}

	// Valid Unicode
	if !utf8.ValidString(key) {
		return ErrKeyContainsNonUnicode
	}

	// No Slashes
	if strings.Contains(key, "/") {
		return ErrKeyContainsSlash
	}

	for _, rune := range key {
		// No White Space
		if unicode.IsSpace(rune) {
			return ErrKeyContainsWhiteSpace
		}

		// No Control Characters
		if unicode.IsControl(rune) {
			return ErrKeyContainsControlChar
		}
	}

	// return an empty error on success
	return nil
}
