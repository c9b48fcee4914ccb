package indexer

import (
	"bufio"
	"log"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/bundle"
	"github.com/ndlib/ans104/store"
	"github.com/ndlib/ans104/util"
)

// A Session accumulates the records for one artifact. Records are staged
// by the store until Commit publishes them all under the session's key.
// Rollback throws them away instead. After either one the Session is
// finished and every method returns ErrSessionClosed.
//
// A Session is not safe for concurrent use.
type Session struct {
	key   string
	w     store.Writer
	hw    *util.HashWriter
	buf   *bufio.Writer
	items int
}

// A Receipt describes a committed artifact.
type Receipt struct {
	Key    string
	Items  int
	Bytes  int64
	MD5    []byte
	SHA256 []byte
}

// NewSession starts staging an artifact for key in s.
func NewSession(s Destination, key string) (*Session, error) {
	w, err := s.Create(key)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", key)
	}
	hw := util.NewHashWriter(w)
	return &Session{
		key: key,
		w:   w,
		hw:  hw,
		buf: bufio.NewWriter(hw),
	}, nil
}

// Store appends item to the artifact. The record is flushed to the store
// before Store returns, so a crash leaves whole records behind.
func (s *Session) Store(item bundle.Item) error {
	if s.w == nil {
		return ErrSessionClosed
	}
	if err := WriteRecord(s.buf, item); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return errors.Wrapf(err, "writing item %s", item.ID)
	}
	s.items++
	return nil
}

// Commit publishes the artifact under the session's key.
func (s *Session) Commit() (Receipt, error) {
	if s.w == nil {
		return Receipt{}, ErrSessionClosed
	}
	w := s.w
	s.w = nil
	if err := s.buf.Flush(); err != nil {
		w.Abort()
		return Receipt{}, errors.Wrapf(err, "committing %s", s.key)
	}
	if err := w.Close(); err != nil {
		return Receipt{}, errors.Wrapf(err, "committing %s", s.key)
	}
	md5, _ := s.hw.CheckMD5(nil)
	sha, _ := s.hw.CheckSHA256(nil)
	return Receipt{
		Key:    s.key,
		Items:  s.items,
		Bytes:  s.hw.Size(),
		MD5:    md5,
		SHA256: sha,
	}, nil
}

// Rollback discards everything stored in the session. Problems removing the
// staged data are logged, not returned.
func (s *Session) Rollback() {
	if s.w == nil {
		return
	}
	w := s.w
	s.w = nil
	if err := w.Abort(); err != nil {
		log.Println("rollback", s.key, err)
	}
}

// Items returns the number of items stored so far.
func (s *Session) Items() int {
	return s.items
}
