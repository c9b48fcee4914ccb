package store

import (
	"bytes"
	"errors"
	"io/ioutil"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	raven "github.com/getsentry/raven-go"
)

// A S3 store represents a store that is kept on AWS S3 storage.
// Do not change Bucket or Prefix concurrently with calls using the structure.
//
// S3 objects only become visible once their upload completes, so the staging
// a Writer needs is provided by S3 itself: a single PUT for small values and
// a multipart upload otherwise, which Abort cancels.
type S3 struct {
	svc    s3iface.S3API
	Bucket string
	Prefix string

	// PartSize is the size of the first multipart part. Values smaller
	// than this are sent with a single PUT.
	PartSize int
}

var (
	// make sure it implements the Store interface
	_ Store = &S3{}

	// ErrNoETag is returned when a completed upload part has no ETag.
	ErrNoETag = errors.New("No ETag was returned from AWS")
)

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. This is to allow for a bucket to be used for more than
// one store. For example if prefix were "bundles/" then an Open("hello") would
// look for the key "bundles/hello" in the bucket. The authorization method and
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return newS3(bucket, prefix, s3.New(awsSession))
}

func newS3(bucket, prefix string, svc s3iface.S3API) *S3 {
	return &S3{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      svc,
		PartSize: wcBaseSize,
	}
}

// List returns a list of all the keys in this store. It will only return ones
// that satisfy the store's Prefix, so it is safe to use this on a bucket
// containing other items.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		keys, err := s.ListPrefix("")
		if err != nil {
			return
		}
		for _, key := range keys {
			out <- key
		}
	}()
	return out
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open downloads the value of key and returns a reader over it. Artifacts
// are read back whole, so there is no paging.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	output, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
			err = ErrNotExist
		}
		return nil, 0, err
	}
	defer output.Body.Close()
	data, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, 0, err
	}
	return nopCloser{bytes.NewReader(data)}, int64(len(data)), nil
}

// Create will return a Writer to upload content to the given key. Data is
// batched and uploaded to S3 using the Multipart interface. The part sizes
// increase, so objects up to the 5 TB limit S3 imposes is theoretically
// possible.
func (s *S3) Create(key string) (Writer, error) {
	return &s3WriteCloser{
		svc:      s.svc,
		bucket:   s.Bucket,
		key:      s.Prefix + key,
		partSize: s.PartSize,
	}, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

// s3WriteCloser does an upload to s3. If the entire file fits into one buffer
// it will do a single PUT. Otherwise it will use the s3 multipart upload
// interface.
//
// We do not know the ultimate size of the object while we are writing it, so
// the part sizes vary: part i is uploaded once it holds more than
// min(partSize*2^i, wcMaxSize) bytes. AWS restricts part sizes to be between
// 5 MB and 5 GB.
type s3WriteCloser struct {
	svc      s3iface.S3API
	bucket   string
	key      string
	partSize int
	buf      bytes.Buffer // current part
	isMulti  bool         // true if this is a multipart upload
	uploadID string       // the multipart id that s3 gave us
	part     int          // the part number we are currently filling up (0-based. n.b. AWS is 1-based)
	etags    []string     // list of etags for all our uploaded parts, index i == etag for part i
	failed   error        // set if an upload failed during Write
	done     bool
}

const (
	wcBaseSize = 64 * 1024 * 1024
	wcMaxSize  = 4 * 1024 * 1024 * 1024
)

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	if wc.done {
		return 0, ErrWriterDone
	}
	if wc.failed != nil {
		return 0, wc.failed
	}
	n, _ := wc.buf.Write(p)
	// see if we need to upload this buffer
	limit := wcMaxSize
	if wc.part < 6 && wc.partSize<<uint(wc.part) < wcMaxSize {
		limit = wc.partSize << uint(wc.part)
	}
	if wc.buf.Len() > limit {
		err := wc.uploadpart()
		if err != nil {
			wc.failed = err
			return 0, err
		}
	}
	return n, nil
}

// Close will flush any temporary buffers to S3, and then wait for everything
// to be uploaded. If there were any errors (either now, or while calling
// Write()), the entire upload will be deleted. Otherwise it will be saved
// into S3.
func (wc *s3WriteCloser) Close() error {
	if wc.done {
		return ErrWriterDone
	}
	if wc.failed != nil {
		err := wc.failed
		wc.Abort()
		return err
	}
	wc.done = true

	// if we haven't started a multipart transaction yet, just send what is in
	// the buffer
	if !wc.isMulti {
		return wc.uploadfull()
	}

	// upload anything left in the buffer
	if wc.buf.Len() > 0 {
		if err := wc.uploadpart(); err != nil {
			wc.abortMultipart()
			return err
		}
	}
	err := wc.finishMultipart()
	if err != nil {
		log.Println("S3 Complete Close:", wc.key, err)
		wc.abortMultipart()
	}
	return err
}

// Abort discards the upload. Nothing is written to the key.
func (wc *s3WriteCloser) Abort() error {
	if wc.done {
		if wc.failed == errAborted {
			return nil
		}
		return ErrWriterDone
	}
	wc.done = true
	wc.failed = errAborted
	wc.buf.Reset()
	if wc.isMulti {
		return wc.abortMultipart()
	}
	return nil
}

var errAborted = errors.New("upload aborted")

func (wc *s3WriteCloser) abortMultipart() error {
	_, err := wc.svc.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
		Bucket:   aws.String(wc.bucket),
		Key:      aws.String(wc.key),
		UploadId: aws.String(wc.uploadID),
	})
	if err != nil {
		log.Println("S3 Abort:", wc.key, err)
		raven.CaptureError(err, map[string]string{"Bucket": wc.bucket, "Key": wc.key})
	}
	return err
}

func (wc *s3WriteCloser) startMultipart() error {
	result, err := wc.svc.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket: aws.String(wc.bucket),
		Key:    aws.String(wc.key),
	})
	if err != nil {
		log.Println("S3 startMultipart:", wc.key, err)
		raven.CaptureError(err, map[string]string{"Bucket": wc.bucket, "Key": wc.key})
		return err
	}
	wc.isMulti = true
	wc.uploadID = *result.UploadId
	return nil
}

func (wc *s3WriteCloser) finishMultipart() error {
	// need to upload all the part number/etag pairs
	var completed []*s3.CompletedPart
	for i, etag := range wc.etags {
		completed = append(completed, &s3.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int64(int64(i + 1)), // part numbers are 1-based
		})
	}
	_, err := wc.svc.CompleteMultipartUpload(
		&s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(wc.bucket),
			Key:      aws.String(wc.key),
			UploadId: aws.String(wc.uploadID),
			MultipartUpload: &s3.CompletedMultipartUpload{
				Parts: completed,
			},
		})
	return err
}

// uploadpart sends the buffer as the next part and then resets it.
func (wc *s3WriteCloser) uploadpart() error {
	if !wc.isMulti {
		if err := wc.startMultipart(); err != nil {
			return err
		}
	}
	input := &s3.UploadPartInput{
		Body:       bytes.NewReader(wc.buf.Bytes()), // need Seek()
		Bucket:     aws.String(wc.bucket),
		Key:        aws.String(wc.key),
		PartNumber: aws.Int64(int64(wc.part + 1)), // parts are 1-based in AWS
		UploadId:   aws.String(wc.uploadID),
	}
	output, err := wc.svc.UploadPart(input)
	if err != nil {
		log.Println("S3 uploadpart:", wc.key, wc.part+1, err)
		return err
	}
	if output.ETag == nil {
		log.Println("S3 nil ETag for part", wc.part, "key=", wc.key)
		return ErrNoETag
	}
	wc.etags = append(wc.etags, *output.ETag)
	wc.buf.Reset()
	wc.part++
	return nil
}

func (wc *s3WriteCloser) uploadfull() error {
	source := bytes.NewReader(wc.buf.Bytes()) // need Seek(), and bytes.Buffer doesn't have it
	input := &s3.PutObjectInput{
		Body:          source,
		Bucket:        aws.String(wc.bucket),
		Key:           aws.String(wc.key),
		ContentLength: aws.Int64(int64(source.Len())),
	}
	_, err := wc.svc.PutObject(input)
	if err != nil {
		log.Println("S3 uploadfull:", wc.key, err)
	}
	return err
}
