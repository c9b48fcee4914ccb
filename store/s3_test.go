package store

import (
	"bytes"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 keeps objects in memory and implements the handful of calls the S3
// store makes. Calling anything else panics through the nil interface.
type fakeS3 struct {
	s3iface.S3API

	m       sync.Mutex
	objects map[string][]byte
	uploads map[string][][]byte // upload id -> parts
	aborted int
	nextID  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		uploads: make(map[string][][]byte),
	}
}

func (f *fakeS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	b, _ := ioutil.ReadAll(in.Body)
	f.m.Lock()
	f.objects[*in.Key] = b
	f.m.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.nextID++
	id := *in.Key + "#" + string(rune('0'+f.nextID))
	f.uploads[id] = nil
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(in *s3.UploadPartInput) (*s3.UploadPartOutput, error) {
	b, _ := ioutil.ReadAll(in.Body)
	f.m.Lock()
	defer f.m.Unlock()
	f.uploads[*in.UploadId] = append(f.uploads[*in.UploadId], b)
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	parts := f.uploads[*in.UploadId]
	if len(parts) != len(in.MultipartUpload.Parts) {
		return nil, awserr.New("InvalidPart", "part count mismatch", nil)
	}
	f.objects[*in.Key] = bytes.Join(parts, nil)
	delete(f.uploads, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	delete(f.uploads, *in.UploadId)
	f.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NoSuchKey", "no such key", nil), 404, "req")
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	f.m.Lock()
	delete(f.objects, *in.Key)
	f.m.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	f.m.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	f.m.Unlock()
	sort.Strings(keys)
	page := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
	}
	fn(page, true)
	return nil
}

func TestS3SinglePut(t *testing.T) {
	fake := newFakeS3()
	s := newS3("bucket", "bundles/", fake)
	w, _ := s.Create("tx")
	w.Write([]byte("abc"))
	if _, _, err := s.Open("tx"); err != ErrNotExist {
		t.Errorf("Got %v, expected %v", err, ErrNotExist)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Got unexpected error: %s", err.Error())
	}
	if string(fake.objects["bundles/tx"]) != "abc" {
		t.Errorf("Got %q, expected %q", fake.objects["bundles/tx"], "abc")
	}
	r, size, err := s.Open("tx")
	if err != nil {
		t.Fatalf("Got unexpected error: %s", err.Error())
	}
	b, _ := ioutil.ReadAll(NewReader(r))
	if size != 3 || string(b) != "abc" {
		t.Errorf("Got (%d, %q), expected (3, \"abc\")", size, b)
	}
	keys, _ := s.ListPrefix("")
	if !equal(keys, []string{"tx"}) {
		t.Errorf("Got %v, expected [tx]", keys)
	}
	s.Delete("tx")
	if len(fake.objects) != 0 {
		t.Errorf("Got %d objects, expected 0", len(fake.objects))
	}
}

func TestS3Multipart(t *testing.T) {
	fake := newFakeS3()
	s := newS3("bucket", "", fake)
	s.PartSize = 4
	w, _ := s.Create("big")
	var goal bytes.Buffer
	for i := 0; i < 20; i++ {
		chunk := []byte{byte('a' + i), byte('a' + i), byte('a' + i)}
		goal.Write(chunk)
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("Got unexpected error: %s", err.Error())
		}
	}
	if len(fake.uploads) != 1 {
		t.Fatalf("Got %d uploads in progress, expected 1", len(fake.uploads))
	}
	if len(fake.objects) != 0 {
		t.Errorf("Object visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Got unexpected error: %s", err.Error())
	}
	if !bytes.Equal(fake.objects["big"], goal.Bytes()) {
		t.Errorf("Got %q, expected %q", fake.objects["big"], goal.Bytes())
	}
}

func TestS3Abort(t *testing.T) {
	fake := newFakeS3()
	s := newS3("bucket", "", fake)
	s.PartSize = 4

	w, _ := s.Create("small")
	w.Write([]byte("ab"))
	if err := w.Abort(); err != nil {
		t.Errorf("Got unexpected error: %s", err.Error())
	}

	w, _ = s.Create("big")
	w.Write([]byte("0123456789"))
	if err := w.Abort(); err != nil {
		t.Errorf("Got unexpected error: %s", err.Error())
	}
	if err := w.Abort(); err != nil {
		t.Errorf("Second Abort: Got unexpected error: %s", err.Error())
	}
	if err := w.Close(); err != ErrWriterDone {
		t.Errorf("Got %v, expected %v", err, ErrWriterDone)
	}
	if len(fake.objects) != 0 || len(fake.uploads) != 0 || fake.aborted != 1 {
		t.Errorf("Got %d objects, %d uploads, %d aborted; expected 0, 0, 1",
			len(fake.objects), len(fake.uploads), fake.aborted)
	}
}
