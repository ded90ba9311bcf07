package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/test"
	"github.com/pkg/errors"
)

// fakeS3 keeps objects in memory. Methods not overridden panic through the
// nil embedded interface.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func notFound() error {
	return awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), http.StatusNotFound, "req")
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	bs, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(bs))}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if len(k) >= len(*in.Prefix) && k[:len(*in.Prefix)] == *in.Prefix {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
	}
	fn(out, true)
	return nil
}

type fakeUploader struct {
	s3 *fakeS3
}

func (u fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return u.UploadWithContext(context.Background(), in, opts...)
}

func (u fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	bs, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	u.s3.objects[*in.Key] = bs
	return &s3manager.UploadOutput{}, nil
}

func TestNewStoreOptions(t *testing.T) {
	f := newFakeS3()
	s, err := NewStore("oso-artifacts", OptStoreRegion("eu-west-1"), OptStorePrefix("/dependents/"), OptStoreClient(f, fakeUploader{f}))
	test.ErrNil(t, err, "NewStore")
	test.MustBe(t, "eu-west-1", s.region)
	test.MustBe(t, "dependents", s.prefix)
	test.MustBe(t, "dependents/npm_abc.avro", s.key("npm_abc.avro"))

	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	f := newFakeS3()
	s, err := NewStore("oso-artifacts", OptStorePrefix("dependents"), OptStoreClient(f, fakeUploader{f}))
	test.ErrNil(t, err, "NewStore")

	ok, err := s.Exists(ctx, "npm_abc.avro")
	test.ErrNil(t, err, "Exists")
	test.MustBe(t, false, ok)
	_, err = s.Get(ctx, "npm_abc.avro")
	if !errors.Is(err, collect.ErrArtifactNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	test.ErrNil(t, s.Put(ctx, "npm_abc.avro", bytes.NewReader([]byte("rows"))), "Put")
	test.MustBe(t, []byte("rows"), f.objects["dependents/npm_abc.avro"])
	ok, err = s.Exists(ctx, "npm_abc.avro")
	test.ErrNil(t, err, "Exists")
	test.MustBe(t, true, ok)

	rc, err := s.Get(ctx, "npm_abc.avro")
	test.ErrNil(t, err, "Get")
	bs, _ := io.ReadAll(rc)
	rc.Close()
	test.MustBe(t, "rows", string(bs))

	names, err := s.List(ctx, "npm_")
	test.ErrNil(t, err, "List")
	test.MustBe(t, []string{"npm_abc.avro"}, names)
}
