// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package s3

import (
	"context"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// StoreOption is a functional option type for s3.Store.
type StoreOption func(s *Store)

// OptStoreRegion sets the AWS region for a Store.
func OptStoreRegion(region string) StoreOption {
	return func(s *Store) {
		s.region = region
	}
}

// OptStorePrefix sets the key prefix under which artifacts are kept.
func OptStorePrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

// OptStoreEndpoint points the client at an S3 compatible service instead of
// AWS.
func OptStoreEndpoint(endpoint string) StoreOption {
	return func(s *Store) {
		s.endpoint = endpoint
	}
}

// OptStoreClient sets the S3 client and uploader directly, skipping session
// setup.
func OptStoreClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI) StoreOption {
	return func(s *Store) {
		s.s3 = client
		s.uploader = uploader
	}
}

// Store keeps artifacts as objects in an S3 bucket.
type Store struct {
	bucket   string
	prefix   string
	region   string
	endpoint string

	s3       s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

// NewStore returns a Store for bucket with the options applied.
func NewStore(bucket string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		bucket: bucket,
		region: "us-east-1",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == "" {
		return nil, errors.New("no bucket given")
	}
	if s.s3 != nil {
		return s, nil
	}
	cfg := &aws.Config{Region: aws.String(s.region)}
	if s.endpoint != "" {
		cfg.Endpoint = aws.String(s.endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	client := s3.New(sess)
	s.s3 = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	return s, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	if rf, ok := err.(awserr.RequestFailure); ok && rf.StatusCode() == http.StatusNotFound {
		return true
	}
	if ae, ok := err.(awserr.Error); ok {
		return ae.Code() == s3.ErrCodeNoSuchKey || ae.Code() == "NotFound"
	}
	return false
}

// Exists reports whether the artifact name has been written.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "heading %s", s.key(name))
	}
	return true, nil
}

// Put uploads everything read from r to the artifact name. Large artifacts
// are uploaded in parts; an object is only visible once the upload completes.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   r,
	})
	return errors.Wrapf(err, "uploading %s", s.key(name))
}

// Get opens the artifact name for reading.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	result, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(collect.ErrArtifactNotFound, "%s", s.key(name))
		}
		return nil, errors.Wrapf(err, "fetching %s", s.key(name))
	}
	return result.Body, nil
}

// List returns the names of the artifacts starting with prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	names := make([]string, 0)
	full := s.key(prefix)
	if prefix == "" && s.prefix != "" {
		full = s.prefix + "/"
	}
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			n := aws.StringValue(obj.Key)
			if s.prefix != "" {
				n = strings.TrimPrefix(n, s.prefix+"/")
			}
			names = append(names, n)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	sort.Strings(names)
	return names, nil
}
