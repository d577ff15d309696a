package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestParseLocation(t *testing.T) {
	location, err := ParseLocation("s3://bucket/athena/results/q-1.csv")
	if err != nil {
		t.Fatalf("ParseLocation() error = %v", err)
	}
	if location.Bucket != "bucket" || location.Key != "athena/results/q-1.csv" {
		t.Fatalf("location = %#v", location)
	}
	if location.String() != "s3://bucket/athena/results/q-1.csv" {
		t.Fatalf("String() = %q", location.String())
	}
}

func TestParseLocationRejectsMalformed(t *testing.T) {
	for _, uri := range []string{"", "bucket/key", "s3://bucket", "s3://bucket/", "s3:/x/bucket/key", "s3:///key"} {
		if _, err := ParseLocation(uri); err == nil {
			t.Fatalf("ParseLocation(%q) expected error", uri)
		}
	}
}

func TestParsePrefixAllowsEmptyKey(t *testing.T) {
	for _, uri := range []string{"s3://results", "s3://results/"} {
		location, err := ParsePrefix(uri)
		if err != nil {
			t.Fatalf("ParsePrefix(%q) error = %v", uri, err)
		}
		if location.Bucket != "results" || location.Key != "" {
			t.Fatalf("ParsePrefix(%q) = %#v", uri, location)
		}
		if got := location.Child("q-1.csv").String(); got != "s3://results/q-1.csv" {
			t.Fatalf("Child() = %q", got)
		}
	}
}

func TestChildJoinsPrefix(t *testing.T) {
	location, err := ParsePrefix("s3://results/athenaq/")
	if err != nil {
		t.Fatalf("ParsePrefix() error = %v", err)
	}
	if got := location.Child("q-1.csv").Key; got != "athenaq/q-1.csv" {
		t.Fatalf("Child().Key = %q", got)
	}
}

func TestReadAll(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{"bucket/key.csv": []byte("a\n1\n")}}
	data, err := ReadAll(context.Background(), store, Location{Bucket: "bucket", Key: "key.csv"})
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "a\n1\n" {
		t.Fatalf("data = %q", data)
	}

	_, err = ReadAll(context.Background(), store, Location{Bucket: "bucket", Key: "missing"})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ PutOptions) (ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.objects[bucket+"/"+key] = data
	return ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}
