package storage

import (
	"fmt"
	"path"
	"strings"
)

// Location is a bucket/key pair parsed from a URI such as s3://bucket/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation splits uri on "/" into exactly four parts: scheme, the empty
// segment, bucket and key. The key may contain further slashes.
func ParseLocation(uri string) (Location, error) {
	location, err := parse(uri)
	if err != nil {
		return Location{}, err
	}
	if location.Key == "" {
		return Location{}, fmt.Errorf("invalid result location %q: object key is required", uri)
	}
	return location, nil
}

// ParsePrefix is ParseLocation for output prefixes, where the key may be
// empty (s3://bucket/ or s3://bucket).
func ParsePrefix(uri string) (Location, error) {
	trimmed := strings.TrimSpace(uri)
	if strings.Count(trimmed, "/") == 2 {
		trimmed += "/"
	}
	return parse(trimmed)
}

func parse(uri string) (Location, error) {
	parts := strings.SplitN(strings.TrimSpace(uri), "/", 4)
	if len(parts) != 4 {
		return Location{}, fmt.Errorf("invalid result location %q", uri)
	}
	scheme, empty, bucket, key := parts[0], parts[1], parts[2], parts[3]
	if !strings.HasSuffix(scheme, ":") || len(scheme) < 2 || empty != "" {
		return Location{}, fmt.Errorf("invalid result location %q: expected scheme://bucket/key", uri)
	}
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid result location %q: bucket is required", uri)
	}
	return Location{Scheme: strings.TrimSuffix(scheme, ":"), Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = "s3"
	}
	return scheme + "://" + l.Bucket + "/" + l.Key
}

// Child returns the location of name under l treated as a prefix.
func (l Location) Child(name string) Location {
	key := strings.TrimPrefix(path.Join(l.Key, name), "/")
	return Location{Scheme: l.Scheme, Bucket: l.Bucket, Key: key}
}
