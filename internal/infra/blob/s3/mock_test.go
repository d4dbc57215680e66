package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeBucket is an in-process S3 endpoint covering the operations the store
// issues: HEAD, GET, PUT (with If-None-Match), DELETE and ListObjectsV2.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	calls   []string
}

type fakeObject struct {
	body        []byte
	contentType string
}

func newMockStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: make(map[string]fakeObject)}
	store, err := New(context.Background(), Config{
		Bucket:          "datasets",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.RetryMaxAttempts = 1
	})
	require.NoError(t, err)
	return store, bucket
}

func (b *fakeBucket) respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req.Method)

	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key, _ = url.PathUnescape(parts[1])
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return b.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := b.objects[key]
		if !ok {
			return b.respond(http.StatusNotFound, "", nil), nil
		}
		return b.respond(http.StatusOK, "", b.headers(obj)), nil
	case http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			return b.respond(http.StatusNotFound, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`,
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		resp := b.respond(http.StatusOK, "", b.headers(obj))
		resp.Body = io.NopCloser(bytes.NewReader(obj.body))
		return resp, nil
	case http.MethodPut:
		if _, exists := b.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return b.respond(http.StatusPreconditionFailed, `<?xml version="1.0"?><Error><Code>PreconditionFailed</Code><Message>exists</Message></Error>`,
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		b.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return b.respond(http.StatusOK, "", http.Header{"ETag": {`"etag-put"`}}), nil
	case http.MethodDelete:
		delete(b.objects, key)
		return b.respond(http.StatusNoContent, "", nil), nil
	}
	return b.respond(http.StatusNotImplemented, "", nil), nil
}

func (b *fakeBucket) headers(obj fakeObject) http.Header {
	return http.Header{
		"Content-Length": {fmt.Sprintf("%d", len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"etag-123"`},
		"Last-Modified":  {time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)},
	}
}

func (b *fakeBucket) list(prefix string) *http.Response {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><Name>datasets</Name><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e-%s&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			k, len(b.objects[k].body), k)
	}
	sb.WriteString(`<KeyCount>`)
	fmt.Fprintf(&sb, "%d", len(keys))
	sb.WriteString(`</KeyCount></ListBucketResult>`)
	return b.respond(http.StatusOK, sb.String(), http.Header{"Content-Type": {"application/xml"}})
}

func (b *fakeBucket) seed(key, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = fakeObject{body: []byte(body), contentType: "application/json"}
}
