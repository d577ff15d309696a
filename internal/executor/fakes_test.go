package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/athenaq/athenaq/internal/execution"
	"github.com/athenaq/athenaq/internal/history"
	"github.com/athenaq/athenaq/internal/storage"
)

// fakeService replays states in order and then repeats the last one.
type fakeService struct {
	mu        sync.Mutex
	id        string
	states    []execution.Record
	submitErr error
	statusErr error
	stopAck   string
	stopErr   error

	submits []execution.SubmitInput
	polls   int
	stopped []string
}

func (f *fakeService) Submit(_ context.Context, in execution.SubmitInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, in)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.id, nil
}

func (f *fakeService) Status(ctx context.Context, id string) (execution.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return execution.Record{}, err
	}
	if f.statusErr != nil {
		return execution.Record{}, f.statusErr
	}
	index := f.polls
	if index >= len(f.states) {
		index = len(f.states) - 1
	}
	f.polls++
	record := f.states[index]
	record.ID = id
	return record, nil
}

func (f *fakeService) Stop(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		return "", errors.New("stop called with a cancelled context")
	}
	f.stopped = append(f.stopped, id)
	return f.stopAck, f.stopErr
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	// onGet runs before each lookup; a non-nil error is returned from Get.
	onGet func(ctx context.Context) error
}

func newMemoryStore(objects map[string]string) *memoryStore {
	store := &memoryStore{objects: map[string][]byte{}}
	for key, value := range objects {
		store.objects[key] = []byte(value)
	}
	return store
}

func (m *memoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.onGet != nil {
		if err := m.onGet(ctx); err != nil {
			return nil, err
		}
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Put(_ context.Context, bucket, key string, body io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: size}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (f *fakeHistory) Record(_ context.Context, entry history.Entry) (history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return entry, f.err
}

// fakeClock advances only when the executor sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

func states(values ...execution.State) []execution.Record {
	records := make([]execution.Record, 0, len(values))
	for _, value := range values {
		records = append(records, execution.Record{State: value})
	}
	return records
}
