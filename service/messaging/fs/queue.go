package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/gatekeep/service/messaging"
)

// Message is a spooled delivery persisted as a JSON document.
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Retries   int       `json:"retries"`

	name      string
	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack removes the message from the spool.
func (m *Message[T]) Ack() error {
	if err := m.settle(); err != nil {
		return err
	}
	return m.queue.remove(context.Background(), path.Join(m.queue.processingDir, m.name))
}

// Nack schedules the message for redelivery after RetryDelay, or moves it to
// the dead letter directory once MaxRetries is exceeded.
func (m *Message[T]) Nack(cause error) error {
	if err := m.settle(); err != nil {
		return err
	}
	m.Retries++
	if cause != nil {
		m.Error = cause.Error()
	}
	return m.queue.reschedule(context.Background(), m)
}

func (m *Message[T]) settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Config holds configuration for the filesystem queue
type Config struct {
	BasePath     string
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:     "/tmp/gatekeep/events",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Queue is a durable messaging.Queue backed by any afs storage. Messages live
// in pending/ until consumed, processing/ while in flight and dlq/ once
// retries are exhausted. File names start with the time the message becomes
// deliverable so a lexical listing yields delivery order.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates the spool directories and returns any in-flight messages
// left over from a previous process to pending/.
func NewQueue[T any](ctx context.Context, fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		dlqDir:        path.Join(config.BasePath, "dlq"),
	}
	for _, dir := range []string{q.pendingDir, q.processingDir, q.dlqDir} {
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	orphans, err := q.list(ctx, q.processingDir)
	if err != nil {
		return nil, err
	}
	for _, obj := range orphans {
		if err := fs.Move(ctx, obj.URL(), path.Join(q.pendingDir, obj.Name())); err != nil {
			return nil, fmt.Errorf("failed to recover %s: %w", obj.Name(), err)
		}
	}
	return q, nil
}

// Publish writes t to pending/.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{ID: uuid.New().String(), Data: *t, CreatedAt: now}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.upload(ctx, path.Join(q.pendingDir, filename(now, message.ID)), data)
}

// Consume blocks until a deliverable message is available or ctx is done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()
	for {
		message, err := q.next(ctx)
		if err != nil || message != nil {
			return message, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pending returns the number of messages waiting in pending/.
func (q *Queue[T]) Pending(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.pendingDir)
	return len(objects), err
}

// DeadLetters returns the number of messages in dlq/.
func (q *Queue[T]) DeadLetters(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.dlqDir)
	return len(objects), err
}

func (q *Queue[T]) next(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	objects, err := q.list(ctx, q.pendingDir)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}
	obj := objects[0]
	if due, ok := dueAt(obj.Name()); ok && due.After(time.Now()) {
		return nil, nil
	}
	message, err := q.read(ctx, obj.URL())
	if err != nil {
		_ = q.fs.Move(ctx, obj.URL(), path.Join(q.dlqDir, "invalid-"+obj.Name()))
		return nil, err
	}
	if err := q.fs.Move(ctx, obj.URL(), path.Join(q.processingDir, obj.Name())); err != nil {
		return nil, fmt.Errorf("failed to claim message %s: %w", obj.Name(), err)
	}
	message.name = obj.Name()
	message.queue = q
	return message, nil
}

func (q *Queue[T]) reschedule(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	target := path.Join(q.dlqDir, m.name)
	if m.Retries <= q.config.MaxRetries {
		target = path.Join(q.pendingDir, filename(time.Now().Add(q.config.RetryDelay), m.ID))
	}
	if err := q.upload(ctx, target, data); err != nil {
		return err
	}
	return q.fs.Delete(ctx, path.Join(q.processingDir, m.name))
}

func (q *Queue[T]) remove(ctx context.Context, URL string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if exists, _ := q.fs.Exists(ctx, URL); !exists {
		return nil
	}
	return q.fs.Delete(ctx, URL)
}

func (q *Queue[T]) list(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var result []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			result = append(result, obj)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result, nil
}

func (q *Queue[T]) upload(ctx context.Context, URL string, data []byte) error {
	if err := q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", URL, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	message := &Message[T]{}
	if err := json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return message, nil
}

func filename(due time.Time, id string) string {
	return fmt.Sprintf("%019d-%s.json", due.UnixNano(), id)
}

func dueAt(name string) (time.Time, bool) {
	prefix, _, ok := strings.Cut(name, "-")
	if !ok {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
