package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-marketplace/internal/domain/outbox"
	"course-marketplace/internal/infra/kafka"
	"course-marketplace/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	sent []kafka.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func addMessages(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	base := time.Now().UTC()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&outbox.Message{
			ID:        uuid.NewString(),
			Type:      outbox.TypeEnrollmentCompleted,
			Key:       uuid.NewString(),
			Payload:   datatypes.JSON(`{"n":1}`),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}).Error)
	}
}

func unprocessed(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&outbox.Message{}).Where("processed_at IS NULL").Count(&n).Error)
	return n
}

func TestProcessBatch(t *testing.T) {
	db := testutil.OpenTestDB(t)
	addMessages(t, db, 5)

	pub := &recordingPublisher{}
	r := New(db, pub, Config{BatchSize: 3}, testutil.DiscardLogger())

	n, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 2, unprocessed(t, db))

	n, err = r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, pub.sent, 5)
	assert.Equal(t, outbox.TypeEnrollmentCompleted, pub.sent[0].Type)
	assert.JSONEq(t, `{"n":1}`, string(pub.sent[0].Value))
}

func TestProcessBatchKeepsRowsWhenPublishFails(t *testing.T) {
	db := testutil.OpenTestDB(t)
	addMessages(t, db, 2)

	pub := &recordingPublisher{err: errors.New("broker down")}
	r := New(db, pub, Config{BatchSize: 10}, testutil.DiscardLogger())

	_, err := r.ProcessBatch(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, unprocessed(t, db))

	pub.err = nil
	n, err := r.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, unprocessed(t, db))
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	db := testutil.OpenTestDB(t)
	addMessages(t, db, 7)

	pub := &recordingPublisher{}
	r := New(db, pub, Config{PollInterval: 10 * time.Millisecond, BatchSize: 2}, testutil.DiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() == 7 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, unprocessed(t, db))
}
