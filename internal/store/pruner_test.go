package store

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrunerRemovesExpired(t *testing.T) {
	s := openTestStore(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	old := time.Now().Add(-2 * time.Hour)
	fresh := time.Now()
	require.NoError(t, s.Put("BTCUSDT", old, encoded("BTCUSDT", 1, old)))
	require.NoError(t, s.Put("BTCUSDT", fresh, encoded("BTCUSDT", 2, fresh)))

	p := NewPruner(s, time.Hour, 5*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		records, err := s.Scan("BTCUSDT", old.Add(-time.Minute), fresh.Add(time.Minute))
		return err == nil && len(records) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	records, err := s.Scan("BTCUSDT", old.Add(-time.Minute), fresh.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].Snapshot.LastUpdateID)
}
