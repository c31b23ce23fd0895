package cronjob

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
	rid   atomic.Value
}

func (r *countingReconciler) Reconcile(ctx context.Context) (domain.ReconcileResult, error) {
	r.calls.Add(1)
	r.rid.Store(logging.RequestID(ctx))
	if r.err != nil {
		return domain.ReconcileResult{}, r.err
	}
	return domain.ReconcileResult{Action: domain.ReconcileVerified, VectorStoreID: "vs_1"}, nil
}

func TestRunOnce(t *testing.T) {
	r := &countingReconciler{}
	NewScheduler(DefaultSchedule, r).RunOnce()

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, "cron-reconcile", r.rid.Load())
}

func TestRunOnce_ErrorIsLogged(t *testing.T) {
	r := &countingReconciler{err: errors.New("boom")}
	NewScheduler(DefaultSchedule, r).RunOnce()
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStart_Disabled(t *testing.T) {
	s := NewScheduler("", &countingReconciler{})
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewScheduler("not a cron spec", &countingReconciler{})
	assert.Error(t, s.Start())
	s.Stop()
}

func TestStart_RunsOnSchedule(t *testing.T) {
	r := &countingReconciler{}
	s := NewScheduler("* * * * * *", r)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
