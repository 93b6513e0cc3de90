package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/tracker"
	"github.com/trezcool/maendeleo/services/reconcile"
	"github.com/trezcool/maendeleo/tests"
)

type fakeReconciler struct {
	report    tracker.ReconcileReport
	err       error
	batchSize int
}

func (f *fakeReconciler) Reconcile(_ context.Context, batchSize int) (tracker.ReconcileReport, error) {
	f.batchSize = batchSize
	return f.report, f.err
}

func TestNewScheduler(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Reconcile.Schedule = "every now and then"

	_, err := reconcile.NewScheduler(conf, new(testutil.Logger), new(fakeReconciler))
	assert.Error(t, err)
}

func TestScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name      string
		report    tracker.ReconcileReport
		err       error
		wantLevel string
	}{
		{name: "clean pass", report: tracker.ReconcileReport{Checked: 3, Completed: 1, Certificates: 1}, wantLevel: "debug"},
		{name: "some failures", report: tracker.ReconcileReport{Checked: 3, Failed: 2}, wantLevel: "warn"},
		{name: "query failure", err: errors.New("connection refused"), wantLevel: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			logger := new(testutil.Logger)
			rec := &fakeReconciler{report: tt.report, err: tt.err}

			s, err := reconcile.NewScheduler(conf, logger, rec)
			require.NoError(t, err)

			report, err := s.RunOnce(context.Background())
			assert.Equal(t, tt.err, err)
			assert.Equal(t, tt.report, report)
			assert.Equal(t, conf.Reconcile.BatchSize, rec.batchSize)
			assert.Len(t, logger.Entries(tt.wantLevel), 1)
		})
	}
}

func TestScheduler_Stop(t *testing.T) {
	s, err := reconcile.NewScheduler(core.NewTestConfig(), new(testutil.Logger), new(fakeReconciler))
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
