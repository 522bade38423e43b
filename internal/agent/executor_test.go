package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/pkg/models"
)

func testExecutorConfig() *ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = 5 * time.Millisecond
	return cfg
}

func decodeErrorPayload(t *testing.T, res models.OperationResult) errorPayload {
	t.Helper()
	var p errorPayload
	require.NoError(t, json.Unmarshal(res.Payload, &p))
	return p
}

func TestExecutor_PreservesCallOrder(t *testing.T) {
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		// Later calls finish first.
		var delay int
		fmt.Sscanf(call.CallID, "c%d", &delay)
		time.Sleep(time.Duration(10-delay) * time.Millisecond)
		return okResult("", `{"message":"`+call.CallID+`"}`)
	}}
	exec := NewExecutor(op, catalog.Default(), testExecutorConfig())

	calls := make([]models.OperationCall, 5)
	for i := range calls {
		calls[i] = call(fmt.Sprintf("c%d", i), catalog.OpGetStores, "")
	}
	results := exec.ExecuteAll(context.Background(), testCaller, calls)

	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].CallID, res.CallID, "result %d", i)
		assert.JSONEq(t, `{"message":"`+calls[i].CallID+`"}`, string(res.Payload))
	}
}

func TestExecutor_EmptyBatch(t *testing.T) {
	exec := NewExecutor(okOperator(), catalog.Default(), nil)
	assert.Nil(t, exec.ExecuteAll(context.Background(), testCaller, nil))
}

func TestExecutor_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return okResult(call.CallID, `{"message":"ok"}`)
	}}
	cfg := testExecutorConfig()
	cfg.MaxConcurrency = 2
	exec := NewExecutor(op, catalog.Default(), cfg)

	calls := make([]models.OperationCall, 6)
	for i := range calls {
		calls[i] = call(fmt.Sprintf("c%d", i), catalog.OpGetStores, "")
	}
	results := exec.ExecuteAll(context.Background(), testCaller, calls)

	require.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(6), op.count.Load())
}

func TestExecutor_TimeoutBecomesErrorResult(t *testing.T) {
	op := &funcOperator{fn: func(ctx context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		<-ctx.Done()
		return errResult(call.CallID, `{"message":"cancelled","error":"context canceled"}`)
	}}
	cfg := testExecutorConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	cfg.Retries = 0
	exec := NewExecutor(op, catalog.Default(), cfg)

	results := exec.ExecuteAll(context.Background(), testCaller, []models.OperationCall{
		call("slow", catalog.OpGetSalesSummary, ""),
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "slow", results[0].CallID)
	assert.Contains(t, decodeErrorPayload(t, results[0]).Message, "시간이 초과")

	stats := exec.Metrics()
	assert.Equal(t, int64(1), stats.TotalTimeouts)
	assert.Equal(t, int64(1), stats.TotalFailures)
}

func TestExecutor_PanicDoesNotBlockSiblings(t *testing.T) {
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		if call.CallID == "boom" {
			panic("nil map write")
		}
		return okResult(call.CallID, `{"message":"ok"}`)
	}}
	exec := NewExecutor(op, catalog.Default(), testExecutorConfig())

	results := exec.ExecuteAll(context.Background(), testCaller, []models.OperationCall{
		call("boom", catalog.OpGetOrders, ""),
		call("fine", catalog.OpGetStores, ""),
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Contains(t, decodeErrorPayload(t, results[0]).Error, "nil map write")
	assert.False(t, results[1].IsError)
	assert.Equal(t, int64(1), exec.Metrics().TotalPanics)
}

func TestExecutor_RetriesTransientReadFailures(t *testing.T) {
	var attempts atomic.Int32
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		if attempts.Add(1) == 1 {
			return errResult(call.CallID, `{"message":"조회 실패","error":"dial tcp: connection refused"}`)
		}
		return okResult(call.CallID, `{"message":"ok"}`)
	}}
	exec := NewExecutor(op, catalog.Default(), testExecutorConfig())

	results := exec.ExecuteAll(context.Background(), testCaller, []models.OperationCall{
		call("c1", catalog.OpGetEmployees, ""),
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, int32(2), op.count.Load())
	stats := exec.Metrics()
	assert.Equal(t, int64(1), stats.TotalRetries)
	assert.Equal(t, int64(0), stats.TotalFailures)
}

func TestExecutor_DoesNotRetry(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		payload string
	}{
		{"mutating operation", catalog.OpCreateAttendanceRecord, `{"message":"기록 실패","error":"connection reset by peer"}`},
		{"validation failure", catalog.OpGetEmployees, `{"message":"입력 오류","error":"invalid limit"}`},
		{"unsupported result", catalog.OpGetEmployees, `{"message":"처리할 수 없는 요청입니다","error":"timeout","unsupported":true}`},
		{"unknown operation", "drop_tables", `{"message":"처리할 수 없는 요청입니다","error":"network"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
				return errResult(call.CallID, tt.payload)
			}}
			exec := NewExecutor(op, catalog.Default(), testExecutorConfig())

			results := exec.ExecuteAll(context.Background(), testCaller, []models.OperationCall{call("c1", tt.op, "")})

			require.Len(t, results, 1)
			assert.True(t, results[0].IsError)
			assert.JSONEq(t, tt.payload, string(results[0].Payload))
			assert.Equal(t, int32(1), op.count.Load())
		})
	}
}

func TestExecutor_GivesUpAfterRetryBudget(t *testing.T) {
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return errResult(call.CallID, `{"message":"조회 실패","error":"database is locked"}`)
	}}
	cfg := testExecutorConfig()
	cfg.Retries = 2
	exec := NewExecutor(op, catalog.Default(), cfg)

	results := exec.ExecuteAll(context.Background(), testCaller, []models.OperationCall{call("c1", catalog.OpGetPayslips, "")})

	assert.True(t, results[0].IsError)
	assert.Equal(t, int32(3), op.count.Load())
	assert.Equal(t, int64(2), exec.Metrics().TotalRetries)
}

func TestExecutor_CancelledContext(t *testing.T) {
	op := &funcOperator{fn: func(ctx context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		<-ctx.Done()
		return errResult(call.CallID, `{"message":"취소","error":"context canceled"}`)
	}}
	exec := NewExecutor(op, catalog.Default(), testExecutorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := exec.ExecuteAll(ctx, testCaller, []models.OperationCall{
		call("c1", catalog.OpGetStores, ""),
		call("c2", catalog.OpGetOrders, ""),
	})

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.IsError)
	}
}

func TestSanitizeExecutorConfig(t *testing.T) {
	cfg := sanitizeExecutorConfig(&ExecutorConfig{MaxConcurrency: -1, Retries: -3})
	defaults := DefaultExecutorConfig()
	assert.Equal(t, defaults.MaxConcurrency, cfg.MaxConcurrency)
	assert.Equal(t, defaults.OperationTimeout, cfg.OperationTimeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, defaults, sanitizeExecutorConfig(nil))
}
