package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/operations"
	"github.com/haasonsaas/opsassist/internal/reply"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

func TestNewLoop_RequiresCollaborators(t *testing.T) {
	_, err := NewLoop(nil, okOperator(), newTestPrompt(nil), nil)
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewLoop(&loopTestProvider{}, nil, newTestPrompt(nil), nil)
	assert.ErrorIs(t, err, ErrNoOperator)

	_, err = NewLoop(&loopTestProvider{}, okOperator(), nil, nil)
	assert.Error(t, err)
}

func TestLoop_DirectAnswer(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{textChunks("안녕하세요. 무엇을 도와드릴까요?")}}
	op := okOperator()
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "  안녕  ")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, out.State)
	assert.Equal(t, 0, out.Rounds)
	assert.Equal(t, "안녕하세요. 무엇을 도와드릴까요?", out.FinalMessage)
	require.Len(t, out.Conversation, 2)
	assert.Equal(t, models.UserTurn("안녕"), out.Conversation[0])
	assert.Equal(t, models.AssistantText(out.FinalMessage), out.Conversation[1])
	assert.Equal(t, int32(0), op.count.Load())

	req := provider.request(0)
	assert.Len(t, req.Tools, len(catalog.Default().Names()))
	assert.Contains(t, req.System, "2025-03-12 (수요일)")
	assert.Equal(t, DefaultLoopConfig().MaxTokens, req.MaxTokens)
}

func TestLoop_MultiCallRound(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(
			call("c1", catalog.OpGetSalesSummary, `{"date_range":"last_week"}`),
			call("c2", catalog.OpGetWorkHours, `{"date_range":"last_week"}`),
		),
		textChunks("| 매출 | 근무 |\n|---|---|\n| 1,000,000원 | 120시간 |"),
	}}
	op := okOperator()
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "지난주 매출이랑 근무시간")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, out.State)
	assert.Equal(t, 1, out.Rounds)
	assert.Equal(t, "매출 · 근무\n1,000,000원 · 120시간", out.FinalMessage)
	assert.Equal(t, int32(2), op.count.Load())

	require.Len(t, out.Conversation, 4)
	assert.Len(t, out.Conversation[1].Calls, 2)
	results := out.Conversation[2].Results
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)

	// The second call sees the calls and their results.
	second := provider.request(1)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, string(models.RoleTool), second.Messages[2].Role)
	assert.NotEmpty(t, second.Tools)
}

func TestLoop_TableRequestKeepsMarkdown(t *testing.T) {
	table := "| 이름 | 코드 |\n|---|---|\n| 김민수 | EMP101 |"
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpGetEmployees, "")),
		textChunks(table),
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "직원 목록 표로 보여줘")
	require.NoError(t, err)
	assert.Equal(t, table, out.FinalMessage)
}

func TestLoop_AssignsMissingCallIDs(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(models.OperationCall{Name: catalog.OpGetStores}),
		textChunks("매장은 2곳입니다."),
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "매장 몇 개야")
	require.NoError(t, err)

	id := out.Conversation[1].Calls[0].CallID
	assert.NotEmpty(t, id)
	assert.Equal(t, id, out.Conversation[2].Results[0].CallID)
}

func TestLoop_RewritesDuplicateCallIDs(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(
			call("dup", catalog.OpGetStores, ""),
			call("dup", catalog.OpGetEmployees, ""),
		),
		textChunks("매장 2곳, 직원 3명입니다."),
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "매장이랑 직원 알려줘")
	require.NoError(t, err)

	calls := out.Conversation[1].Calls
	results := out.Conversation[2].Results
	require.Len(t, calls, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "dup", calls[0].CallID)
	assert.NotEqual(t, calls[0].CallID, calls[1].CallID)
	for i := range calls {
		assert.Equal(t, calls[i].CallID, results[i].CallID)
	}
}

func TestLoop_ErrorResultForcesClosingRefusal(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpGetOrders, "")),
		textChunks("주문 조회 중 문제가 있었지만 대략 10건입니다."),
	}}
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return errResult(call.CallID, `{"message":"매장을 찾을 수 없습니다","error":"store not found"}`)
	}}
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "오늘 주문")
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, out.State)
	assert.Equal(t, reply.DefaultRefusalMessage, out.FinalMessage)
	assert.Equal(t, 1, out.Rounds)
	assert.Equal(t, int32(1), op.count.Load())
	assert.Equal(t, int32(2), provider.calls.Load())

	closing := provider.request(1)
	assert.Len(t, closing.Tools, len(catalog.Default().Names()))
	assert.Equal(t, ToolChoiceNone, closing.ToolChoice)
	assert.True(t, strings.HasSuffix(closing.System, newTestPrompt(nil).ClosingInstruction()))
}

func TestLoop_UnsupportedRequestRefuses(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpReportUnsupported, `{"reason":"날씨"}`)),
		textChunks("내일은 맑겠습니다."),
	}}
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return okResult(call.CallID, `{"message":"처리할 수 없는 요청입니다: 날씨","unsupported":true}`)
	}}
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "내일 날씨 어때")
	require.NoError(t, err)

	assert.Equal(t, reply.DefaultRefusalMessage, out.FinalMessage)
	assert.Equal(t, int32(2), provider.calls.Load())
	assert.NotEmpty(t, provider.request(1).Tools)
	assert.Equal(t, ToolChoiceNone, provider.request(1).ToolChoice)
}

func TestLoop_RoundBudgetForcesApology(t *testing.T) {
	provider := &loopTestProvider{}
	provider.completeFunc = func(_ context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		if req.ToolChoice == ToolChoiceNone {
			return replay(textChunks("한 번만 더 조회하겠습니다.")), nil
		}
		return replay(callChunks(call("", catalog.OpGetStores, ""))), nil
	}
	op := okOperator()
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "모든 매장의 모든 정보를 알려줘")
	require.NoError(t, err)

	assert.Equal(t, models.StateAbortedLimit, out.State)
	assert.Equal(t, 5, out.Rounds)
	assert.Equal(t, reply.DefaultApologyMessage, out.FinalMessage)
	assert.Equal(t, int32(5), op.count.Load())
	assert.Equal(t, int32(7), provider.calls.Load())

	last := provider.request(6)
	assert.NotEmpty(t, last.Tools)
	assert.Equal(t, ToolChoiceNone, last.ToolChoice)
	assert.Equal(t, ToolChoiceAuto, provider.request(5).ToolChoice)
	assert.Contains(t, last.System, reply.DefaultApologyMessage)

	// user + 5 × (calls, results) + final answer
	assert.Len(t, out.Conversation, 12)
}

func TestLoop_ConfiguredRoundBudget(t *testing.T) {
	provider := &loopTestProvider{}
	provider.completeFunc = func(_ context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		if req.ToolChoice == ToolChoiceNone {
			return replay(textChunks("그만")), nil
		}
		return replay(callChunks(call("", catalog.OpGetStores, ""))), nil
	}
	op := okOperator()
	loop := newTestLoop(t, provider, op, &LoopConfig{MaxRounds: 2})

	out, err := loop.Run(context.Background(), testCaller, nil, "반복")
	require.NoError(t, err)
	assert.Equal(t, models.StateAbortedLimit, out.State)
	assert.Equal(t, 2, out.Rounds)
	assert.Equal(t, int32(2), op.count.Load())
	assert.Equal(t, int32(4), provider.calls.Load())
}

func TestLoop_IgnoresCallsFromClosingCall(t *testing.T) {
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpGetOrders, "")),
		append(callChunks(call("c2", catalog.OpGetOrders, ""))[:1], textChunks("다시 조회")...),
	}}
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return errResult(call.CallID, `{"message":"실패","error":"boom"}`)
	}}
	loop := newTestLoop(t, provider, op, nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "주문")
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, out.State)
	assert.Equal(t, int32(1), op.count.Load())
	assert.Equal(t, reply.DefaultRefusalMessage, out.FinalMessage)
}

func TestLoop_EmptyMessage(t *testing.T) {
	provider := &loopTestProvider{}
	loop := newTestLoop(t, provider, okOperator(), nil)

	_, err := loop.Run(context.Background(), testCaller, nil, " \n\t")

	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, PhaseInit, loopErr.Phase)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestLoop_ProviderError(t *testing.T) {
	cause := errors.New("upstream unavailable")
	provider := &loopTestProvider{completeFunc: func(context.Context, *CompletionRequest) (<-chan *CompletionChunk, error) {
		return nil, cause
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	out, err := loop.Run(context.Background(), testCaller, nil, "매출")

	assert.Nil(t, out)
	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, PhaseModel, loopErr.Phase)
	assert.Equal(t, 0, loopErr.Round)
	assert.ErrorIs(t, err, cause)
}

func TestLoop_StreamErrorChunk(t *testing.T) {
	cause := errors.New("stream reset")
	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpGetStores, "")),
		{{Text: "부분 응답"}, {Error: cause}},
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	_, err := loop.Run(context.Background(), testCaller, nil, "매장")

	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, PhaseModel, loopErr.Phase)
	assert.Equal(t, 1, loopErr.Round)
	assert.ErrorIs(t, err, cause)
}

func TestLoop_ClosingCallError(t *testing.T) {
	cause := errors.New("closing failed")
	provider := &loopTestProvider{}
	provider.completeFunc = func(_ context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		if req.ToolChoice == ToolChoiceNone {
			return nil, cause
		}
		return replay(callChunks(call("c1", catalog.OpGetOrders, ""))), nil
	}
	op := &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return errResult(call.CallID, `{"message":"실패","error":"boom"}`)
	}}
	loop := newTestLoop(t, provider, op, nil)

	_, err := loop.Run(context.Background(), testCaller, nil, "주문")

	var loopErr *LoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, PhaseClosing, loopErr.Phase)
}

func TestLoop_ModelTimeout(t *testing.T) {
	provider := &loopTestProvider{completeFunc: func(context.Context, *CompletionRequest) (<-chan *CompletionChunk, error) {
		return make(chan *CompletionChunk), nil
	}}
	loop := newTestLoop(t, provider, okOperator(), &LoopConfig{ModelTimeout: 20 * time.Millisecond})

	_, err := loop.Run(context.Background(), testCaller, nil, "매출")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &loopTestProvider{completeFunc: func(context.Context, *CompletionRequest) (<-chan *CompletionChunk, error) {
		cancel()
		return make(chan *CompletionChunk), nil
	}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	_, err := loop.Run(ctx, testCaller, nil, "매출")

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "timed out")
}

func TestLoop_RepairsHistoryBeforeFirstCall(t *testing.T) {
	history := []models.Turn{
		models.UserTurn("매장 목록"),
		models.AssistantCalls([]models.OperationCall{call("old", catalog.OpGetStores, "")}),
		models.UserTurn("아니 직원 목록"),
		models.AssistantText("직원은 3명입니다."),
	}
	provider := &loopTestProvider{responses: [][]*CompletionChunk{textChunks("네")}}
	loop := newTestLoop(t, provider, okOperator(), nil)

	out, err := loop.Run(context.Background(), testCaller, history, "고마워")
	require.NoError(t, err)

	msgs := provider.request(0).Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, string(models.RoleTool), msgs[2].Role)
	require.Len(t, msgs[2].Results, 1)
	assert.Equal(t, "old", msgs[2].Results[0].CallID)
	assert.True(t, msgs[2].Results[0].IsError)
	assert.Equal(t, "고마워", msgs[5].Content)

	assert.Len(t, out.Conversation, 7)
	assert.Len(t, history, 4)
}

func TestLoop_ConcurrentRuns(t *testing.T) {
	provider := &loopTestProvider{}
	provider.completeFunc = func(_ context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == string(models.RoleTool) {
			return replay(textChunks("완료")), nil
		}
		return replay(callChunks(call("c1", catalog.OpGetStores, ""))), nil
	}
	loop := newTestLoop(t, provider, okOperator(), nil)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out, err := loop.Run(context.Background(), testCaller, nil, "매장")
			if err == nil && out.FinalMessage != "완료" {
				err = errors.New("unexpected answer " + out.FinalMessage)
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int64(8), loop.ExecutorMetrics().TotalExecutions)
}

func TestLoop_WithOperationsExecutor(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	created := fixedNow.Add(-24 * time.Hour)
	_, err := storage.Seed(ctx, stores, &storage.Fixtures{
		Stores: []models.Store{{ID: "s1", Code: "GN01", Name: "강남점", CreatedAt: created}},
		Employees: []models.Employee{{
			ID: "p1", EmployeeCode: "EMP101", Name: "김민수", StoreID: "s1",
			ContractClassification: models.ClassificationPartTime,
			EmploymentStatus:       models.StatusEmployed,
			CreatedAt:              created,
		}},
	})
	require.NoError(t, err)

	dates := datetime.NewResolver(seoul).WithClock(func() time.Time { return fixedNow })
	ops, err := operations.New(catalog.Default(), stores, dates)
	require.NoError(t, err)

	provider := &loopTestProvider{responses: [][]*CompletionChunk{
		callChunks(call("c1", catalog.OpGetEmployees, `{"search":"김민수"}`)),
		textChunks("| 이름 | 코드 |\n|---|---|\n| 김민수 | EMP101 |"),
	}}
	loop, err := NewLoop(provider, ops, newTestPrompt(nil), nil)
	require.NoError(t, err)

	out, err := loop.Run(ctx, testCaller, nil, "김민수 직원 정보")
	require.NoError(t, err)

	assert.Equal(t, "이름 · 코드\n김민수 · EMP101", out.FinalMessage)
	res := out.Conversation[2].Results[0]
	assert.False(t, res.IsError)
	assert.Contains(t, string(res.Payload), "EMP101")
}
