package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/teamwork/agent"
	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/testutil"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stepFunc func(state core.WorkflowState, history []core.Message) (core.WorkflowState, error)

// MockAgent scripts agent turns; each expected Run call returns a stepFunc
// applied to the received state.
type MockAgent struct {
	mock.Mock
	tools map[string]tool.Tool
}

func (m *MockAgent) Description() string         { return "" }
func (m *MockAgent) Tools() map[string]tool.Tool { return m.tools }
func (m *MockAgent) Provider() model.Provider    { return nil }

func (m *MockAgent) Run(_ context.Context, state core.WorkflowState, history []core.Message, _ agent.Team) (core.WorkflowState, error) {
	args := m.Called(state.Agent)
	return args.Get(0).(stepFunc)(state, history)
}

func finish(text string) stepFunc {
	return func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Finish(s, core.Response(text)), nil
	}
}

func noFallback(o *Options) { o.Fallback = "" }

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) Observe(_ context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) events() []Event {
	var out []Event
	for _, s := range r.snaps {
		out = append(out, s.Event)
	}
	return out
}

func TestTeamwork_SingleAgentFinishes(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, history []core.Message) (core.WorkflowState, error) {
		assert.Empty(t, history)
		require.Len(t, s.Messages, 1)
		assert.Contains(t, s.Messages[0].Content, "<workflow>Say hi</workflow>")
		return core.Finish(s, core.Response("done")), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback, func(o *Options) { o.Description = "Say hi" })
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, core.StatusFinished, final.Status)
	assert.Equal(t, []core.Message{core.Response("done")}, final.Messages)
	assert.Equal(t, "done", Solution(final))
	sup.AssertExpectations(t)
}

func TestIterate_ToolResolution(t *testing.T) {
	answer := tool.NewFunctionTool("answers", map[string]any{"type": "object"},
		func(context.Context, map[string]any, tool.Context) (any, error) { return "42", nil })

	a := &MockAgent{tools: map[string]tool.Tool{"t": answer}}
	a.On("Run", "A").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Suspend(s, core.ToolCallRequest(core.ToolCall{ID: "c1", Name: "t", Arguments: []byte(`{}`)})), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": a, "A": a}, noFallback)
	require.NoError(t, err)

	state, err := wf.Iterate(context.Background(), core.NewState("A", core.Request("go")))
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaused, state.Status)

	state, err = wf.Iterate(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, core.StatusRunning, state.Status)
	last, ok := state.LastMessage()
	require.True(t, ok)
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "42", last.Content)
	a.AssertExpectations(t)
}

func TestIterate_DelegationMerge(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		task := core.Request("sub-task")
		return core.Delegate(s, task, core.NewState("B", task)), nil
	})).Once()

	b := &MockAgent{}
	b.On("Run", "B").Return(stepFunc(func(s core.WorkflowState, history []core.Message) (core.WorkflowState, error) {
		assert.Equal(t, []core.Message{core.Request("plan"), core.Request("sub-task")}, history)
		return core.Finish(s, core.Response("sub-result")), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup, "B": b}, noFallback)
	require.NoError(t, err)
	ctx := context.Background()

	state, err := wf.Iterate(ctx, core.NewState("supervisor", core.Request("plan")))
	require.NoError(t, err)
	require.NotNil(t, state.Child)
	assert.Equal(t, "B", state.Child.Agent)
	assert.Equal(t, core.StatusRunning, state.Child.Status)

	state, err = wf.Iterate(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, state.Child)
	assert.Equal(t, core.StatusFinished, state.Child.Status)

	state, err = wf.Iterate(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, state.Child)
	assert.Equal(t, core.StatusRunning, state.Status)
	assert.Contains(t, state.Messages, core.Response("sub-result"))

	sup.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestTeamwork_NestedDelegationResolvesDepthFirst(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		task := core.Request("outer")
		return core.Delegate(s, task, core.NewState("B", task)), nil
	})).Once()
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		last, _ := s.LastMessage()
		return core.Finish(s, core.Response("final: "+last.Content)), nil
	})).Once()

	b := &MockAgent{}
	b.On("Run", "B").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		task := core.Request("inner")
		return core.Delegate(s, task, core.NewState("C", task)), nil
	})).Once()
	b.On("Run", "B").Return(finish("b-result")).Once()

	c := &MockAgent{}
	c.On("Run", "C").Return(stepFunc(func(s core.WorkflowState, history []core.Message) (core.WorkflowState, error) {
		assert.Len(t, history, 4)
		return core.Finish(s, core.Response("c-result")), nil
	})).Once()

	rec := &recorder{}
	wf, err := New(agent.Team{"supervisor": sup, "B": b, "C": c}, noFallback, func(o *Options) { o.Observer = rec })
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, "final: b-result", Solution(final))

	assert.Equal(t, []Event{
		EventStart, EventAgent, EventAgent, EventAgent, EventMerge, EventAgent, EventMerge, EventAgent, EventFinish,
	}, rec.events())
	assert.Equal(t, 3, rec.snaps[3].Depth)

	for _, s := range rec.snaps {
		assert.NoError(t, core.Validate(s.State))
	}

	sup.AssertExpectations(t)
	b.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestTeamwork_FallbackOnStepLimit(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		task := core.Request("again")
		return core.Delegate(s, task, core.NewState("B", task)), nil
	})).Once()

	b := &MockAgent{}
	b.On("Run", "B").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Continue(s, core.Response("step"), core.Request("more")), nil
	})).Times(2)

	boss := &MockAgent{}
	boss.On("Run", "finalBoss").Return(stepFunc(func(s core.WorkflowState, history []core.Message) (core.WorkflowState, error) {
		assert.Empty(t, history)
		assert.Nil(t, s.Child)
		assert.Len(t, s.Messages, 7)
		return core.Finish(s, core.Response("summary")), nil
	})).Once()

	rec := &recorder{}
	wf, err := New(agent.Team{"supervisor": sup, "B": b, "finalBoss": boss}, func(o *Options) {
		o.MaxSteps = 3
		o.Observer = rec
	})
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, "finalBoss", final.Agent)
	assert.Equal(t, "summary", Solution(final))
	assert.Contains(t, rec.events(), EventFallback)

	sup.AssertExpectations(t)
	b.AssertExpectations(t)
	boss.AssertExpectations(t)
}

func TestTeamwork_StepPolicyOverride(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Continue(s, core.Response("thinking"), core.Request("go on")), nil
	})).Once()

	boss := &MockAgent{}
	boss.On("Run", "finalBoss").Return(finish("forced")).Once()

	var seen []int
	wf, err := New(agent.Team{"supervisor": sup, "finalBoss": boss}, func(o *Options) {
		o.StepPolicy = func(step int, root core.WorkflowState) bool {
			seen = append(seen, step)
			return root.Agent == "supervisor" && len(root.Messages) > 2
		}
	})
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, "forced", Solution(final))
	assert.Equal(t, []int{1, 2, 1}, seen)
}

func TestTeamwork_StepLimitWithoutFallback(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Continue(s, core.Request("loop")), nil
	})).Times(2)

	wf, err := New(agent.Team{"supervisor": sup}, noFallback, func(o *Options) { o.MaxSteps = 2 })
	require.NoError(t, err)

	_, err = Teamwork(context.Background(), wf)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
	sup.AssertExpectations(t)
}

func TestTeamwork_FallbackExhaustedFails(t *testing.T) {
	spin := stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Continue(s, core.Request("loop")), nil
	})

	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(spin).Once()
	boss := &MockAgent{}
	boss.On("Run", "finalBoss").Return(spin).Once()

	wf, err := New(agent.Team{"supervisor": sup, "finalBoss": boss}, func(o *Options) { o.MaxSteps = 1 })
	require.NoError(t, err)

	_, err = Teamwork(context.Background(), wf)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
}

func TestTeamwork_UnknownAgent(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Handoff(s, "ghost", s.Messages), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback)
	require.NoError(t, err)

	_, err = Teamwork(context.Background(), wf)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
}

func TestTeamwork_InvalidTransition(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		next := s.Clone()
		next.Status = core.StatusPaused
		return next, nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback)
	require.NoError(t, err)

	_, err = Teamwork(context.Background(), wf)
	assert.ErrorIs(t, err, core.ErrProtocol)
}

func TestTeamwork_FinishWithPendingToolCalls(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Finish(s, core.ToolCallRequest(core.ToolCall{ID: "c1", Name: "t"})), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback)
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf)
	require.ErrorIs(t, err, core.ErrProtocol)
	assert.NotEqual(t, core.StatusFinished, final.Status)
}

func TestTeamwork_AgentErrorAborts(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return s, &core.TaskFailedError{Agent: s.Agent, Reason: "no data"}
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback)
	require.NoError(t, err)

	_, err = Teamwork(context.Background(), wf)
	var tf *core.TaskFailedError
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, "no data", tf.Reason)
}

func TestTeamwork_ObserverErrorsIgnored(t *testing.T) {
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(finish("ok")).Once()

	calls := 0
	failing := ObserverFunc(func(context.Context, Snapshot) error {
		calls++
		return errors.New("sink down")
	})
	rec := &recorder{}

	wf, err := New(agent.Team{"supervisor": sup}, noFallback, func(o *Options) {
		o.Observer = MultiObserver{failing, rec, LogObserver{}}
	})
	require.NoError(t, err)

	final, err := Teamwork(context.Background(), wf, func(o *RunOptions) { o.RunID = "run-1" })
	require.NoError(t, err)
	assert.Equal(t, "ok", Solution(final))
	assert.Equal(t, 3, calls)
	require.Len(t, rec.snaps, 3)
	assert.Equal(t, "run-1", rec.snaps[0].RunID)
}

func TestTeamwork_Cancelled(t *testing.T) {
	wf, err := New(agent.Team{"supervisor": &MockAgent{}}, noFallback)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Teamwork(ctx, wf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResume_ContinuesPausedState(t *testing.T) {
	echo := tool.NewFunctionTool("echo", map[string]any{"type": "object"},
		func(context.Context, map[string]any, tool.Context) (any, error) { return "pong", nil })

	sup := &MockAgent{tools: map[string]tool.Tool{"echo": echo}}
	sup.On("Run", "supervisor").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		last, _ := s.LastMessage()
		return core.Finish(s, core.Response(last.Content)), nil
	})).Once()

	wf, err := New(agent.Team{"supervisor": sup}, noFallback)
	require.NoError(t, err)

	paused := core.Suspend(wf.RootState(), core.ToolCallRequest(core.ToolCall{ID: "x", Name: "echo"}))
	final, err := Resume(context.Background(), wf, paused)
	require.NoError(t, err)
	assert.Equal(t, "pong", Solution(final))
}

func TestResume_PausedChild(t *testing.T) {
	echo := tool.NewFunctionTool("echo", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any, _ tool.Context) (any, error) { return args["text"], nil })

	finishWithLast := stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		last, _ := s.LastMessage()
		return core.Finish(s, core.Response(last.Content)), nil
	})

	writer := &MockAgent{tools: map[string]tool.Tool{"echo": echo}}
	writer.On("Run", "writer").Return(finishWithLast).Once()
	sup := &MockAgent{}
	sup.On("Run", "supervisor").Return(finishWithLast).Once()

	wf, err := New(agent.Team{"supervisor": sup, "writer": writer}, noFallback)
	require.NoError(t, err)

	state := testutil.NewStateBuilder("supervisor").Request("plan").
		Delegate("draft", testutil.NewStateBuilder("writer").Call("echo", map[string]any{"text": "drafted"})).
		Build()

	final, err := Resume(context.Background(), wf, state)
	require.NoError(t, err)
	assert.Equal(t, "drafted", Solution(final))
	writer.AssertExpectations(t)
	sup.AssertExpectations(t)
}

func TestResume_RejectsInvalidState(t *testing.T) {
	wf, err := New(agent.Team{"supervisor": &MockAgent{}}, noFallback)
	require.NoError(t, err)

	_, err = Resume(context.Background(), wf, core.NewState("ghost"))
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
}

func TestTeamwork_BuiltinAgents(t *testing.T) {
	add := tool.NewFunctionTool("adds numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any, _ tool.Context) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	p := model.NewMockProvider().
		AddJSON(map[string]any{"task": "Add 40 and 2", "reasoning": "only task"}).
		AddJSON(map[string]any{"agent": "calculator", "reasoning": "it adds"}).
		AddToolCalls(core.ToolCall{ID: "c1", Name: "add", Arguments: []byte(`{"a":40,"b":2}`)}).
		AddJSON(map[string]any{"response": map[string]any{
			"kind": "step", "name": "add", "result": "42", "reasoning": "tool said so", "nextStep": nil,
		}}).
		AddJSON(map[string]any{"task": nil, "reasoning": "done"})

	team := agent.Team{
		"calculator": agent.NewModelAgent(p, func(o *agent.Options) {
			o.Description = "Does arithmetic"
			o.Tools = map[string]tool.Tool{"add": add}
		}),
	}

	wf, err := New(team, func(o *Options) {
		o.Provider = p
		o.Description = "Compute 40 + 2"
		o.Output = "A number"
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"calculator", "finalBoss", "resourcePlanner", "supervisor"}, wf.Team().Names())

	final, err := Teamwork(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, "supervisor", final.Agent)
	assert.Equal(t, core.StatusFinished, final.Status)
	assert.Contains(t, final.Messages, core.Response("42"))
	assert.Equal(t, 0, p.Pending())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(agent.Team{})
	assert.ErrorIs(t, err, core.ErrUnknownAgent)

	_, err = New(agent.Team{"supervisor": &MockAgent{}})
	assert.ErrorIs(t, err, core.ErrUnknownAgent, "default fallback missing")

	_, err = New(agent.Team{"supervisor": &MockAgent{}}, noFallback)
	assert.NoError(t, err)
}

func TestRootState_Knowledge(t *testing.T) {
	wf, err := New(agent.Team{"supervisor": &MockAgent{}}, noFallback, func(o *Options) {
		o.Description = "Plan a trip"
		o.Output = "An itinerary"
		o.Knowledge = "Budget is 500"
	})
	require.NoError(t, err)

	root := wf.RootState()
	assert.Equal(t, "supervisor", root.Agent)
	assert.Equal(t, core.StatusRunning, root.Status)
	require.Len(t, root.Messages, 1)
	content := root.Messages[0].Content
	assert.Contains(t, content, "<workflow>Plan a trip</workflow>")
	assert.Contains(t, content, "<output>An itinerary</output>")
	assert.Contains(t, content, "<knowledge>Budget is 500</knowledge>")
}

func TestMaxSteps(t *testing.T) {
	p := MaxSteps(2)
	assert.False(t, p(2, core.WorkflowState{}))
	assert.True(t, p(3, core.WorkflowState{}))
	assert.False(t, MaxSteps(0)(1000, core.WorkflowState{}))
}

func TestContinuing(t *testing.T) {
	history := []Snapshot{
		{RunID: "r1", Step: 0, Event: EventStart},
		{RunID: "r1", Step: 1, Event: EventAgent},
		{RunID: "r1", Step: 2, Event: EventAgent},
		{RunID: "r1", Step: 3, Event: EventFallback},
		{RunID: "r1", Step: 4, Event: EventAgent},
		{RunID: "r1", Step: 5, Event: EventTools},
	}

	opts := RunOptions{}
	Continuing(history)(&opts)
	assert.Equal(t, RunOptions{RunID: "r1", StartStep: 5, Turns: 1, FallbackEngaged: true}, opts)

	opts = RunOptions{RunID: "keep"}
	Continuing(nil)(&opts)
	assert.Equal(t, RunOptions{RunID: "keep"}, opts)
}

func TestResume_FallbackAlreadyEngaged(t *testing.T) {
	boss := &MockAgent{}
	boss.On("Run", "finalBoss").Return(stepFunc(func(s core.WorkflowState, _ []core.Message) (core.WorkflowState, error) {
		return core.Continue(s, core.Response("thinking"), core.Request("more")), nil
	})).Once()

	rec := &recorder{}
	wf, err := New(agent.Team{"supervisor": &MockAgent{}, "finalBoss": boss}, func(o *Options) {
		o.MaxSteps = 1
		o.Observer = rec
	})
	require.NoError(t, err)

	state := core.Handoff(wf.RootState(), "finalBoss", wf.RootState().Messages)
	_, err = Resume(context.Background(), wf, state, func(o *RunOptions) {
		o.StartStep = 7
		o.FallbackEngaged = true
	})
	require.ErrorIs(t, err, core.ErrStepLimitExceeded)
	boss.AssertExpectations(t)

	snaps := rec.snaps
	require.Len(t, snaps, 2)
	assert.Equal(t, EventResume, snaps[0].Event)
	assert.Equal(t, 7, snaps[0].Step)
	assert.Equal(t, 8, snaps[1].Step)
}
