package journey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm/journey/pkg/log"
	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
	"github.com/autocrm/journey/pkg/persistence/file"
	"github.com/autocrm/journey/pkg/protocol"
)

type sentMessage struct {
	Recipient string
	Text      string
	Extras    protocol.MessageExtras
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(_ context.Context, recipient, text string, extras protocol.MessageExtras) (protocol.Delivery, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return protocol.Delivery{}, f.err
	}

	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text, Extras: extras})

	return protocol.Delivery{ProviderID: "msg-" + uuid.New().String()[:8]}, nil
}

type createdTask struct {
	SubjectID string
	Title     string
	DueAt     time.Time
	Script    string
}

type fakeTasks struct {
	mu      sync.Mutex
	created []createdTask
	err     error
}

func (f *fakeTasks) Create(_ context.Context, subjectID, title string, dueAt time.Time, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	f.created = append(f.created, createdTask{SubjectID: subjectID, Title: title, DueAt: dueAt, Script: script})

	return "task-" + uuid.New().String()[:8], nil
}

type fakeContent struct {
	script string
	err    error
}

func (f *fakeContent) Generate(_ context.Context, _ string, _ map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	return f.script, nil
}

type fakeLookup struct {
	fields map[string]any
	err    error
}

func (f *fakeLookup) Field(_ context.Context, _, field string) (any, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.fields[field], nil
}

func newTestExecutor(t *testing.T, capabilities Capabilities) (*Executor, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewExecutor(p, nil, capabilities, log.WithModule("test")), p
}

func saveJourneyVersion(t *testing.T, p persistence.Persistence, graph *models.Graph) (*models.Journey, *models.JourneyVersion) {
	t.Helper()

	j := &models.Journey{
		ID:        uuid.New().String(),
		Name:      "Test Journey",
		Status:    models.JourneyStatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	version := &models.JourneyVersion{
		ID:        uuid.New().String(),
		JourneyID: j.ID,
		Number:    1,
		Graph:     graph,
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.JourneyRepository().SaveVersion(t.Context(), version))

	j.CurrentVersionID = version.ID
	require.NoError(t, p.JourneyRepository().SaveJourney(t.Context(), j))

	return j, version
}

func messageNode(id, text string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeAction,
		Data: models.NodeData{Action: &models.ActionConfig{
			Kind:    models.ActionKindSendMessage,
			Message: &models.MessageActionConfig{Text: text},
		}},
	}
}

func linearGraph() *models.Graph {
	return &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			messageNode("a1", "Welcome {{name}}!"),
			messageNode("a2", "Here is your starter guide"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
			{ID: "e2", Source: "a1", Target: "a2"},
		},
	}
}

func logActions(t *testing.T, p persistence.Persistence, enrollmentID string) []models.LogAction {
	t.Helper()

	entries, err := p.ExecutionLogRepository().EntriesByEnrollment(t.Context(), enrollmentID)
	require.NoError(t, err)

	actions := make([]models.LogAction, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}

	return actions
}

func TestExecutor_LinearJourneyCompletes(t *testing.T) {
	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})

	j, version := saveJourneyVersion(t, p, linearGraph())

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", map[string]any{"name": "Akiko"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, version.ID, enrollment.VersionID)
	assert.Empty(t, enrollment.CurrentNodeID)

	// Both messages delivered, with context interpolated into the first
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Welcome Akiko!", sender.sent[0].Text)
	assert.Equal(t, "subject-1", sender.sent[0].Recipient)

	// enter(t1), process(a1), enter(a1)... the trail ends with an exit
	actions := logActions(t, p, enrollment.ID)
	require.NotEmpty(t, actions)
	assert.Equal(t, models.LogActionEnter, actions[0])
	assert.Equal(t, models.LogActionExit, actions[len(actions)-1])
	assert.NotContains(t, actions, models.LogActionWarning)
	assert.NotContains(t, actions, models.LogActionError)
}

func TestExecutor_ConditionBranching(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "purchase"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "total_spent",
					Operator: models.OperatorGreaterThan,
					Value:    100,
				}},
			},
			messageNode("big", "Thanks for the big order!"),
			messageNode("small", "Thanks for your order"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "big", SourceHandle: models.BranchTrue},
			{ID: "e3", Source: "c1", Target: "small", SourceHandle: models.BranchFalse},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	// True branch
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", map[string]any{"total_spent": 250})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Thanks for the big order!", sender.sent[0].Text)

	// False branch
	sender.sent = nil
	enrollment, err = executor.Enroll(t.Context(), j, version, "subject-2", map[string]any{"total_spent": 10})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Thanks for your order", sender.sent[0].Text)
}

func TestExecutor_ConditionDeadEndCompletes(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "purchase"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "total_spent",
					Operator: models.OperatorGreaterThan,
					Value:    100,
				}},
			},
			messageNode("big", "Thanks for the big order!"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "big", SourceHandle: models.BranchTrue},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	// False branch has no edge: normal completion, not a failure
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", map[string]any{"total_spent": 10})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Empty(t, sender.sent)
	assert.NotContains(t, logActions(t, p, enrollment.ID), models.LogActionError)
}

func TestExecutor_AmbiguousBranchFailsEnrollment(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "purchase"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "total_spent",
					Operator: models.OperatorGreaterThan,
					Value:    100,
				}},
			},
			messageNode("a1", "one"),
			messageNode("a2", "two"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "a1", SourceHandle: models.BranchTrue},
			{ID: "e3", Source: "c1", Target: "a2", SourceHandle: models.BranchTrue},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	// Version saved without validation; the executor must still reject it.
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", map[string]any{"total_spent": 250})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)
	assert.Empty(t, sender.sent)

	actions := logActions(t, p, enrollment.ID)
	assert.Equal(t, models.LogActionError, actions[len(actions)-1])
}

func TestExecutor_MultipleOutgoingEdgesFailEnrollment(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			messageNode("a1", "first"),
			messageNode("a2", "second"),
			messageNode("a3", "third"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
			{ID: "e2", Source: "a1", Target: "a2"},
			{ID: "e3", Source: "a1", Target: "a3"},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	// Version saved without validation; the executor must fail instead of
	// silently picking one of a1's two outgoing edges.
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)
	assert.Empty(t, enrollment.CurrentNodeID)
	assert.Len(t, sender.sent, 1)

	actions := logActions(t, p, enrollment.ID)
	assert.Equal(t, models.LogActionError, actions[len(actions)-1])
}

func TestExecutor_ConcurrentAdvanceRunsActionOnce(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			messageNode("a1", "Welcome aboard"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}

	// The slow sender keeps the first worker inside the action long enough
	// for the second to contend for the same enrollment.
	sender := &fakeSender{delay: 50 * time.Millisecond}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:            uuid.New().String(),
		JourneyID:     j.ID,
		VersionID:     version.ID,
		SubjectID:     "subject-1",
		CurrentNodeID: "t1",
		Status:        models.EnrollmentStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, p.EnrollmentRepository().SaveEnrollment(t.Context(), enrollment))

	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, executor.Advance(t.Context(), enrollment.ID))
		}()
	}

	wg.Wait()

	// The loser waits its turn, reloads, sees a terminal enrollment and
	// backs off. The message goes out exactly once.
	require.Len(t, sender.sent, 1)

	final, err := p.EnrollmentRepository().EnrollmentByID(t.Context(), enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, final.Status)

	exits := 0

	for _, action := range logActions(t, p, enrollment.ID) {
		if action == models.LogActionExit {
			exits++
		}
	}

	assert.Equal(t, 1, exits)
}

func TestExecutor_ConditionSubjectLookupFallback(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "anniversary"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "lifetime_value",
					Operator: models.OperatorGreaterOrEqual,
					Value:    1000,
				}},
			},
			messageNode("vip", "A gift is on its way"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "vip", SourceHandle: models.BranchTrue},
		},
	}

	sender := &fakeSender{}
	lookup := &fakeLookup{fields: map[string]any{"lifetime_value": 2500}}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender, Subjects: lookup})
	j, version := saveJourneyVersion(t, p, graph)

	// The field is not in the event payload, so it resolves via the lookup
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
}

func TestExecutor_ConditionLookupFailureIsFalse(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "anniversary"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "lifetime_value",
					Operator: models.OperatorGreaterOrEqual,
					Value:    1000,
				}},
			},
			messageNode("vip", "A gift is on its way"),
			messageNode("thanks", "Happy anniversary"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "vip", SourceHandle: models.BranchTrue},
			{ID: "e3", Source: "c1", Target: "thanks", SourceHandle: models.BranchFalse},
		},
	}

	sender := &fakeSender{}
	lookup := &fakeLookup{err: errors.New("subject service down")}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender, Subjects: lookup})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	// Lookup failure evaluates to false and leaves a warning in the log
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Happy anniversary", sender.sent[0].Text)
	assert.Contains(t, logActions(t, p, enrollment.ID), models.LogActionWarning)
}

func TestExecutor_ConditionWithoutSubjectAdapterWarns(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "anniversary"}},
			},
			{
				ID:   "c1",
				Type: models.NodeTypeCondition,
				Data: models.NodeData{Condition: &models.ConditionConfig{
					Field:    "lifetime_value",
					Operator: models.OperatorGreaterOrEqual,
					Value:    1000,
				}},
			},
			messageNode("vip", "A gift is on its way"),
			messageNode("thanks", "Happy anniversary"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "vip", SourceHandle: models.BranchTrue},
			{ID: "e3", Source: "c1", Target: "thanks", SourceHandle: models.BranchFalse},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	// No subjects adapter and the fact is absent: false branch, but the
	// unresolved lookup leaves the same warning a failed lookup would.
	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Happy anniversary", sender.sent[0].Text)
	assert.Contains(t, logActions(t, p, enrollment.ID), models.LogActionWarning)
}

func TestExecutor_AdapterFailureIsWarningNotFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("messaging service unavailable")}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, linearGraph())

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	// Both sends failed, but the enrollment still walked the whole graph
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)

	actions := logActions(t, p, enrollment.ID)
	warnings := 0

	for _, action := range actions {
		if action == models.LogActionWarning {
			warnings++
		}
	}

	assert.Equal(t, 2, warnings)
	assert.NotContains(t, actions, models.LogActionError)
}

func TestExecutor_MissingCapabilityIsWarning(t *testing.T) {
	executor, p := newTestExecutor(t, Capabilities{})
	j, version := saveJourneyVersion(t, p, linearGraph())

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Contains(t, logActions(t, p, enrollment.ID), models.LogActionWarning)
}

func TestExecutor_CreateTaskWithGeneratedScript(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "trial_expiring"}},
			},
			{
				ID:   "a1",
				Type: models.NodeTypeAction,
				Data: models.NodeData{Action: &models.ActionConfig{
					Kind: models.ActionKindCreateTask,
					Task: &models.TaskActionConfig{
						Title:          "Call {{name}} about renewal",
						DueInDays:      3,
						GenerateScript: true,
					},
				}},
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}

	tasks := &fakeTasks{}
	content := &fakeContent{script: "Ask about their trial experience."}
	executor, p := newTestExecutor(t, Capabilities{Tasks: tasks, Content: content})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", map[string]any{"name": "Akiko"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, tasks.created, 1)
	assert.Equal(t, "Call Akiko about renewal", tasks.created[0].Title)
	assert.Equal(t, "Ask about their trial experience.", tasks.created[0].Script)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 3), tasks.created[0].DueAt, time.Minute)

	// The created task's id lands in the context bag.
	taskID, ok := enrollment.Fact("task_id")
	require.True(t, ok)
	assert.NotEmpty(t, taskID)
}

func TestExecutor_ScriptGenerationFailureStillCreatesTask(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "trial_expiring"}},
			},
			{
				ID:   "a1",
				Type: models.NodeTypeAction,
				Data: models.NodeData{Action: &models.ActionConfig{
					Kind: models.ActionKindCreateTask,
					Task: &models.TaskActionConfig{
						Title:          "Call customer",
						GenerateScript: true,
					},
				}},
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}

	tasks := &fakeTasks{}
	content := &fakeContent{err: errors.New("generation timed out")}
	executor, p := newTestExecutor(t, Capabilities{Tasks: tasks, Content: content})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, tasks.created, 1)
	assert.Empty(t, tasks.created[0].Script)
	assert.Contains(t, logActions(t, p, enrollment.ID), models.LogActionWarning)
}

func TestExecutor_DelayParksAndResumes(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			{
				ID:   "d1",
				Type: models.NodeTypeDelay,
				Data: models.NodeData{Delay: &models.DelayConfig{Duration: "48h"}},
			},
			messageNode("a1", "How is it going?"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
			{ID: "e2", Source: "d1", Target: "a1"},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	executor.now = func() time.Time { return start }

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	// Parked at the delay node, nothing sent yet
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, "d1", enrollment.CurrentNodeID)
	require.NotNil(t, enrollment.ResumeAt)
	assert.True(t, enrollment.ResumeAt.Equal(start.Add(48*time.Hour)))
	assert.Empty(t, sender.sent)

	// Sweeping before the resume time does nothing
	sweeper := NewSweeper(p, executor, log.WithModule("test"))
	resumed, err := sweeper.SweepDelays(t.Context(), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, resumed)

	// After the resume time the enrollment picks up where it left off
	later := start.Add(49 * time.Hour)
	executor.now = func() time.Time { return later }

	resumed, err = sweeper.SweepDelays(t.Context(), later)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	final, err := p.EnrollmentRepository().EnrollmentByID(t.Context(), enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, final.Status)
	assert.Nil(t, final.ResumeAt)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "How is it going?", sender.sent[0].Text)
}

func TestExecutor_ZeroDelayContinuesImmediately(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			{
				ID:   "d1",
				Type: models.NodeTypeDelay,
				Data: models.NodeData{Delay: &models.DelayConfig{Duration: "0s"}},
			},
			messageNode("a1", "Right away"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
			{ID: "e2", Source: "d1", Target: "a1"},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.Len(t, sender.sent, 1)
}

func TestExecutor_InvalidDelayFailsEnrollment(t *testing.T) {
	// Saved directly through persistence, bypassing save-time validation
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			{
				ID:   "d1",
				Type: models.NodeTypeDelay,
				Data: models.NodeData{Delay: &models.DelayConfig{Duration: "two days"}},
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
		},
	}

	executor, p := newTestExecutor(t, Capabilities{})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)

	actions := logActions(t, p, enrollment.ID)
	assert.Equal(t, models.LogActionError, actions[len(actions)-1])
}

func TestExecutor_MissingNodeFailsEnrollment(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "ghost"},
		},
	}

	executor, p := newTestExecutor(t, Capabilities{})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)
}

func TestExecutor_AdvanceOnTerminalIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, linearGraph())

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)

	entriesBefore := logActions(t, p, enrollment.ID)
	sentBefore := len(sender.sent)
	updatedBefore := enrollment.UpdatedAt

	require.NoError(t, executor.Advance(t.Context(), enrollment.ID))

	after, err := p.EnrollmentRepository().EnrollmentByID(t.Context(), enrollment.ID)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, after.Status)
	assert.Equal(t, updatedBefore, after.UpdatedAt)
	assert.Len(t, logActions(t, p, enrollment.ID), len(entriesBefore))
	assert.Len(t, sender.sent, sentBefore)
}

func TestExecutor_CyclicGraphFailsInsteadOfSpinning(t *testing.T) {
	// Two actions pointing at each other, saved without validation
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "new_customer"}},
			},
			messageNode("a1", "one"),
			messageNode("a2", "two"),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
			{ID: "e2", Source: "a1", Target: "a2"},
			{ID: "e3", Source: "a2", Target: "a1"},
		},
	}

	sender := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: sender})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusFailed, enrollment.Status)
}

func TestExecutor_SendChatUsesChatAdapter(t *testing.T) {
	graph := &models.Graph{
		Nodes: []*models.Node{
			{
				ID:   "t1",
				Type: models.NodeTypeTrigger,
				Data: models.NodeData{Trigger: &models.TriggerConfig{Event: "support_request"}},
			},
			{
				ID:   "a1",
				Type: models.NodeTypeAction,
				Data: models.NodeData{Action: &models.ActionConfig{
					Kind:    models.ActionKindSendChat,
					Message: &models.MessageActionConfig{Text: "An agent will join shortly", StickerID: "wave"},
				}},
			},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}

	messages := &fakeSender{}
	chats := &fakeSender{}
	executor, p := newTestExecutor(t, Capabilities{Messages: messages, Chats: chats})
	j, version := saveJourneyVersion(t, p, graph)

	enrollment, err := executor.Enroll(t.Context(), j, version, "subject-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Empty(t, messages.sent)
	require.Len(t, chats.sent, 1)
	assert.Equal(t, "wave", chats.sent[0].Extras.StickerID)
}
