package journey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/autocrm/journey/pkg/eventbus"
	"github.com/autocrm/journey/pkg/events"
	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/otelhelper"
	"github.com/autocrm/journey/pkg/persistence"
	"github.com/autocrm/journey/pkg/protocol"
	"github.com/autocrm/journey/pkg/template"
)

// maxAdvanceSteps bounds one advance pass. Validated graphs without delay
// nodes are finite, but a cycle of actions and conditions would otherwise
// spin forever.
const maxAdvanceSteps = 1000

// defaultAdapterTimeout bounds each outbound capability call so a slow CRM
// adapter cannot block an enrollment indefinitely.
const defaultAdapterTimeout = 10 * time.Second

// Capabilities are the outbound CRM adapters the executor dispatches action
// nodes to. Any of them may be nil; an action hitting a missing capability
// is a recoverable failure, not an enrollment failure.
type Capabilities struct {
	Messages protocol.MessageSender
	Chats    protocol.MessageSender
	Tasks    protocol.TaskCreator
	Content  protocol.ContentGenerator
	Subjects protocol.SubjectLookup
}

// Executor advances enrollments through journey graphs. All state
// transitions for one enrollment are serialized behind a per-enrollment
// lock; the executor is safe for concurrent use.
type Executor struct {
	persistence    persistence.Persistence
	eventBus       eventbus.EventPublisher
	capabilities   Capabilities
	locker         *enrollmentLocker
	logger         *slog.Logger
	tracer         trace.Tracer
	adapterTimeout time.Duration
	now            func() time.Time
}

func NewExecutor(persistence persistence.Persistence, eventBus eventbus.EventPublisher, capabilities Capabilities, logger *slog.Logger) *Executor {
	return &Executor{
		persistence:    persistence,
		eventBus:       eventBus,
		capabilities:   capabilities,
		locker:         newEnrollmentLocker(),
		logger:         logger.With("module", "executor"),
		tracer:         otel.Tracer("journey-executor"),
		adapterTimeout: defaultAdapterTimeout,
		now:            time.Now,
	}
}

// Enroll creates an enrollment for a subject at the version's trigger node,
// seeds its context with the triggering event's payload, and immediately
// advances it as far as it can go.
func (x *Executor) Enroll(ctx context.Context, journey *models.Journey, version *models.JourneyVersion, subjectID string, facts map[string]any) (*models.Enrollment, error) {
	trigger, err := version.Graph.TriggerNode()
	if err != nil {
		return nil, fmt.Errorf("journey %s version %s: %w", journey.ID, version.ID, err)
	}

	now := x.now().UTC()
	enrollment := &models.Enrollment{
		ID:            uuid.New().String(),
		JourneyID:     journey.ID,
		VersionID:     version.ID,
		SubjectID:     subjectID,
		CurrentNodeID: trigger.ID,
		Status:        models.EnrollmentStatusActive,
		Context:       copyFacts(facts),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
		return nil, err
	}

	x.logger.Info("Subject enrolled",
		"enrollment_id", enrollment.ID,
		"journey_id", journey.ID,
		"version_id", version.ID,
		"subject_id", subjectID)

	x.appendLog(ctx, enrollment.ID, trigger.ID, models.LogActionEnter,
		fmt.Sprintf("enrolled via trigger %q", trigger.Data.Trigger.Event))

	x.publish(ctx, enrollment.ID, events.EnrollmentStarted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentStartedEvent),
		EnrollmentID: enrollment.ID,
		JourneyID:    journey.ID,
		VersionID:    version.ID,
		SubjectID:    subjectID,
	})

	if err := x.Advance(ctx, enrollment.ID); err != nil {
		return enrollment, err
	}

	return x.persistence.EnrollmentRepository().EnrollmentByID(ctx, enrollment.ID)
}

// Advance moves an enrollment through its graph until it parks at a delay,
// reaches a terminal state, or hits the step bound. Calling Advance on a
// terminal enrollment is a no-op: no state change, no log entries.
func (x *Executor) Advance(ctx context.Context, enrollmentID string) error {
	x.locker.Lock(enrollmentID)
	defer x.locker.Unlock(enrollmentID)

	enrollment, err := x.persistence.EnrollmentRepository().EnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if enrollment.IsTerminal() {
		return nil
	}

	version, err := x.persistence.JourneyRepository().VersionByID(ctx, enrollment.VersionID)
	if err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, x.tracer, "enrollment.advance",
		attribute.String(otelhelper.EnrollmentIDKey, enrollment.ID),
		attribute.String(otelhelper.JourneyIDKey, enrollment.JourneyID),
		attribute.String(otelhelper.VersionIDKey, enrollment.VersionID),
		attribute.String(otelhelper.SubjectIDKey, enrollment.SubjectID),
	)
	defer span.End()

	graph := version.Graph

	for steps := 0; ; steps++ {
		if steps >= maxAdvanceSteps {
			x.failEnrollment(ctx, enrollment,
				fmt.Errorf("advance exceeded %d steps, graph likely cyclic", maxAdvanceSteps))

			return nil
		}

		node := graph.NodeByID(enrollment.CurrentNodeID)
		if node == nil {
			x.failEnrollment(ctx, enrollment,
				fmt.Errorf("current node %s not present in version %s", enrollment.CurrentNodeID, version.ID))

			return nil
		}

		switch node.Type {
		case models.NodeTypeTrigger:
			// Entry point, no effect.

		case models.NodeTypeAction:
			if err := x.executeAction(ctx, enrollment, node); err != nil {
				x.logger.Warn("Action failed, continuing traversal",
					"enrollment_id", enrollment.ID,
					"node_id", node.ID,
					"error", err)
				x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionWarning,
					fmt.Sprintf("%s failed: %v", node.Data.Action.Kind, err))
			} else {
				x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionProcess,
					fmt.Sprintf("%s executed", node.Data.Action.Kind))
				x.publishNodeExecuted(ctx, enrollment, node, string(node.Data.Action.Kind))
			}

		case models.NodeTypeCondition:
			if err := graph.CheckBranches(node.ID); err != nil {
				x.failEnrollment(ctx, enrollment, err)

				return nil
			}

			result := x.evaluateCondition(ctx, enrollment, node)
			x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionProcess,
				fmt.Sprintf("condition %s %s evaluated to %t",
					node.Data.Condition.Field, node.Data.Condition.Operator, result))
			x.publishNodeExecuted(ctx, enrollment, node, fmt.Sprintf("result=%t", result))

			edge := graph.BranchEdge(node.ID, result)
			if edge == nil {
				// A branch with no edge is an intentional dead end.
				x.completeEnrollment(ctx, enrollment)

				return nil
			}

			x.moveTo(ctx, enrollment, edge.Target)

			continue

		case models.NodeTypeDelay:
			proceed, err := x.processDelay(ctx, enrollment, node)
			if err != nil {
				x.failEnrollment(ctx, enrollment, err)

				return nil
			}

			if !proceed {
				return nil
			}
		}

		edges := graph.OutgoingEdges(node.ID)
		if len(edges) == 0 {
			x.completeEnrollment(ctx, enrollment)

			return nil
		}

		// Only condition nodes may fan out. Validation rejects this at
		// save time; a version saved before the check still fails here
		// instead of silently picking a branch.
		if len(edges) > 1 {
			x.failEnrollment(ctx, enrollment,
				fmt.Errorf("%w: node %s", models.ErrMultipleOutgoingEdges, node.ID))

			return nil
		}

		x.moveTo(ctx, enrollment, edges[0].Target)
	}
}

// executeAction dispatches one action node to its capability adapter. The
// returned error means the adapter failed; the caller records it as a
// warning and continues.
func (x *Executor) executeAction(ctx context.Context, enrollment *models.Enrollment, node *models.Node) error {
	config := node.Data.Action

	switch config.Kind {
	case models.ActionKindSendMessage:
		return x.sendMessage(ctx, enrollment, x.capabilities.Messages, config)
	case models.ActionKindSendChat:
		return x.sendMessage(ctx, enrollment, x.capabilities.Chats, config)
	case models.ActionKindCreateTask:
		return x.createTask(ctx, enrollment, config)
	default:
		return fmt.Errorf("unknown action kind %q", config.Kind)
	}
}

func (x *Executor) sendMessage(ctx context.Context, enrollment *models.Enrollment, sender protocol.MessageSender, config *models.ActionConfig) error {
	if sender == nil {
		return fmt.Errorf("no adapter configured for %s", config.Kind)
	}

	text := template.Interpolate(config.Message.Text, enrollment.Context)

	ctx, cancel := context.WithTimeout(ctx, x.adapterTimeout)
	defer cancel()

	_, err := sender.Send(ctx, enrollment.SubjectID, text, protocol.MessageExtras{
		StickerID: config.Message.StickerID,
		Channel:   config.Message.Channel,
	})

	return err
}

func (x *Executor) createTask(ctx context.Context, enrollment *models.Enrollment, config *models.ActionConfig) error {
	if x.capabilities.Tasks == nil {
		return fmt.Errorf("no adapter configured for %s", config.Kind)
	}

	title := template.Interpolate(config.Task.Title, enrollment.Context)
	dueAt := x.now().UTC().AddDate(0, 0, config.Task.DueInDays)

	var script string

	if config.Task.GenerateScript && x.capabilities.Content != nil {
		generateCtx, cancel := context.WithTimeout(ctx, x.adapterTimeout)

		generated, err := x.capabilities.Content.Generate(generateCtx, "call_script", enrollment.Context)

		cancel()

		if err != nil {
			// Script generation is best effort, the task is still created.
			x.appendLog(ctx, enrollment.ID, "", models.LogActionWarning,
				fmt.Sprintf("script generation failed: %v", err))
		} else {
			script = generated
		}
	}

	createCtx, cancel := context.WithTimeout(ctx, x.adapterTimeout)
	defer cancel()

	taskID, err := x.capabilities.Tasks.Create(createCtx, enrollment.SubjectID, title, dueAt, script)
	if err != nil {
		return err
	}

	// The task id becomes a fact so later templates and conditions can
	// reference it. Persisted by the next enrollment save in this advance.
	enrollment.SetFact("task_id", taskID)

	return nil
}

// evaluateCondition resolves the condition field from the enrollment
// context, falling back to a live subject lookup, and applies the
// comparison. Lookup failures and non-numeric operands both evaluate to
// false, never to an enrollment failure.
func (x *Executor) evaluateCondition(ctx context.Context, enrollment *models.Enrollment, node *models.Node) bool {
	config := node.Data.Condition

	value, ok := enrollment.Fact(config.Field)
	if !ok {
		if x.capabilities.Subjects == nil {
			x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionWarning,
				fmt.Sprintf("subject lookup for %q unavailable: no adapter configured", config.Field))

			return false
		}

		lookupCtx, cancel := context.WithTimeout(ctx, x.adapterTimeout)
		defer cancel()

		looked, err := x.capabilities.Subjects.Field(lookupCtx, enrollment.SubjectID, config.Field)
		if err != nil {
			x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionWarning,
				fmt.Sprintf("subject lookup for %q failed: %v", config.Field, err))

			return false
		}

		value = looked
	}

	return config.Evaluate(value)
}

// processDelay parks or resumes an enrollment at a delay node. It returns
// true when the delay has elapsed and traversal should continue, false when
// the enrollment stays parked. An unparseable delay config is a structural
// error.
func (x *Executor) processDelay(ctx context.Context, enrollment *models.Enrollment, node *models.Node) (bool, error) {
	now := x.now().UTC()

	if enrollment.ResumeAt == nil {
		resumeAt, err := node.Data.Delay.ResumeAt(now)
		if err != nil {
			return false, fmt.Errorf("delay node %s: %w", node.ID, err)
		}

		if resumeAt.After(now) {
			enrollment.ResumeAt = &resumeAt
			enrollment.UpdatedAt = now

			if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
				return false, err
			}

			x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionProcess,
				fmt.Sprintf("parked until %s", resumeAt.Format(time.RFC3339)))

			return false, nil
		}

		x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionProcess, "delay elapsed")

		return true, nil
	}

	if !enrollment.IsDue(now) {
		return false, nil
	}

	enrollment.ResumeAt = nil
	enrollment.UpdatedAt = now

	if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
		return false, err
	}

	x.appendLog(ctx, enrollment.ID, node.ID, models.LogActionProcess, "delay elapsed")

	return true, nil
}

// moveTo advances the enrollment pointer to the next node and records the
// arrival.
func (x *Executor) moveTo(ctx context.Context, enrollment *models.Enrollment, nodeID string) {
	enrollment.CurrentNodeID = nodeID
	enrollment.UpdatedAt = x.now().UTC()

	if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
		x.logger.Error("Failed to persist enrollment position",
			"enrollment_id", enrollment.ID,
			"node_id", nodeID,
			"error", err)
	}

	x.appendLog(ctx, enrollment.ID, nodeID, models.LogActionEnter, "entered node")
}

// completeEnrollment ends an enrollment that walked off the end of its
// graph. Running out of edges is the normal way journeys finish.
func (x *Executor) completeEnrollment(ctx context.Context, enrollment *models.Enrollment) {
	enrollment.Status = models.EnrollmentStatusCompleted
	enrollment.CurrentNodeID = ""
	enrollment.ResumeAt = nil
	enrollment.UpdatedAt = x.now().UTC()

	if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
		x.logger.Error("Failed to persist completed enrollment",
			"enrollment_id", enrollment.ID,
			"error", err)

		return
	}

	x.appendLog(ctx, enrollment.ID, "", models.LogActionExit, "journey completed")

	x.logger.Info("Enrollment completed",
		"enrollment_id", enrollment.ID,
		"journey_id", enrollment.JourneyID,
		"subject_id", enrollment.SubjectID)

	x.publish(ctx, enrollment.ID, events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentCompletedEvent),
		EnrollmentID: enrollment.ID,
		JourneyID:    enrollment.JourneyID,
		SubjectID:    enrollment.SubjectID,
	})
}

// failEnrollment ends an enrollment on a structural error: a node missing
// from its version, an unparseable delay, a cyclic graph. Adapter failures
// never come through here.
func (x *Executor) failEnrollment(ctx context.Context, enrollment *models.Enrollment, cause error) {
	failedAt := enrollment.CurrentNodeID

	enrollment.Status = models.EnrollmentStatusFailed
	enrollment.CurrentNodeID = ""
	enrollment.ResumeAt = nil
	enrollment.UpdatedAt = x.now().UTC()

	if err := x.persistence.EnrollmentRepository().SaveEnrollment(ctx, enrollment); err != nil {
		x.logger.Error("Failed to persist failed enrollment",
			"enrollment_id", enrollment.ID,
			"error", err)
	}

	x.appendLog(ctx, enrollment.ID, failedAt, models.LogActionError, cause.Error())

	x.logger.Error("Enrollment failed",
		"enrollment_id", enrollment.ID,
		"journey_id", enrollment.JourneyID,
		"error", cause)

	span := trace.SpanFromContext(ctx)
	otelhelper.SetError(span, cause,
		attribute.String(otelhelper.EnrollmentIDKey, enrollment.ID))

	x.publish(ctx, enrollment.ID, events.EnrollmentFailed{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentFailedEvent),
		EnrollmentID: enrollment.ID,
		JourneyID:    enrollment.JourneyID,
		SubjectID:    enrollment.SubjectID,
		Error:        cause.Error(),
	})
}

// appendLog writes one audit record. Audit writes are best effort: a
// failing log store must not stop an enrollment.
func (x *Executor) appendLog(ctx context.Context, enrollmentID, nodeID string, action models.LogAction, message string) {
	entry := &models.ExecutionLogEntry{
		ID:           uuid.New().String(),
		EnrollmentID: enrollmentID,
		NodeID:       nodeID,
		Action:       action,
		Message:      message,
		Timestamp:    x.now().UTC(),
	}

	if err := x.persistence.ExecutionLogRepository().Append(ctx, entry); err != nil {
		x.logger.Warn("Failed to append execution log entry",
			"enrollment_id", enrollmentID,
			"action", action,
			"error", err)
	}
}

func (x *Executor) publishNodeExecuted(ctx context.Context, enrollment *models.Enrollment, node *models.Node, detail string) {
	x.publish(ctx, enrollment.ID, events.NodeExecuted{
		BaseEvent:    events.NewBaseEvent(events.NodeExecutedEvent),
		EnrollmentID: enrollment.ID,
		NodeID:       node.ID,
		NodeType:     string(node.Type),
		Detail:       detail,
	})
}

func (x *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if x.eventBus == nil {
		return
	}

	if err := x.eventBus.Publish(ctx, key, event); err != nil {
		x.logger.Warn("Failed to publish event",
			"event_type", event.GetType(),
			"error", err)
	}
}

func copyFacts(facts map[string]any) map[string]any {
	copied := make(map[string]any, len(facts))
	for k, v := range facts {
		copied[k] = v
	}

	return copied
}
