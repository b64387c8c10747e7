package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/jobs"
)

const milestoneJobType = "milestone_crossed"

// MilestoneEvent is a financial milestone notification from the billing side.
type MilestoneEvent struct {
	Entity        models.EntityRef `json:"entity"`
	MilestoneCode string           `json:"milestoneCode" validate:"required"`
}

type milestoneReactor interface {
	OnMilestoneCrossed(ctx context.Context, ref models.EntityRef, milestoneCode string) (*MilestoneOutcome, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) (string, error)
}

// MilestoneDispatcher accepts milestone events and hands them to the reactor
// on background workers. Races lost to concurrent writers are retried by the
// queue, every other failure is final.
type MilestoneDispatcher struct {
	reactor milestoneReactor
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMilestoneDispatcher constructs a dispatcher. Attach the queue with
// Bind before calling Dispatch.
func NewMilestoneDispatcher(reactor milestoneReactor, metrics *MetricsService, logger *zap.Logger) *MilestoneDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilestoneDispatcher{reactor: reactor, metrics: metrics, logger: logger}
}

// Bind attaches the queue that Dispatch enqueues onto.
func (d *MilestoneDispatcher) Bind(queue jobQueue) {
	d.queue = queue
}

// Dispatch enqueues the event and returns the job id. A repeated event for
// the same entity and milestone that is still pending shares the earlier job.
func (d *MilestoneDispatcher) Dispatch(event MilestoneEvent) (string, error) {
	if d.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "milestone queue not configured")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    milestoneJobType,
		Key:     milestoneJobKey(event),
		Payload: event,
	}
	jobID, err := d.queue.Enqueue(job)
	if err != nil {
		return "", appErrors.WrapAs(appErrors.ErrInternal, err, "failed to enqueue milestone event")
	}
	d.logger.Debug("milestone event queued",
		zap.String("job_id", jobID),
		zap.Bool("coalesced", jobID != job.ID),
		zap.String("entity_type", event.Entity.Type),
		zap.String("entity_id", event.Entity.ID),
		zap.String("milestone", event.MilestoneCode),
	)
	return jobID, nil
}

func milestoneJobKey(event MilestoneEvent) string {
	return event.Entity.Type + "/" + event.Entity.ID + "/" + event.MilestoneCode
}

// Handle is the jobs.Handler for milestone events.
func (d *MilestoneDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(MilestoneEvent)
	if !ok {
		d.metrics.ObserveQueueJob("invalid")
		return fmt.Errorf("%w: unexpected payload %T", jobs.ErrPermanent, job.Payload)
	}
	_, err := d.reactor.OnMilestoneCrossed(ctx, event.Entity, event.MilestoneCode)
	switch {
	case err == nil:
		d.metrics.ObserveQueueJob("succeeded")
		return nil
	case appErrors.CodeOf(err) == appErrors.ErrConcurrentModification.Code,
		appErrors.CodeOf(err) == appErrors.ErrCatalogUnavailable.Code,
		appErrors.CodeOf(err) == appErrors.ErrStorage.Code:
		d.metrics.ObserveQueueJob("retried")
		return err
	default:
		d.metrics.ObserveQueueJob("failed")
		return errors.Join(jobs.ErrPermanent, err)
	}
}

// OnDrop logs events the queue gave up on.
func (d *MilestoneDispatcher) OnDrop(job jobs.Job, err error) {
	d.metrics.ObserveQueueJob("dropped")
	fields := []zap.Field{zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err)}
	if event, ok := job.Payload.(MilestoneEvent); ok {
		fields = append(fields,
			zap.String("entity_type", event.Entity.Type),
			zap.String("entity_id", event.Entity.ID),
			zap.String("milestone", event.MilestoneCode),
		)
	}
	d.logger.Error("milestone event dropped", fields...)
}
