package service

import (
	"context"
	"io"

	"github.com/servorahq/servora/internal/domain/instance"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/types"
)

// InstanceService serves workload reads and the log stream. Mutations go
// through the subscription service so billing state and workload state stay
// together.
type InstanceService interface {
	Get(ctx context.Context, userID, instanceID string) (*instance.Instance, error)
	ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*instance.Instance, error)
	// StreamLogs follows the serving container's log into sink until ctx is
	// cancelled.
	StreamLogs(ctx context.Context, userID, instanceID string, sink io.Writer) error
}

type instanceService struct {
	ServiceParams
}

func NewInstanceService(params ServiceParams) InstanceService {
	return &instanceService{ServiceParams: params}
}

func (s *instanceService) Get(ctx context.Context, userID, instanceID string) (*instance.Instance, error) {
	inst, err := s.InstRepo.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.UserID != userID {
		return nil, ierr.NewError("instance belongs to another account").
			Mark(ierr.ErrPermissionDenied)
	}
	return inst, nil
}

func (s *instanceService) ListByUser(ctx context.Context, userID string, filter types.Filter) ([]*instance.Instance, error) {
	return s.InstRepo.ListByUser(ctx, userID, filter)
}

func (s *instanceService) StreamLogs(ctx context.Context, userID, instanceID string, sink io.Writer) error {
	inst, err := s.Get(ctx, userID, instanceID)
	if err != nil {
		return err
	}
	if inst.InstanceStatus != types.InstanceStatusRunning {
		return ierr.NewErrorf("instance is %s, logs need a running instance",
			inst.InstanceStatus).
			Mark(ierr.ErrInvalidTransition)
	}

	pod := inst.PodName
	if pod == "" {
		pod, err = s.Kube.NewestPodFor(ctx, inst.DeploymentName, inst.Namespace)
		if err != nil {
			return err
		}
		if pod == "" {
			return ierr.NewError("no pod found for instance").
				WithHint("The instance has no serving pod yet").
				Mark(ierr.ErrNotFound)
		}
	}

	svc, err := s.CatalogRepo.GetService(ctx, inst.ServiceID)
	if err != nil {
		return err
	}
	container := kube.SanitizeName(svc.Slug)
	return s.Kube.StreamLogs(ctx, inst.Namespace, pod, container, sink)
}
