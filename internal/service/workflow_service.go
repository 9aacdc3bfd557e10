package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
)

type workflowStore interface {
	ListActiveByTemplate(ctx context.Context, templateID string) ([]models.Workflow, error)
	GetLevels(ctx context.Context, workflowID string) ([]models.WorkflowLevelDefinition, error)
}

type groupExpander interface {
	ExpandGroup(ctx context.Context, groupID string) ([]string, error)
}

// WorkflowService resolves the active approval workflow of a template into
// an immutable snapshot. Resolution expands approver groups to concrete
// member identities, so later membership or definition edits never affect a
// request that already froze its snapshot.
type WorkflowService struct {
	repo   workflowStore
	groups groupExpander
	logger *zap.Logger
}

// NewWorkflowService constructs the resolver.
func NewWorkflowService(repo workflowStore, groups groupExpander, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{repo: repo, groups: groups, logger: logger}
}

// Resolve loads and freezes the single active workflow for a template.
func (s *WorkflowService) Resolve(ctx context.Context, templateID string) (*models.WorkflowSnapshot, error) {
	workflows, err := s.repo.ListActiveByTemplate(ctx, templateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflows")
	}
	switch len(workflows) {
	case 1:
	case 0:
		return nil, appErrors.Clone(appErrors.ErrNoActiveWorkflow, fmt.Sprintf("no active workflow for template %s", templateID))
	default:
		// More than one active definition is ambiguous configuration; never
		// pick one silently.
		return nil, appErrors.Clone(appErrors.ErrNoActiveWorkflow, fmt.Sprintf("%d workflows active for template %s", len(workflows), templateID))
	}
	workflow := workflows[0]

	definitions, err := s.repo.GetLevels(ctx, workflow.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow levels")
	}

	snapshot := &models.WorkflowSnapshot{
		WorkflowID: workflow.ID,
		Name:       workflow.Name,
		Levels:     make([]models.WorkflowLevel, 0, len(definitions)),
	}

	for i, definition := range definitions {
		if definition.LevelOrder != i+1 {
			return nil, appErrors.Clone(appErrors.ErrMalformedWorkflow,
				fmt.Sprintf("workflow %s: expected level %d, found %d", workflow.ID, i+1, definition.LevelOrder))
		}

		approvers, err := s.expandApprovers(ctx, definition)
		if err != nil {
			return nil, err
		}
		if len(approvers) == 0 {
			return nil, appErrors.Clone(appErrors.ErrMalformedWorkflow,
				fmt.Sprintf("workflow %s: level %d has no approvers", workflow.ID, definition.LevelOrder))
		}

		snapshot.Levels = append(snapshot.Levels, models.WorkflowLevel{
			Order:          definition.LevelOrder,
			Name:           definition.Name,
			Approvers:      approvers,
			EditableFields: append(models.StringSlice(nil), definition.EditableFields...),
			Parallel:       definition.Parallel,
		})
	}

	s.logger.Debug("workflow snapshot resolved",
		zap.String("template_id", templateID),
		zap.String("workflow_id", workflow.ID),
		zap.Int("levels", len(snapshot.Levels)),
	)
	return snapshot, nil
}

// expandApprovers flattens individual approvers and group members into one
// deduplicated identity list, preserving first-seen order.
func (s *WorkflowService) expandApprovers(ctx context.Context, definition models.WorkflowLevelDefinition) (models.StringSlice, error) {
	seen := make(map[string]struct{})
	approvers := make(models.StringSlice, 0, len(definition.ApproverIDs))

	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		approvers = append(approvers, id)
	}

	for _, id := range definition.ApproverIDs {
		add(id)
	}
	for _, groupID := range definition.GroupIDs {
		members, err := s.groups.ExpandGroup(ctx, groupID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("failed to expand approver group %s", groupID))
		}
		for _, member := range members {
			add(member)
		}
	}
	return approvers, nil
}
