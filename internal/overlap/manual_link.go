package overlap

import (
	"context"
	"fmt"
	"sort"

	"litreview-dedupe/internal/domain"
)

// ManualLinkAction discriminates the outcome of PlanManualLink.
type ManualLinkAction string

const (
	ActionNoop           ManualLinkAction = "noop"
	ActionMerge          ManualLinkAction = "merge"
	ActionCreateNew      ManualLinkAction = "create_new"
	ActionAddToExisting  ManualLinkAction = "add_to_existing"
)

// ManualLinkPlan is the pure decision PlanManualLink produces: what
// to do, given the current cluster membership of the requested record
// sources. ManualLink executes it against the store.
type ManualLinkPlan struct {
	Action        ManualLinkAction
	KeepClusterID domain.ID   // merge: surviving cluster (lexicographically smaller id)
	RemoveCluster domain.ID   // merge: cluster being absorbed and deleted
	TargetCluster domain.ID   // add_to_existing: the one unlocked cluster receiving new members
	Unclustered   []domain.ID // record_source ids with no existing cluster membership
	AllRequested  []domain.ID
}

// PlanManualLink is the pure decision function: given which cluster (if
// any) each requested record source currently belongs to, and which of
// those clusters are locked, decide noop/merge/create_new/add_to_existing.
func PlanManualLink(requested []domain.ID, membership map[domain.ID]domain.ID, lockedClusters map[domain.ID]bool) ManualLinkPlan {
	clusterSet := make(map[domain.ID]bool)
	var unclustered []domain.ID
	anyLocked := false

	for _, rsID := range requested {
		clusterID, has := membership[rsID]
		if !has {
			unclustered = append(unclustered, rsID)
			continue
		}
		clusterSet[clusterID] = true
		if lockedClusters[clusterID] {
			anyLocked = true
		}
	}

	clusterIDs := make([]domain.ID, 0, len(clusterSet))
	for id := range clusterSet {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Slice(clusterIDs, func(i, j int) bool { return clusterIDs[i].String() < clusterIDs[j].String() })

	plan := ManualLinkPlan{Unclustered: unclustered, AllRequested: requested}

	switch {
	case len(clusterIDs) == 1 && len(unclustered) == 0:
		plan.Action = ActionNoop
	case len(clusterIDs) == 2 && !anyLocked:
		plan.Action = ActionMerge
		plan.KeepClusterID = clusterIDs[0]
		plan.RemoveCluster = clusterIDs[1]
	case len(clusterIDs) >= 3 || anyLocked:
		plan.Action = ActionCreateNew
	case len(clusterIDs) == 1 && !anyLocked && len(unclustered) > 0:
		plan.Action = ActionAddToExisting
		plan.TargetCluster = clusterIDs[0]
	default:
		// len(clusterIDs) == 0: every requested record is unclustered.
		plan.Action = ActionCreateNew
	}
	return plan
}

// ManualLink validates the request, computes the plan, and executes it.
func (o *Orchestrator) ManualLink(ctx context.Context, projectID domain.ID, recordSourceIDs []domain.ID, locked bool, note *string) (ManualLinkPlan, error) {
	if len(recordSourceIDs) < 2 {
		return ManualLinkPlan{}, ErrInvalidManualLinkInput
	}

	members, err := o.Store.GetMembersForRecordSources(ctx, recordSourceIDs)
	if err != nil {
		return ManualLinkPlan{}, fmt.Errorf("loading current membership: %w", err)
	}
	membership := make(map[domain.ID]domain.ID, len(members))
	for _, m := range members {
		membership[m.RecordSourceID] = m.ClusterID
	}

	clusters, err := o.Store.GetClustersByProject(ctx, projectID)
	if err != nil {
		return ManualLinkPlan{}, fmt.Errorf("loading clusters: %w", err)
	}
	lockedClusters := make(map[domain.ID]bool, len(clusters))
	for _, c := range clusters {
		lockedClusters[c.ID] = c.Locked
	}

	plan := PlanManualLink(recordSourceIDs, membership, lockedClusters)
	byID := make(map[domain.ID]domain.OverlapCluster, len(clusters))
	for _, c := range clusters {
		byID[c.ID] = c
	}

	switch plan.Action {
	case ActionNoop:
		// Nothing to do.
	case ActionMerge:
		if err := o.executeMerge(ctx, plan, byID); err != nil {
			return plan, err
		}
	case ActionCreateNew:
		if err := o.executeCreateNew(ctx, projectID, plan, locked, note); err != nil {
			return plan, err
		}
	case ActionAddToExisting:
		if err := o.executeAddToExisting(ctx, plan, byID, note); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// executeMerge folds the absorbed cluster's members into the surviving
// (lexicographically smaller id) cluster and deletes the absorbed one.
// The surviving cluster's full row is preserved except Origin, which is
// promoted to mixed: CreateCluster replaces a cluster's stored row
// wholesale, so losing track of the pre-existing fields here would
// silently drop the cluster's original scope/tier/reason.
func (o *Orchestrator) executeMerge(ctx context.Context, plan ManualLinkPlan, byID map[domain.ID]domain.OverlapCluster) error {
	keep := byID[plan.KeepClusterID]
	keep.Origin = domain.OriginMixed

	existing, err := o.Store.GetClusterMembers(ctx, plan.KeepClusterID)
	if err != nil {
		return fmt.Errorf("loading surviving cluster members: %w", err)
	}
	absorbed, err := o.Store.GetClusterMembers(ctx, plan.RemoveCluster)
	if err != nil {
		return fmt.Errorf("loading members of absorbed cluster: %w", err)
	}
	for i := range absorbed {
		absorbed[i].ClusterID = plan.KeepClusterID
	}

	if err := o.Store.CreateCluster(ctx, keep, append(existing, absorbed...)); err != nil {
		return fmt.Errorf("moving members into surviving cluster: %w", err)
	}
	return o.Store.DeleteCluster(ctx, plan.RemoveCluster)
}

func (o *Orchestrator) executeCreateNew(ctx context.Context, projectID domain.ID, plan ManualLinkPlan, locked bool, note *string) error {
	oc := domain.OverlapCluster{
		ProjectID: projectID,
		Scope:     domain.ScopeCrossSource,
		Origin:    domain.OriginManual,
		Locked:    locked,
	}
	members := make([]domain.OverlapClusterMember, len(plan.AllRequested))
	for i, rsID := range plan.AllRequested {
		members[i] = domain.OverlapClusterMember{RecordSourceID: rsID, Role: domain.RoleDuplicate, AddedBy: domain.AddedByUser, Note: note}
	}
	if len(members) > 0 {
		members[0].Role = domain.RoleCanonical
	}
	return o.Store.CreateCluster(ctx, oc, members)
}

// executeAddToExisting attaches the unclustered requested records to
// the one unlocked cluster already covering the rest, promoting its
// origin from auto to mixed.
func (o *Orchestrator) executeAddToExisting(ctx context.Context, plan ManualLinkPlan, byID map[domain.ID]domain.OverlapCluster, note *string) error {
	target := byID[plan.TargetCluster]
	target.Origin = domain.OriginMixed

	existing, err := o.Store.GetClusterMembers(ctx, plan.TargetCluster)
	if err != nil {
		return fmt.Errorf("loading existing cluster members: %w", err)
	}
	newMembers := make([]domain.OverlapClusterMember, len(plan.Unclustered))
	for i, rsID := range plan.Unclustered {
		newMembers[i] = domain.OverlapClusterMember{ClusterID: plan.TargetCluster, RecordSourceID: rsID, Role: domain.RoleDuplicate, AddedBy: domain.AddedByUser, Note: note}
	}
	if err := o.Store.CreateCluster(ctx, target, append(existing, newMembers...)); err != nil {
		return fmt.Errorf("attaching new members to existing cluster: %w", err)
	}
	return nil
}

// SetLocked toggles a cluster's locked flag; has no other effect.
func (o *Orchestrator) SetLocked(ctx context.Context, clusterID domain.ID, locked bool) error {
	return o.Store.SetClusterLocked(ctx, clusterID, locked)
}
