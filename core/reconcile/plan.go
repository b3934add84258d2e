package reconcile

import (
	"context"
	"fmt"
	"time"
)

// MirrorBatchCreator is implemented by mirror clients that can insert many records at once.
type MirrorBatchCreator interface {
	CreateBatch(ctx context.Context, records []Record) error
}

// applier writes resolutions through the collaborators.
type applier struct {
	directory Directory
	mirror    Mirror
	timeout   time.Duration
}

// applyAll applies every resolution and folds the outcome into result and the snapshots.
// Creations are grouped into one batch when the mirror supports it.
// It returns the keys whose resolutions applied without error.
func (a *applier) applyAll(ctx context.Context, resolutions []*Resolution, result *Result, directory, mirror Snapshot) map[string]bool {
	ok := make(map[string]bool, len(resolutions))

	var creates []Action
	var rest []*Resolution
	if _, batch := a.mirror.(MirrorBatchCreator); batch {
		for _, res := range resolutions {
			if len(res.Actions) == 1 && res.Actions[0].Type == ActionCreateMirror {
				creates = append(creates, res.Actions[0])
				continue
			}
			rest = append(rest, res)
		}
	} else {
		rest = resolutions
	}

	if len(creates) > 0 {
		for key, applied := range a.createBatch(ctx, creates, result, mirror) {
			ok[key] = applied
		}
	}

	for _, res := range rest {
		ok[res.Key] = a.apply(ctx, res, result, directory, mirror)
	}
	return ok
}

func (a *applier) createBatch(ctx context.Context, creates []Action, result *Result, mirror Snapshot) map[string]bool {
	out := make(map[string]bool, len(creates))
	records := make([]Record, len(creates))
	for i, act := range creates {
		records[i] = act.Fields
	}

	callCtx, cancel := withTimeout(ctx, a.timeout)
	err := a.mirror.(MirrorBatchCreator).CreateBatch(callCtx, records)
	cancel()

	if err != nil {
		err = callError(SideMirror, "batch create", a.timeout, err)
		for _, act := range creates {
			result.Errors = append(result.Errors, RecordError{Key: act.Key, Action: act.Type, Error: err.Error()})
			out[act.Key] = false
		}
		return out
	}

	for _, act := range creates {
		mirror[act.Key] = act.Fields.Clone()
		result.Created++
		result.Synced++
		out[act.Key] = true
	}
	return out
}

// apply applies one resolution action by action. A failed action does not stop the others.
// It reports false when any action failed or was skipped.
func (a *applier) apply(ctx context.Context, res *Resolution, result *Result, directory, mirror Snapshot) bool {
	ok := true
	for _, act := range res.Actions {
		applied, err := a.applyAction(ctx, act)
		if err != nil {
			result.Errors = append(result.Errors, RecordError{Key: act.Key, Action: act.Type, Error: err.Error()})
			ok = false
			continue
		}
		if !applied {
			result.Skipped++
			ok = false
			continue
		}

		result.Synced++
		switch act.Type {
		case ActionCreateMirror:
			result.Created++
			mirror[act.Key] = act.Fields.Clone()
		case ActionDeactivateMirror:
			result.Deactivated++
			mirror[act.Key] = merge(mirror[act.Key], act.Fields)
		case ActionUpdateMirror:
			result.Updated++
			mirror[act.Key] = merge(mirror[act.Key], act.Fields)
		case ActionUpdateDirectory:
			result.Updated++
			directory[act.Key] = merge(directory[act.Key], act.Fields)
		}
	}
	return ok
}

// applyAction returns false without error when the target cannot accept the write.
func (a *applier) applyAction(ctx context.Context, act Action) (bool, error) {
	callCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	switch act.Type {
	case ActionCreateMirror:
		if err := a.mirror.Create(callCtx, act.Fields); err != nil {
			return false, callError(SideMirror, "create "+act.Key, a.timeout, err)
		}
	case ActionUpdateMirror, ActionDeactivateMirror:
		if err := a.mirror.Update(callCtx, act.Key, act.Fields); err != nil {
			return false, callError(SideMirror, "update "+act.Key, a.timeout, err)
		}
	case ActionUpdateDirectory:
		updater, ok := a.directory.(DirectoryUpdater)
		if !ok {
			return false, nil
		}
		if err := updater.Update(callCtx, act.Key, act.Fields); err != nil {
			return false, callError(SideDirectory, "update "+act.Key, a.timeout, err)
		}
	default:
		return false, fmt.Errorf("unknown action type %q", act.Type)
	}
	return true, nil
}

// targetsDirectory reports whether res writes to the directory.
func targetsDirectory(res *Resolution) bool {
	for _, act := range res.Actions {
		if act.Type == ActionUpdateDirectory {
			return true
		}
	}
	return false
}

func merge(base, fields Record) Record {
	out := base.Clone()
	if out == nil {
		out = make(Record, len(fields))
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// withTimeout bounds ctx by d. A zero d only adds cancellation.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
