package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/snapshots"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// snapshotSuffix is appended to the container ID to name its rootfs snapshot.
const snapshotSuffix = "-snapshot"

// cleanupContainer kills the task if it is still running, then deletes the
// container and its snapshot. A missing task or container is not an error.
func (r *Runner) cleanupContainer(ctx context.Context, container containerd.Container) error {
	if container == nil {
		return nil
	}

	id := container.ID()
	logger := log.With().Str("container", id).Logger()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	ctx = r.client.WithNamespace(ctx)

	if task, err := container.Task(ctx, nil); err == nil {
		r.killTask(ctx, task)
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			logger.Warn().Err(err).Msg("failed to delete task")
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("deleting container %s: %w", id, err)
	}
	logger.Debug().Msg("container removed")
	return nil
}

func (r *Runner) killTask(ctx context.Context, task containerd.Task) {
	status, err := task.Status(ctx)
	if err != nil || status.Status == containerd.Stopped {
		return
	}

	exitCh, err := task.Wait(ctx)
	if err != nil {
		return
	}
	_ = task.Kill(ctx, unix.SIGKILL, containerd.WithKillAll)

	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		log.Warn().Str("container", task.ID()).Msg("task did not exit after SIGKILL")
	}
}

// CleanupOrphaned removes judge containers created more than olderThan ago,
// along with rootfs snapshots whose container was never created or is gone.
// Both are left behind when a judging process dies mid-run.
func (r *Runner) CleanupOrphaned(ctx context.Context, olderThan time.Duration) (int, error) {
	nsCtx := r.client.WithNamespace(ctx)

	containers, err := r.client.Raw().Containers(nsCtx)
	if err != nil {
		return 0, fmt.Errorf("listing containers: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	live := make(map[string]bool)
	var cleaned int
	for _, c := range containers {
		id := c.ID()
		if !strings.HasPrefix(id, containerPrefix) {
			continue
		}
		info, err := c.Info(nsCtx)
		if err != nil || !info.CreatedAt.Before(cutoff) {
			live[id+snapshotSuffix] = true
			continue
		}

		log.Warn().Str("container", id).Time("created", info.CreatedAt).Msg("removing orphaned judge container")
		if err := r.cleanupContainer(ctx, c); err != nil {
			log.Error().Err(err).Str("container", id).Msg("failed to remove orphaned container")
			live[id+snapshotSuffix] = true
			continue
		}
		cleaned++
	}

	if err := r.removeStaleSnapshots(nsCtx, cutoff, live); err != nil {
		log.Warn().Err(err).Msg("snapshot cleanup incomplete")
	}
	return cleaned, nil
}

func (r *Runner) removeStaleSnapshots(ctx context.Context, cutoff time.Time, live map[string]bool) error {
	sn := r.client.Raw().SnapshotService(containerd.DefaultSnapshotter)

	var stale []string
	err := sn.Walk(ctx, func(_ context.Context, info snapshots.Info) error {
		if staleSnapshot(info, cutoff, live) {
			stale = append(stale, info.Name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}

	for _, key := range stale {
		if err := sn.Remove(ctx, key); err != nil && !errdefs.IsNotFound(err) {
			log.Warn().Err(err).Str("snapshot", key).Msg("failed to remove snapshot")
			continue
		}
		log.Debug().Str("snapshot", key).Msg("removed stale snapshot")
	}
	return nil
}

// staleSnapshot picks judge rootfs snapshots older than cutoff that no
// remaining container refers to. Image layers never match the name pattern.
func staleSnapshot(info snapshots.Info, cutoff time.Time, live map[string]bool) bool {
	return info.Kind == snapshots.KindActive &&
		strings.HasPrefix(info.Name, containerPrefix) &&
		strings.HasSuffix(info.Name, snapshotSuffix) &&
		info.Created.Before(cutoff) &&
		!live[info.Name]
}
