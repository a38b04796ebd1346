// Package quotadriver translates a directory-level disk quota into the
// mechanism appropriate for the host's filesystem: project quotas on
// XFS/ext4, subvolume quotas on btrfs, dataset quotas on zfs, or a
// poll-and-throttle fallback when none of those is available.
package quotadriver

import (
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
)

// Driver applies and removes a directory's disk quota.
type Driver interface {
	// SetQuota enforces a byte limit on path, creating whatever backing
	// object the filesystem needs (project ID, subvolume, dataset).
	SetQuota(path string, bytes int64) error
	// RemoveQuota releases the quota tracked for path.
	RemoveQuota(path string) error
	// Usage reports the current bytes consumed under path.
	Usage(path string) (int64, error)
}

// Registry selects a Driver by filesystem type name.
type Registry struct {
	drivers map[string]Driver
	fallback Driver
}

// NewRegistry builds a Registry with project/subvolume/dataset quota
// drivers registered by filesystem type, and MonitoringQuota as the
// fallback for unlisted filesystems and for the workspace/temp/cache
// sub-quotas, which are always monitoring-based per spec.
func NewRegistry() *Registry {
	fallback := NewMonitoringQuota()
	return &Registry{
		drivers: map[string]Driver{
			"xfs":   NewProjectQuota("xfs"),
			"ext4":  NewProjectQuota("ext4"),
			"btrfs": NewSubvolumeQuota(),
			"zfs":   NewDatasetQuota(),
		},
		fallback: fallback,
	}
}

// ForFilesystem returns the driver registered for fsType, or the
// monitoring-based fallback if none is registered.
func (r *Registry) ForFilesystem(fsType string) Driver {
	if d, ok := r.drivers[fsType]; ok {
		return d
	}
	return r.fallback
}

// SubQuota is always monitoring-based (spec §4.2: workspace/temp/cache
// sub-quotas never use the filesystem-level mechanism).
func (r *Registry) SubQuota() Driver {
	return r.fallback
}

// ProjectQuota enforces quotas via the Linux project quota mechanism
// (XFS natively, ext4 with quota=prjquota).
type ProjectQuota struct {
	fsType string
}

func NewProjectQuota(fsType string) *ProjectQuota {
	return &ProjectQuota{fsType: fsType}
}

func (q *ProjectQuota) SetQuota(path string, bytes int64) error {
	limit := fmt.Sprintf("%d", bytes/1024) // xfs_quota works in 1K blocks
	out, err := exec.Command("xfs_quota", "-x", "-c",
		fmt.Sprintf("limit -p bhard=%sk %s", limit, path), path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xfs_quota set limit: %w: %s", err, out)
	}
	return nil
}

func (q *ProjectQuota) RemoveQuota(path string) error {
	out, err := exec.Command("xfs_quota", "-x", "-c", "limit -p bhard=0 "+path, path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xfs_quota remove limit: %w: %s", err, out)
	}
	return nil
}

func (q *ProjectQuota) Usage(path string) (int64, error) {
	return dirSize(path)
}

// SubvolumeQuota enforces quotas via btrfs qgroups.
type SubvolumeQuota struct{}

func NewSubvolumeQuota() *SubvolumeQuota { return &SubvolumeQuota{} }

func (q *SubvolumeQuota) SetQuota(path string, bytes int64) error {
	out, err := exec.Command("btrfs", "qgroup", "limit", fmt.Sprintf("%d", bytes), path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("btrfs qgroup limit: %w: %s", err, out)
	}
	return nil
}

func (q *SubvolumeQuota) RemoveQuota(path string) error {
	out, err := exec.Command("btrfs", "qgroup", "limit", "none", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("btrfs qgroup remove limit: %w: %s", err, out)
	}
	return nil
}

func (q *SubvolumeQuota) Usage(path string) (int64, error) {
	return dirSize(path)
}

// DatasetQuota enforces quotas via zfs dataset properties.
type DatasetQuota struct{}

func NewDatasetQuota() *DatasetQuota { return &DatasetQuota{} }

func (q *DatasetQuota) SetQuota(path string, bytes int64) error {
	out, err := exec.Command("zfs", "set", fmt.Sprintf("quota=%d", bytes), path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("zfs set quota: %w: %s", err, out)
	}
	return nil
}

func (q *DatasetQuota) RemoveQuota(path string) error {
	out, err := exec.Command("zfs", "set", "quota=none", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("zfs remove quota: %w: %s", err, out)
	}
	return nil
}

func (q *DatasetQuota) Usage(path string) (int64, error) {
	return dirSize(path)
}

// MonitoringQuota has no kernel-enforced limit: it reports usage by walking
// the directory tree, and callers (the Enforcer) are responsible for taking
// action (throttle/kill) when usage exceeds the configured limit. This is
// the only option for sub-quotas and the fallback for unrecognized
// filesystems.
type MonitoringQuota struct {
	limits map[string]int64
}

func NewMonitoringQuota() *MonitoringQuota {
	return &MonitoringQuota{limits: map[string]int64{}}
}

func (q *MonitoringQuota) SetQuota(path string, bytes int64) error {
	q.limits[path] = bytes
	return nil
}

func (q *MonitoringQuota) RemoveQuota(path string) error {
	delete(q.limits, path)
	return nil
}

func (q *MonitoringQuota) Usage(path string) (int64, error) {
	return dirSize(path)
}

// Exceeded reports whether path's last-set quota has been exceeded, for
// the Enforcer's periodic monitoring check.
func (q *MonitoringQuota) Exceeded(path string) (observed, limit int64, exceeded bool, err error) {
	limit, ok := q.limits[path]
	if !ok {
		return 0, 0, false, nil
	}
	used, err := dirSize(path)
	if err != nil {
		return 0, limit, false, err
	}
	return used, limit, used > limit, nil
}

func dirSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
