// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package devicemonitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/moby/sys/mountinfo"
)

// Mount is a filesystem that may hold a cart.
type Mount struct {
	// Path is the mount point.
	Path string

	// Device is the mount source, usually the block device.
	Device string

	FSType string
}

// MountSource lists the mounts that are cart candidates.
type MountSource interface {
	Mounts() ([]Mount, error)
}

// DefaultSysfsRoot is where sysfs is mounted.
const DefaultSysfsRoot = "/sys"

// MountTable is a MountSource reading the kernel mount table. Only mounts
// strictly below one of the media roots are candidates.
type MountTable struct {
	MediaRoots []string

	// RemovableOnly restricts candidates to mounts backed by a removable
	// block device.
	RemovableOnly bool

	SysfsRoot string

	// GetMounts reads the mount table. It defaults to
	// mountinfo.GetMounts.
	GetMounts func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)
}

// NewMountTable returns a MountTable over the system mount table.
func NewMountTable(mediaRoots []string, removableOnly bool) *MountTable {
	return &MountTable{
		MediaRoots:    mediaRoots,
		RemovableOnly: removableOnly,
		SysfsRoot:     DefaultSysfsRoot,
		GetMounts:     mountinfo.GetMounts,
	}
}

// Mounts is part of the MountSource interface.
func (t *MountTable) Mounts() ([]Mount, error) {
	infos, err := t.GetMounts(t.underMediaRoot)
	if err != nil {
		return nil, errors.Annotate(err, "reading mount table")
	}
	var mounts []Mount
	for _, info := range infos {
		if t.RemovableOnly && !IsRemovable(t.SysfsRoot, info.Major, info.Minor) {
			continue
		}
		mounts = append(mounts, Mount{
			Path:   info.Mountpoint,
			Device: info.Source,
			FSType: info.FSType,
		})
	}
	return mounts, nil
}

// underMediaRoot keeps mounts strictly below any media root. A root of
// "/" keeps every mount except the root filesystem.
func (t *MountTable) underMediaRoot(info *mountinfo.Info) (skip, stop bool) {
	for _, root := range t.MediaRoots {
		prefix := filepath.Clean(root)
		if prefix != "/" {
			prefix += "/"
		}
		if info.Mountpoint != "/" && strings.HasPrefix(info.Mountpoint, prefix) {
			return false, false
		}
	}
	return true, false
}

// IsRemovable reports whether the block device major:minor is removable
// media according to sysfs: an SD card, a disk flagged removable, or any
// device attached over USB. Devices sysfs does not know are not
// removable.
func IsRemovable(sysfsRoot string, major, minor int) bool {
	dev, err := filepath.EvalSymlinks(filepath.Join(sysfsRoot, "dev", "block", fmt.Sprintf("%d:%d", major, minor)))
	if err != nil {
		return false
	}
	disk := dev
	if _, err := os.Stat(filepath.Join(dev, "partition")); err == nil {
		disk = filepath.Dir(dev)
	}
	if strings.HasPrefix(filepath.Base(disk), "mmcblk") {
		return true
	}
	if data, err := os.ReadFile(filepath.Join(disk, "removable")); err == nil && strings.TrimSpace(string(data)) == "1" {
		return true
	}
	return strings.Contains(dev, "/usb")
}
