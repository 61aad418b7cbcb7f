package volumes

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/sys/unix"
)

const lsblkTimeout = 10 * time.Second

type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// linuxEnumerator builds the device table from lsblk and the mount table.
// lsblk covers block devices with udev data; the mount table adds every
// other st_dev a path can report, such as btrfs subvolumes.
type linuxEnumerator struct {
	mountInfo string
	uuidDir   string
	run       commandFunc
	fsid      func(mountPoint string) string
}

// SystemEnumerator lists the devices and mounts of the running system.
func SystemEnumerator() Enumerator {
	return linuxEnumerator{
		mountInfo: "/proc/self/mountinfo",
		uuidDir:   "/dev/disk/by-uuid",
		run:       runCommand,
		fsid:      statfsID,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, lsblkTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

func (e linuxEnumerator) ListLogicalVolumes(ctx context.Context) ([]Volume, error) {
	log := logger.FromContext(ctx)

	var devices []blockDevice
	output, lsblkErr := e.run(ctx, "lsblk", "-P", "-o", "NAME,KNAME,MAJ:MIN,UUID,SERIAL")
	if lsblkErr != nil {
		log.Debug("lsblk unavailable; using the mount table only", logger.Data{"error": lsblkErr.Error()})
	} else {
		devices = parseLsblkDevices(string(output))
	}

	known := map[string]struct{}{}
	var vols []Volume
	for _, d := range devices {
		if d.MajMin == "" || d.id() == "" {
			continue
		}
		if _, ok := known[d.MajMin]; ok {
			continue
		}
		known[d.MajMin] = struct{}{}
		vols = append(vols, Volume{Designator: d.MajMin, Serial: d.id()})
	}

	data, err := os.ReadFile(e.mountInfo)
	if err != nil {
		if lsblkErr != nil {
			return nil, errors.Wrap(lsblkErr, "failed to run lsblk and read the mount table")
		}
		log.Debug("can't read the mount table", logger.Data{"error": err.Error()})
		return vols, nil
	}

	lookup := sourceLookup{
		devices:    devices,
		byUUID:     e.uuidLinks(),
		kernelName: kernelName,
		blkid: func(source string) string {
			out, err := e.run(ctx, "blkid", "-s", "UUID", "-o", "value", source)
			if err != nil {
				return ""
			}
			return strings.TrimSpace(string(out))
		},
		fsid: e.fsid,
	}
	vols = append(vols, volumesFromMounts(parseMountInfo(string(data)), known, lookup)...)
	return vols, nil
}

// uuidLinks maps kernel device names to the filesystem UUIDs udev links to
// them.
func (e linuxEnumerator) uuidLinks() map[string]string {
	links := map[string]string{}
	entries, err := os.ReadDir(e.uuidDir)
	if err != nil {
		return links
	}
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join(e.uuidDir, entry.Name()))
		if err != nil {
			continue
		}
		links[filepath.Base(target)] = entry.Name()
	}
	return links
}

func kernelName(source string) string {
	resolved, err := filepath.EvalSymlinks(source)
	if err != nil {
		return ""
	}
	return filepath.Base(resolved)
}

// statfsID returns the filesystem id of a mount point, or "" when the
// filesystem does not report one.
func statfsID(mountPoint string) string {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPoint, &st); err != nil {
		return ""
	}
	if st.Fsid.Val[0] == 0 && st.Fsid.Val[1] == 0 {
		return ""
	}
	return fmt.Sprintf("%08x%08x", uint32(st.Fsid.Val[0]), uint32(st.Fsid.Val[1]))
}
