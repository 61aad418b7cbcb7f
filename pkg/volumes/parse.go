package volumes

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

var lsblkFieldRE = regexp.MustCompile(`([A-Z_:\-]+)="((?:[^"\\]|\\.)*)"`)

// blockDevice is one row of lsblk output.
type blockDevice struct {
	Name   string
	KName  string
	MajMin string
	UUID   string
	Serial string
}

// id is the filesystem UUID, or the device serial when there is none.
func (b blockDevice) id() string {
	if b.UUID != "" {
		return b.UUID
	}
	return b.Serial
}

// parseLsblkDevices reads `lsblk -P` output. Newer util-linux releases
// spell the device number column MAJ_MIN.
func parseLsblkDevices(output string) []blockDevice {
	var devs []blockDevice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := map[string]string{}
		for _, m := range lsblkFieldRE.FindAllStringSubmatch(scanner.Text(), -1) {
			fields[m[1]] = unescapeLsblk(m[2])
		}
		if len(fields) == 0 {
			continue
		}
		majMin := fields["MAJ:MIN"]
		if majMin == "" {
			majMin = fields["MAJ_MIN"]
		}
		devs = append(devs, blockDevice{
			Name:   fields["NAME"],
			KName:  fields["KNAME"],
			MajMin: strings.TrimSpace(majMin),
			UUID:   fields["UUID"],
			Serial: strings.TrimSpace(fields["SERIAL"]),
		})
	}
	return devs
}

// parseLsblk turns lsblk rows into volumes keyed by device number.
func parseLsblk(output string) []Volume {
	var vols []Volume
	for _, d := range parseLsblkDevices(output) {
		if d.MajMin == "" || d.id() == "" {
			continue
		}
		vols = append(vols, Volume{Designator: d.MajMin, Serial: d.id()})
	}
	return vols
}

// mountEntry is one line of /proc/self/mountinfo. MajMin is the st_dev of
// files on the mount, which is not always a block device number.
type mountEntry struct {
	MajMin     string
	MountPoint string
	FSType     string
	Source     string
}

// parseMountInfo reads the proc(5) mountinfo format.
func parseMountInfo(data string) []mountEntry {
	var mounts []mountEntry
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		pre, post, ok := strings.Cut(scanner.Text(), " - ")
		if !ok {
			continue
		}
		head := strings.Fields(pre)
		tail := strings.Fields(post)
		if len(head) < 5 || len(tail) < 2 {
			continue
		}
		mounts = append(mounts, mountEntry{
			MajMin:     head[2],
			MountPoint: unescapeOctal(head[4]),
			FSType:     tail[0],
			Source:     unescapeOctal(tail[1]),
		})
	}
	return mounts
}

// unescapeOctal decodes the \ooo escapes the kernel uses for spaces and
// other separators in mountinfo paths.
func unescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// virtualFSTypes never hold a library.
var virtualFSTypes = map[string]struct{}{
	"proc": {}, "sysfs": {}, "devtmpfs": {}, "devpts": {}, "cgroup": {}, "cgroup2": {},
	"mqueue": {}, "debugfs": {}, "tracefs": {}, "securityfs": {}, "pstore": {}, "bpf": {},
	"configfs": {}, "fusectl": {}, "autofs": {}, "hugetlbfs": {}, "binfmt_misc": {}, "nsfs": {},
}

// sourceLookup finds the volume id behind a mount. Each step is tried in
// order and nil steps are skipped.
type sourceLookup struct {
	// devices holds lsblk rows, matched by kernel or display name.
	devices []blockDevice
	// byUUID maps kernel device names to filesystem UUIDs from
	// /dev/disk/by-uuid.
	byUUID map[string]string
	// kernelName canonicalizes a source path such as /dev/mapper/vg-lv.
	kernelName func(source string) string
	// blkid reads the UUID from the device itself.
	blkid func(source string) string
	// fsid reads the filesystem id the kernel reports for a mount point.
	fsid func(mountPoint string) string
}

func (l sourceLookup) idFor(m mountEntry) string {
	if strings.HasPrefix(m.Source, "/dev/") {
		name := path.Base(m.Source)
		if l.kernelName != nil {
			if kn := l.kernelName(m.Source); kn != "" {
				name = kn
			}
		}
		for _, d := range l.devices {
			if (d.KName == name || d.Name == name) && d.id() != "" {
				return d.id()
			}
		}
		if id := l.byUUID[name]; id != "" {
			return id
		}
		if l.blkid != nil {
			if id := l.blkid(m.Source); id != "" {
				return id
			}
		}
	}
	if l.fsid != nil {
		if id := l.fsid(m.MountPoint); id != "" {
			return "fsid:" + id
		}
	}
	return ""
}

// volumesFromMounts adds a volume for every mounted st_dev not already in
// known, which is updated in place. This covers btrfs subvolumes and other
// anonymous device numbers that lsblk does not list.
func volumesFromMounts(mounts []mountEntry, known map[string]struct{}, l sourceLookup) []Volume {
	var vols []Volume
	for _, m := range mounts {
		if _, ok := virtualFSTypes[m.FSType]; ok {
			continue
		}
		if _, ok := known[m.MajMin]; ok {
			continue
		}
		id := l.idFor(m)
		if id == "" {
			continue
		}
		known[m.MajMin] = struct{}{}
		vols = append(vols, Volume{Designator: m.MajMin, Serial: id})
	}
	return vols
}

// unescapeLsblk decodes the \xHH escapes lsblk uses in -P mode.
func unescapeLsblk(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			var v byte
			ok := true
			for _, c := range []byte(s[i+2 : i+4]) {
				v <<= 4
				switch {
				case c >= '0' && c <= '9':
					v |= c - '0'
				case c >= 'a' && c <= 'f':
					v |= c - 'a' + 10
				case c >= 'A' && c <= 'F':
					v |= c - 'A' + 10
				default:
					ok = false
				}
			}
			if ok {
				b.WriteByte(v)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

type logicalDisk struct {
	DeviceID           string `json:"DeviceID"`
	VolumeSerialNumber string `json:"VolumeSerialNumber"`
}

// parseLogicalDisks reads Win32_LogicalDisk rows converted to JSON, which
// is a bare object when there is a single disk.
func parseLogicalDisks(data []byte) ([]Volume, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var disks []logicalDisk
	if data[0] == '{' {
		var disk logicalDisk
		if err := json.Unmarshal(data, &disk); err != nil {
			return nil, errors.WithStack(err)
		}
		disks = append(disks, disk)
	} else if err := json.Unmarshal(data, &disks); err != nil {
		return nil, errors.WithStack(err)
	}

	vols := make([]Volume, 0, len(disks))
	for _, d := range disks {
		if d.DeviceID == "" || d.VolumeSerialNumber == "" {
			continue
		}
		vols = append(vols, Volume{Designator: strings.ToUpper(d.DeviceID), Serial: d.VolumeSerialNumber})
	}
	return vols, nil
}
