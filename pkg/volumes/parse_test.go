package volumes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLsblk(t *testing.T) {
	output := `MAJ:MIN="8:0" UUID="" SERIAL="WD-1234"
MAJ:MIN="8:1" UUID="3f1c-22aa" SERIAL=""
MAJ:MIN="8:2" UUID="" SERIAL=""
MAJ:MIN="259:3" UUID="" SERIAL="My\x20Stick"
`
	vols := parseLsblk(output)
	assert.Equal(t, []Volume{
		{Designator: "8:0", Serial: "WD-1234"},
		{Designator: "8:1", Serial: "3f1c-22aa"},
		{Designator: "259:3", Serial: "My Stick"},
	}, vols)
}

func TestParseLogicalDisks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Volume
	}{
		{
			name:  "array",
			input: `[{"DeviceID":"C:","VolumeSerialNumber":"AAAA1111"},{"DeviceID":"d:","VolumeSerialNumber":"BBBB2222"},{"DeviceID":"Z:","VolumeSerialNumber":null}]`,
			expected: []Volume{
				{Designator: "C:", Serial: "AAAA1111"},
				{Designator: "D:", Serial: "BBBB2222"},
			},
		},
		{
			name:     "single object",
			input:    "\r\n{\"DeviceID\":\"E:\",\"VolumeSerialNumber\":\"CCCC3333\"}\r\n",
			expected: []Volume{{Designator: "E:", Serial: "CCCC3333"}},
		},
		{
			name:     "empty",
			input:    "  ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vols, err := parseLogicalDisks([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, vols)
		})
	}
}

func TestParseLogicalDisks_Invalid(t *testing.T) {
	_, err := parseLogicalDisks([]byte("[not json"))
	assert.Error(t, err)
}

func TestParseLsblkDevices_UnderscoreKeys(t *testing.T) {
	output := `NAME="vda1" KNAME="vda1" MAJ_MIN="253:1" UUID="0f3e-11" SERIAL=""
NAME="vg-books" KNAME="dm-0" MAJ_MIN="254:0" UUID="" SERIAL=""
`
	assert.Equal(t, []blockDevice{
		{Name: "vda1", KName: "vda1", MajMin: "253:1", UUID: "0f3e-11"},
		{Name: "vg-books", KName: "dm-0", MajMin: "254:0"},
	}, parseLsblkDevices(output))
	assert.Equal(t, []Volume{{Designator: "253:1", Serial: "0f3e-11"}}, parseLsblk(output))
}

func TestParseMountInfo(t *testing.T) {
	data := `22 1 253:1 / / rw,relatime shared:1 - ext4 /dev/vda1 rw
35 22 0:45 /@library /srv/My\040Books rw,relatime shared:20 - btrfs /dev/sda2 rw,subvol=/@library
40 22 0:23 / /proc rw,nosuid - proc proc rw
garbage line
`
	assert.Equal(t, []mountEntry{
		{MajMin: "253:1", MountPoint: "/", FSType: "ext4", Source: "/dev/vda1"},
		{MajMin: "0:45", MountPoint: "/srv/My Books", FSType: "btrfs", Source: "/dev/sda2"},
		{MajMin: "0:23", MountPoint: "/proc", FSType: "proc", Source: "proc"},
	}, parseMountInfo(data))
}

func TestVolumesFromMounts(t *testing.T) {
	mounts := []mountEntry{
		{MajMin: "8:1", MountPoint: "/", FSType: "ext4", Source: "/dev/sda1"},
		{MajMin: "0:45", MountPoint: "/srv/books", FSType: "btrfs", Source: "/dev/sda2"},
		{MajMin: "0:46", MountPoint: "/srv/comics", FSType: "btrfs", Source: "/dev/sda2"},
		{MajMin: "254:0", MountPoint: "/mnt/lv", FSType: "xfs", Source: "/dev/mapper/vg-lv"},
		{MajMin: "253:1", MountPoint: "/mnt/raw", FSType: "ext4", Source: "/dev/root"},
		{MajMin: "0:30", MountPoint: "/", FSType: "overlay", Source: "overlay"},
		{MajMin: "0:23", MountPoint: "/proc", FSType: "proc", Source: "proc"},
		{MajMin: "0:31", MountPoint: "/tmp", FSType: "tmpfs", Source: "tmpfs"},
	}
	known := map[string]struct{}{"8:1": {}}
	lookup := sourceLookup{
		devices: []blockDevice{{Name: "sda2", KName: "sda2", MajMin: "8:2", UUID: "BTRFS-UUID"}},
		byUUID:  map[string]string{"dm-0": "LV-UUID"},
		kernelName: func(source string) string {
			if source == "/dev/mapper/vg-lv" {
				return "dm-0"
			}
			return ""
		},
		blkid: func(source string) string {
			if source == "/dev/root" {
				return "ROOT-UUID"
			}
			return ""
		},
		fsid: func(mountPoint string) string {
			if mountPoint == "/" {
				return "00000000cafe0001"
			}
			return ""
		},
	}

	assert.Equal(t, []Volume{
		{Designator: "0:45", Serial: "BTRFS-UUID"},
		{Designator: "0:46", Serial: "BTRFS-UUID"},
		{Designator: "254:0", Serial: "LV-UUID"},
		{Designator: "253:1", Serial: "ROOT-UUID"},
		{Designator: "0:30", Serial: "fsid:00000000cafe0001"},
	}, volumesFromMounts(mounts, known, lookup))
}
