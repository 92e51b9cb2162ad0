package ingest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogParsersRegistered(t *testing.T) {
	for _, def := range catalog.All() {
		if def.HasParser() {
			assert.True(t, HasParser(def.Parser), "%s uses unknown parser %q", def.Name, def.Parser)
		}
	}
}

func TestParseDF(t *testing.T) {
	raw := `Filesystem      Size  Used Avail Use% Mounted on
/dev/mapper/ubuntu--vg-ubuntu--lv
                 98G   12G   82G  13% /
tmpfs           1.6G  2.1M  1.6G   1% /run
/dev/sdb1       500M     0  500M   0% /mnt/usb drive
`
	got := parseDF(raw)
	want := []map[string]interface{}{
		{"filesystem": "/dev/mapper/ubuntu--vg-ubuntu--lv", "size_bytes": "105226698752", "used_bytes": "12884901888",
			"available_bytes": "88046829568", "use_percent": "13", "mounted_on": "/"},
		{"filesystem": "tmpfs", "size_bytes": "1717986918", "used_bytes": "2202009",
			"available_bytes": "1717986918", "use_percent": "1", "mounted_on": "/run"},
		{"filesystem": "/dev/sdb1", "size_bytes": "524288000", "used_bytes": "0",
			"available_bytes": "524288000", "use_percent": "0", "mounted_on": "/mnt/usb drive"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseDF mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDF_KiloBlocks(t *testing.T) {
	got := parseDF("Filesystem 1K-blocks Used Available Use% Mounted on\n/dev/sda1 10 5 5 50% /\n")
	require.Len(t, got, 1)
	assert.Equal(t, "10240", got[0]["size_bytes"])
}

func TestParseLsblk(t *testing.T) {
	text := `NAME   MAJ:MIN RM  SIZE RO TYPE MOUNTPOINT
sda      8:0    0   20G  0 disk
├─sda1   8:1    0    1M  0 part
└─sda2   8:2    0   20G  0 part /
`
	got := parseLsblk(text)
	require.Len(t, got, 3)
	assert.Equal(t, "sda", got[0]["device_name"])
	assert.Equal(t, "21474836480", got[0]["size_bytes"])
	assert.Equal(t, "disk", got[0]["device_type"])
	assert.Equal(t, "sda2", got[2]["device_name"])
	assert.Equal(t, "/", got[2]["mount_point"])

	js := `{"blockdevices":[{"name":"nvme0n1","size":512110190592,"type":"disk","mountpoint":null,"model":"Samsung SSD  ",
		"children":[{"name":"nvme0n1p1","size":"512M","type":"part","mountpoint":"/boot/efi","fstype":"vfat"}]}]}`
	got = parseLsblk(js)
	want := []map[string]interface{}{
		{"device_name": "nvme0n1", "device_type": "disk", "size_bytes": "512110190592", "model": "Samsung SSD"},
		{"device_name": "nvme0n1p1", "device_type": "part", "size_bytes": "536870912", "mount_point": "/boot/efi", "filesystem": "vfat"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseLsblk mismatch (-want +got):\n%s", diff)
	}
}

func TestParseARP(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []map[string]interface{}
	}{
		{
			name: "arp -n",
			raw: "Address                  HWtype  HWaddress           Flags Mask            Iface\n" +
				"192.168.1.1              ether   aa:bb:cc:dd:ee:ff   C                     eth0\n",
			want: []map[string]interface{}{
				{"ip_address": "192.168.1.1", "hw_type": "ether", "mac_address": "aa:bb:cc:dd:ee:ff", "flags": "C", "interface": "eth0"},
			},
		},
		{
			name: "ip neigh",
			raw:  "10.0.0.1 dev wlan0 lladdr 11:22:33:44:55:66 REACHABLE\n",
			want: []map[string]interface{}{
				{"ip_address": "10.0.0.1", "interface": "wlan0", "mac_address": "11:22:33:44:55:66", "flags": "REACHABLE"},
			},
		},
		{
			name: "proc net arp",
			raw: "IP address       HW type     Flags       HW address            Mask     Device\n" +
				"172.17.0.2       0x1         0x2         02:42:ac:11:00:02     *        docker0\n",
			want: []map[string]interface{}{
				{"ip_address": "172.17.0.2", "hw_type": "0x1", "flags": "0x2", "mac_address": "02:42:ac:11:00:02", "mask": "*", "interface": "docker0"},
			},
		},
		{
			name: "arp -a incomplete",
			raw:  "? (10.0.0.9) at <incomplete> on eth1\n",
			want: []map[string]interface{}{
				{"ip_address": "10.0.0.9", "interface": "eth1"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parseARP(tt.raw)); diff != "" {
				t.Errorf("parseARP mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMounts(t *testing.T) {
	raw := "sysfs on /sys type sysfs (rw,nosuid,nodev,noexec,relatime)\n" +
		"/dev/sda1 /media/usb\\040stick vfat rw,relatime 0 0\n" +
		"nodev\tproc\n" +
		"\text4\n"
	want := []map[string]interface{}{
		{"device": "sysfs", "mount_point": "/sys", "fs_type": "sysfs", "options": "rw,nosuid,nodev,noexec,relatime"},
		{"device": "/dev/sda1", "mount_point": "/media/usb stick", "fs_type": "vfat", "options": "rw,relatime"},
		{"fs_type": "proc", "nodev": true},
		{"fs_type": "ext4", "nodev": false},
	}
	if diff := cmp.Diff(want, parseMounts(raw)); diff != "" {
		t.Errorf("parseMounts mismatch (-want +got):\n%s", diff)
	}
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "1024", humanBytes("1K", 1))
	assert.Equal(t, "1536", humanBytes("1.5KiB", 1))
	assert.Equal(t, "2048", humanBytes("2", 1024))
	assert.Nil(t, humanBytes("-", 1))
	assert.Equal(t, "weird", humanBytes("weird", 1))
}
