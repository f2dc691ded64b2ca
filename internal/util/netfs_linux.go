//go:build linux

package util

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Kernel VFS magic numbers of network filesystems
var networkMagic = map[int64]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x564c:     "ncp",
}

var networkTypeNames = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"}

func detectMount(path string) (*MountInfo, error) {
	info := &MountInfo{}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, err
	}
	if proto, ok := networkMagic[int64(stat.Type)]; ok {
		info.IsNetwork = true
		info.Protocol = proto
	}

	mounts, err := readMounts("/proc/mounts")
	if err != nil {
		return info, nil
	}

	best := ""
	for mountPoint, fsType := range mounts {
		if !underMount(path, mountPoint) || len(mountPoint) <= len(best) {
			continue
		}
		best = mountPoint
		info.MountPath = mountPoint
		for _, name := range networkTypeNames {
			if strings.Contains(strings.ToLower(fsType), name) {
				info.IsNetwork = true
				info.Protocol = strings.ToLower(fsType)
			}
		}
	}
	return info, nil
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}

// readMounts maps mount point -> filesystem type from a mounts(5) table
func readMounts(table string) (map[string]string, error) {
	f, err := os.Open(table)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mounts := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	return mounts, scanner.Err()
}
