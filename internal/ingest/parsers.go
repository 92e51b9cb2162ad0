package ingest

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Parser turns raw command output into records keyed by catalog column names
type Parser func(raw string) []map[string]interface{}

var parsers = map[string]Parser{
	"df":               parseDF,
	"lsblk":            parseLsblk,
	"arp":              parseARP,
	"proc_filesystems": parseMounts,
}

// HasParser reports whether a raw-output parser is registered under name
func HasParser(name string) bool {
	_, ok := parsers[name]
	return ok
}

func parse(name, raw string) []interface{} {
	p, ok := parsers[name]
	if !ok {
		return []interface{}{raw}
	}
	recs := p(raw)
	out := make([]interface{}, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	return out
}

func lines(raw string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), " \t\r"); strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

var sizeUnits = map[byte]float64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
	'P': 1 << 50,
	'E': 1 << 60,
}

// humanBytes converts "20G" or "1.5T" to a byte count; plain numbers are scaled by unit
func humanBytes(s string, unit float64) interface{} {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(int64(float64(n)*unit), 10)
	}
	upper := strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(s, "iB"), "B"))
	if upper == "" {
		return s
	}
	mult, ok := sizeUnits[upper[len(upper)-1]]
	if !ok {
		return s
	}
	f, err := strconv.ParseFloat(strings.Replace(upper[:len(upper)-1], ",", ".", 1), 64)
	if err != nil {
		return s
	}
	return strconv.FormatInt(int64(f*mult), 10)
}

// parseDF reads `df`, `df -k`, `df -B1` and `df -h` output
func parseDF(raw string) []map[string]interface{} {
	var out []map[string]interface{}
	unit := float64(1 << 10)
	var carry string

	for _, line := range lines(raw) {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], "Filesystem") {
			if len(fields) > 1 {
				switch strings.ToLower(fields[1]) {
				case "1b-blocks":
					unit = 1
				case "1m-blocks":
					unit = 1 << 20
				case "size":
					unit = 1
				}
			}
			continue
		}

		// long device names wrap onto their own line
		if len(fields) == 1 {
			carry = fields[0]
			continue
		}
		if carry != "" {
			fields = append([]string{carry}, fields...)
			carry = ""
		}
		if len(fields) < 6 {
			continue
		}
		out = append(out, map[string]interface{}{
			"filesystem":      fields[0],
			"size_bytes":      humanBytes(fields[1], unit),
			"used_bytes":      humanBytes(fields[2], unit),
			"available_bytes": humanBytes(fields[3], unit),
			"use_percent":     strings.TrimSuffix(fields[4], "%"),
			"mounted_on":      strings.Join(fields[5:], " "),
		})
	}
	return out
}

var lsblkHeaderColumns = map[string]string{
	"NAME":        "device_name",
	"KNAME":       "device_name",
	"SIZE":        "size_bytes",
	"TYPE":        "device_type",
	"MOUNTPOINT":  "mount_point",
	"MOUNTPOINTS": "mount_point",
	"FSTYPE":      "filesystem",
	"MODEL":       "model",
}

// parseLsblk reads `lsblk -J` JSON or the default tree table
func parseLsblk(raw string) []map[string]interface{} {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var doc struct {
			BlockDevices []lsblkDevice `json:"blockdevices"`
		}
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			var out []map[string]interface{}
			for _, d := range doc.BlockDevices {
				out = d.flatten(out)
			}
			return out
		}
	}

	all := lines(raw)
	if len(all) == 0 {
		return nil
	}
	header := strings.Fields(all[0])
	if len(header) == 0 || lsblkHeaderColumns[strings.ToUpper(header[0])] != "device_name" {
		return nil
	}

	var out []map[string]interface{}
	for _, line := range all[1:] {
		fields := strings.Fields(stripTree(line))
		rec := make(map[string]interface{}, len(header))
		for i, h := range header {
			col, ok := lsblkHeaderColumns[strings.ToUpper(h)]
			if !ok || i >= len(fields) {
				continue
			}
			v := fields[i]
			if col == "size_bytes" {
				rec[col] = humanBytes(v, 1)
				continue
			}
			if _, set := rec[col]; !set {
				rec[col] = v
			}
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Size       interface{}   `json:"size"`
	Type       string        `json:"type"`
	MountPoint *string       `json:"mountpoint"`
	FSType     *string       `json:"fstype"`
	Model      *string       `json:"model"`
	Children   []lsblkDevice `json:"children"`
}

func (d lsblkDevice) flatten(out []map[string]interface{}) []map[string]interface{} {
	rec := map[string]interface{}{
		"device_name": d.Name,
		"device_type": d.Type,
	}
	switch s := d.Size.(type) {
	case string:
		rec["size_bytes"] = humanBytes(s, 1)
	case float64:
		rec["size_bytes"] = strconv.FormatInt(int64(s), 10)
	}
	if d.MountPoint != nil {
		rec["mount_point"] = *d.MountPoint
	}
	if d.FSType != nil {
		rec["filesystem"] = *d.FSType
	}
	if d.Model != nil {
		rec["model"] = strings.TrimSpace(*d.Model)
	}
	out = append(out, rec)
	for _, c := range d.Children {
		out = c.flatten(out)
	}
	return out
}

func stripTree(line string) string {
	return strings.TrimLeft(line, "├└─│|`- ")
}

var arpAllLine = regexp.MustCompile(`^\S+ \(([^)]+)\) at (\S+)(?: \[(\w+)\])?(?: \w+)*? on (\S+)`)

// parseARP reads `arp -n`, `arp -a`, `ip neigh` and /proc/net/arp
func parseARP(raw string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range lines(raw) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Address") || strings.HasPrefix(trimmed, "IP address") {
			continue
		}
		fields := strings.Fields(trimmed)

		switch {
		case arpAllLine.MatchString(trimmed):
			m := arpAllLine.FindStringSubmatch(trimmed)
			rec := map[string]interface{}{"ip_address": m[1], "interface": m[4]}
			if m[2] != "<incomplete>" {
				rec["mac_address"] = m[2]
			}
			if m[3] != "" {
				rec["hw_type"] = m[3]
			}
			out = append(out, rec)

		case containsField(fields, "dev"):
			rec := map[string]interface{}{"ip_address": fields[0]}
			for i := 1; i < len(fields)-1; i++ {
				switch fields[i] {
				case "dev":
					rec["interface"] = fields[i+1]
				case "lladdr":
					rec["mac_address"] = fields[i+1]
				}
			}
			rec["flags"] = fields[len(fields)-1]
			out = append(out, rec)

		case len(fields) == 6 && strings.HasPrefix(fields[1], "0x"):
			// /proc/net/arp
			out = append(out, map[string]interface{}{
				"ip_address":  fields[0],
				"hw_type":     fields[1],
				"flags":       fields[2],
				"mac_address": fields[3],
				"mask":        fields[4],
				"interface":   fields[5],
			})

		case len(fields) == 6:
			out = append(out, map[string]interface{}{
				"ip_address":  fields[0],
				"hw_type":     fields[1],
				"mac_address": fields[2],
				"flags":       fields[3],
				"mask":        fields[4],
				"interface":   fields[5],
			})

		case len(fields) == 5:
			out = append(out, map[string]interface{}{
				"ip_address":  fields[0],
				"hw_type":     fields[1],
				"mac_address": fields[2],
				"flags":       fields[3],
				"interface":   fields[4],
			})

		case len(fields) == 3 && fields[1] == "(incomplete)":
			out = append(out, map[string]interface{}{
				"ip_address": fields[0],
				"flags":      "incomplete",
				"interface":  fields[2],
			})
		}
	}
	return out
}

func containsField(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}

var mountLine = regexp.MustCompile(`^(\S+) on (.+) type (\S+)(?: \(([^)]*)\))?$`)

// parseMounts reads /proc/filesystems, /proc/mounts and `mount` output
func parseMounts(raw string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range lines(raw) {
		if m := mountLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = append(out, map[string]interface{}{
				"device":      m[1],
				"mount_point": m[2],
				"fs_type":     m[3],
				"options":     m[4],
			})
			continue
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) == 1:
			out = append(out, map[string]interface{}{"fs_type": fields[0], "nodev": false})
		case len(fields) == 2 && fields[0] == "nodev":
			out = append(out, map[string]interface{}{"fs_type": fields[1], "nodev": true})
		case len(fields) >= 4:
			out = append(out, map[string]interface{}{
				"device":      fields[0],
				"mount_point": unescapeOctal(fields[1]),
				"fs_type":     fields[2],
				"options":     fields[3],
			})
		}
	}
	return out
}

var octalEscape = regexp.MustCompile(`\\([0-7]{3})`)

// unescapeOctal decodes the \040 style escapes of /proc/mounts
func unescapeOctal(s string) string {
	return octalEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[1:], 8, 8)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}
