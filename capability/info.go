package capability

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used when the environment names no usable language.
const DefaultLocale = "eng"

// DescribeHost builds the device string: "<hostname> <arch>: <os> <release>".
func DescribeHost() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown"
	}
	desc := fmt.Sprintf("%s %s: %s", name, runtime.GOARCH, runtime.GOOS)
	if rel := osRelease(); rel != "" {
		desc += " " + rel
	}
	return desc
}

func osRelease() string {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ResolveLocale returns the three letter language code named by the POSIX
// locale variables, checked in LC_ALL, LC_MESSAGES, LANG order.
func ResolveLocale(getenv func(string) string) string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := getenv(key)
		if v == "" || v == "C" || v == "POSIX" || strings.HasPrefix(v, "C.") {
			continue
		}
		if code, ok := iso3(v); ok {
			return code
		}
	}
	return DefaultLocale
}

func iso3(posix string) (string, bool) {
	if i := strings.IndexAny(posix, ".@"); i >= 0 {
		posix = posix[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(posix, "_", "-"))
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	code := base.ISO3()
	if code == "" || code == "und" {
		return "", false
	}
	return code, true
}

// ParseVersionCode turns a configured or linker-set version code into an int.
// Anything unusable yields 0, the "unknown" version.
func ParseVersionCode(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// HostInfo collects Info from the running system.
func HostInfo(versionCode string) Info {
	return Info{
		Device:      DescribeHost(),
		Locale:      ResolveLocale(os.Getenv),
		VersionCode: ParseVersionCode(versionCode),
	}
}
