package service

import (
	"encoding/hex"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// FingerprintLength is the length of a device fingerprint token
const FingerprintLength = 16

// DeviceInfo lists the environment features a fingerprint is derived from
type DeviceInfo struct {
	UserAgent           string
	Language            string
	ScreenWidth         int
	ScreenHeight        int
	HardwareConcurrency int
	TimeZone            string
	MaxTouchPoints      int
}

// DeviceProbe collects DeviceInfo for the running device
type DeviceProbe interface {
	Probe() DeviceInfo
}

// HostProbe derives DeviceInfo from the Go runtime and the environment.
// A host has no screen, so the dimensions stay zero.
type HostProbe struct{}

func (HostProbe) Probe() DeviceInfo {
	localtime, _ := os.Readlink("/etc/localtime")
	return DeviceInfo{
		UserAgent:           "memowallet/" + runtime.GOOS + "-" + runtime.GOARCH,
		Language:            os.Getenv("LANG"),
		HardwareConcurrency: runtime.NumCPU(),
		TimeZone:            zoneName(os.Getenv("TZ"), localtime),
	}
}

// zoneName returns the IANA zone from $TZ or the /etc/localtime link target.
// It never returns an abbreviation like AEST, which flips with daylight saving.
func zoneName(tz, localtime string) string {
	if tz = strings.TrimPrefix(tz, ":"); tz != "" {
		if _, zone, ok := strings.Cut(tz, "zoneinfo/"); ok {
			return zone
		}
		return tz
	}
	if _, zone, ok := strings.Cut(localtime, "zoneinfo/"); ok {
		return zone
	}
	return "Local"
}

// Fingerprint hashes info into a FingerprintLength hex token
func Fingerprint(info DeviceInfo) string {
	joined := strings.Join([]string{
		info.UserAgent,
		info.Language,
		strconv.Itoa(info.ScreenWidth) + "x" + strconv.Itoa(info.ScreenHeight),
		strconv.Itoa(info.HardwareConcurrency),
		info.TimeZone,
		strconv.Itoa(info.MaxTouchPoints),
	}, "|")
	sum := blake2b.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}
