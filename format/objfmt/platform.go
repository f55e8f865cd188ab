package objfmt

import "strings"

// Platform identifies a target OS for Mach-O's LC_BUILD_VERSION, per §6.
type Platform uint32

const (
	PlatformUnknown  Platform = 0
	PlatformMacOS    Platform = 1
	PlatformIOS      Platform = 2
	PlatformTVOS     Platform = 3
	PlatformWatchOS  Platform = 4
)

var platformAliases = map[string]Platform{
	"macosx": PlatformMacOS, "macos": PlatformMacOS,
	"iphoneos": PlatformIOS, "ios": PlatformIOS,
	"appletvos": PlatformTVOS, "tvos": PlatformTVOS,
	"watchos": PlatformWatchOS,
}

// ParsePlatform resolves one of the recognised platform strings from §6,
// defaulting to PlatformMacOS for an empty string (bin2macho's natural
// default target) and PlatformUnknown for anything unrecognised.
func ParsePlatform(s string) Platform {
	if s == "" {
		return PlatformMacOS
	}
	if p, ok := platformAliases[strings.ToLower(s)]; ok {
		return p
	}
	return PlatformUnknown
}

// EncodeVersion packs major, minor and patch numbers into Mach-O's
// (major<<16)|(minor<<8)|patch encoding used by LC_BUILD_VERSION's
// minos/sdk fields.
func EncodeVersion(major, minor, patch uint8) uint32 {
	return uint32(major)<<16 | uint32(minor)<<8 | uint32(patch)
}

// ParseVersion parses a "major[.minor[.patch]]" string into the same
// (major<<16)|(minor<<8)|patch encoding, tolerating a missing minor/patch
// (defaulting each to 0) and stopping at the first non-digit run the way
// bin2macho's version parser does. An empty string defaults to 10.0.0,
// bin2macho's own default target version.
func ParseVersion(s string) uint32 {
	if s == "" {
		return 0x000a0000
	}
	var major, minor, patch uint32
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		major = major*10 + uint32(s[i]-'0')
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			minor = minor*10 + uint32(s[i]-'0')
			i++
		}
		if i < len(s) && s[i] == '.' {
			i++
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				patch = patch*10 + uint32(s[i]-'0')
				i++
			}
		}
	}
	return major<<16 | minor<<8 | patch
}
