package lookup

import (
	"github.com/mileusna/useragent"

	"github.com/btroidl/ivre/internal/doc"
)

// userAgentInfo parses a User-Agent header value and stores the browser,
// OS and device family fields it can identify.
func userAgentInfo(value string, infos doc.Doc) {
	ua := useragent.Parse(value)
	if ua.Name != "" {
		infos["browser_family"] = ua.Name
	}
	if ua.Version != "" {
		infos["browser_version"] = ua.Version
	}
	if ua.OS != "" {
		infos["os_family"] = ua.OS
	}
	if ua.Device != "" {
		infos["device_family"] = ua.Device
	}
	if ua.Bot {
		infos["bot"] = true
	}
}
