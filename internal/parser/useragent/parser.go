package useragent

import (
	"regexp"
	"strings"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Agent is what a page visit stores about the visitor's browser
type Agent struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	DeviceType     string
}

// IsBot reports whether the request came from a crawler or an HTTP client library
func (a *Agent) IsBot() bool {
	return a.DeviceType == DeviceBot
}

// OSName is the OS with a friendly Windows release name
func (a *Agent) OSName() string {
	if a.OS == "Windows" && a.OSVersion != "" {
		return windowsRelease(a.OSVersion)
	}
	if a.OSVersion != "" {
		return a.OS + " " + a.OSVersion
	}
	return a.OS
}

type namedPattern struct {
	name    string
	pattern *regexp.Regexp
}

var (
	// Ordered most specific first. Edge, Opera and Samsung all carry a Chrome token.
	browserPatterns = []namedPattern{
		{"Edge", regexp.MustCompile(`(?i)Edg(?:e|A|iOS)?/(\d+\.\d+)`)},
		{"Opera", regexp.MustCompile(`(?i)(?:Opera|OPR)/(\d+\.\d+)`)},
		{"Samsung Internet", regexp.MustCompile(`(?i)SamsungBrowser/(\d+\.\d+)`)},
		{"Firefox", regexp.MustCompile(`(?i)(?:Firefox|FxiOS)/(\d+\.\d+)`)},
		{"Chrome", regexp.MustCompile(`(?i)(?:Chrome|CriOS)/(\d+\.\d+)`)},
		{"Safari", regexp.MustCompile(`(?i)Version/(\d+\.\d+).*Safari`)},
		{"IE", regexp.MustCompile(`(?i)MSIE\s+(\d+\.\d+)`)},
		{"IE", regexp.MustCompile(`(?i)Trident/.*rv:(\d+\.\d+)`)},
	}

	osPatterns = []namedPattern{
		{"Windows", regexp.MustCompile(`(?i)Windows NT (\d+\.\d+)`)},
		{"iOS", regexp.MustCompile(`(?i)(?:iPhone|iPad|iPod).*? OS (\d+[._]\d+)`)},
		{"macOS", regexp.MustCompile(`(?i)Mac OS X (\d+[._]\d+)`)},
		{"Android", regexp.MustCompile(`(?i)Android (\d+(?:\.\d+)?)`)},
		{"ChromeOS", regexp.MustCompile(`(?i)CrOS`)},
		{"Linux", regexp.MustCompile(`(?i)Linux`)},
	}

	botPattern    = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|slurp|curl|wget|python|go-http|headless|lighthouse|postman`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|windows phone`)

	// Checked in order, first match wins
	botNames = []struct {
		token string
		name  string
	}{
		{"googlebot", "Googlebot"},
		{"bingbot", "Bingbot"},
		{"slurp", "Yahoo Slurp"},
		{"duckduckbot", "DuckDuckBot"},
		{"baiduspider", "Baidu Spider"},
		{"yandexbot", "YandexBot"},
		{"facebookexternalhit", "Facebook"},
		{"twitterbot", "Twitterbot"},
		{"linkedinbot", "LinkedInBot"},
		{"applebot", "Applebot"},
		{"headlesschrome", "Headless Chrome"},
		{"lighthouse", "Lighthouse"},
		{"python", "Python Client"},
		{"go-http", "Go HTTP Client"},
		{"curl", "cURL"},
		{"wget", "Wget"},
		{"postman", "Postman"},
	}
)

// Parse extracts browser, OS and device class from a User-Agent header
func Parse(userAgent string) *Agent {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return &Agent{Browser: "Unknown", OS: "Unknown", DeviceType: DeviceUnknown}
	}

	if botPattern.MatchString(userAgent) {
		return &Agent{Browser: botName(userAgent), OS: "Bot", DeviceType: DeviceBot}
	}

	agent := &Agent{Browser: "Unknown", OS: "Unknown"}
	if name, version, ok := match(browserPatterns, userAgent); ok {
		agent.Browser = name
		agent.BrowserVersion = version
	}
	if name, version, ok := match(osPatterns, userAgent); ok {
		agent.OS = name
		agent.OSVersion = strings.ReplaceAll(version, "_", ".")
	}

	switch {
	case isTablet(userAgent):
		agent.DeviceType = DeviceTablet
	case mobilePattern.MatchString(userAgent):
		agent.DeviceType = DeviceMobile
	default:
		agent.DeviceType = DeviceDesktop
	}
	return agent
}

func match(patterns []namedPattern, userAgent string) (string, string, bool) {
	for _, p := range patterns {
		matches := p.pattern.FindStringSubmatch(userAgent)
		if matches == nil {
			continue
		}
		version := ""
		if len(matches) > 1 {
			version = matches[1]
		}
		return p.name, version, true
	}
	return "", "", false
}

// isTablet treats iPads and Android devices without the Mobile token as tablets
func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"),
		strings.Contains(lower, "kindle"), strings.Contains(lower, "silk/"):
		return true
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return true
	}
	return false
}

func botName(userAgent string) string {
	lower := strings.ToLower(userAgent)
	for _, bot := range botNames {
		if strings.Contains(lower, bot.token) {
			return bot.name
		}
	}
	return "Bot"
}

func windowsRelease(ntVersion string) string {
	releases := map[string]string{
		"10.0": "Windows 10/11",
		"6.3":  "Windows 8.1",
		"6.2":  "Windows 8",
		"6.1":  "Windows 7",
		"6.0":  "Windows Vista",
		"5.1":  "Windows XP",
	}
	if friendly, ok := releases[ntVersion]; ok {
		return friendly
	}
	return "Windows " + ntVersion
}
