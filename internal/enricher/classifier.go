/**
 * Traffic Classification.
 *
 * Categorizes network flows into high-level traffic classes
 * (streaming, social media, gaming, etc.) for analysis and reporting.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import (
	"strings"

	"github.com/kleaSCM/sentinel/internal/models"
)

// TrafficClassifier categorizes flows into traffic types. This is
// supplemental texture on top of the normative Flow.Application tag:
// it additionally consults JA3 and destination-domain patterns to
// recognize named consumer services the port/signature tiers can't.
type TrafficClassifier struct {
	ja3DB          *JA3Database
	domainPatterns map[string]string
}

// Creates a new classifier with the built-in JA3 and domain pattern tables.
func NewTrafficClassifier(ja3DB *JA3Database) *TrafficClassifier {
	tc := &TrafficClassifier{ja3DB: ja3DB}
	tc.loadDomainPatterns()
	return tc
}

// Determines the traffic category for a flow.
// Returns category name or "Unknown" if unable to classify.
func (tc *TrafficClassifier) Classify(flow *models.Flow) string {
	if app := tc.consumerApp(flow); app != "" {
		if class := tc.classifyByApp(app); class != "" {
			return class
		}
	}

	// Classify based on application tag
	if flow.Application != "" {
		if class := tc.classifyByApp(flow.Application); class != "" {
			return class
		}
	}

	// Classify based on domain
	if flow.DstDomain != "" {
		if class := tc.classifyByDomain(flow.DstDomain); class != "" {
			return class
		}
	}

	// Classify based on port and protocol
	if class := tc.classifyByPort(int(flow.Key.DstPort), flow.Protocol); class != "" {
		return class
	}

	return "Unknown"
}

// ConsumerApp names a recognized consumer service or client for a
// flow, via JA3 fingerprint first, then destination domain pattern
// matching. Returns "" when neither signal matches anything known.
func (tc *TrafficClassifier) ConsumerApp(flow *models.Flow) string {
	return tc.consumerApp(flow)
}

// consumerApp names a recognized consumer service for a flow, via JA3
// fingerprint first, then destination domain pattern matching.
func (tc *TrafficClassifier) consumerApp(flow *models.Flow) string {
	if flow.JA3 != "" && tc.ja3DB != nil {
		if app := tc.ja3DB.Lookup(flow.JA3); app != "" {
			return app
		}
	}
	if flow.TLSSNI != "" {
		if app := tc.identifyByDomainPattern(flow.TLSSNI); app != "" {
			return app
		}
	}
	if flow.DstDomain != "" {
		if app := tc.identifyByDomainPattern(flow.DstDomain); app != "" {
			return app
		}
	}
	return ""
}

func (tc *TrafficClassifier) identifyByDomainPattern(domain string) string {
	domain = strings.ToLower(domain)
	if app, ok := tc.domainPatterns[domain]; ok {
		return app
	}
	for pattern, app := range tc.domainPatterns {
		if strings.HasSuffix(domain, pattern) {
			return app
		}
	}
	return ""
}

// loadDomainPatterns populates domain->consumer-app mappings for 50+
// popular services, used only for TrafficClass texture.
func (tc *TrafficClassifier) loadDomainPatterns() {
	tc.domainPatterns = map[string]string{
		// Video Streaming
		"youtube.com":     "YouTube",
		"googlevideo.com": "YouTube",
		"ytimg.com":       "YouTube",
		"netflix.com":     "Netflix",
		"nflxvideo.net":   "Netflix",
		"nflximg.net":     "Netflix",
		"nflxext.com":     "Netflix",
		"twitch.tv":       "Twitch",
		"ttvnw.net":       "Twitch",
		"hulu.com":        "Hulu",
		"hulustream.com":  "Hulu",
		"disneyplus.com":  "Disney+",
		"primevideo.com":  "Amazon Prime Video",
		"amazonvideo.com": "Amazon Prime Video",

		// Music Streaming
		"spotify.com":    "Spotify",
		"scdn.co":        "Spotify",
		"mzstatic.com":   "Apple Music",
		"pandora.com":    "Pandora",
		"soundcloud.com": "SoundCloud",

		// Social Media
		"facebook.com":     "Facebook",
		"fbcdn.net":        "Facebook",
		"instagram.com":    "Instagram",
		"cdninstagram.com": "Instagram",
		"twitter.com":      "Twitter",
		"twimg.com":        "Twitter",
		"tiktok.com":       "TikTok",
		"tiktokcdn.com":    "TikTok",
		"linkedin.com":     "LinkedIn",
		"licdn.com":        "LinkedIn",
		"snapchat.com":     "Snapchat",
		"sc-cdn.net":       "Snapchat",
		"reddit.com":       "Reddit",
		"redd.it":          "Reddit",
		"redditstatic.com": "Reddit",

		// Messaging
		"whatsapp.com":   "WhatsApp",
		"whatsapp.net":   "WhatsApp",
		"telegram.org":   "Telegram",
		"t.me":           "Telegram",
		"discord.com":    "Discord",
		"discordapp.com": "Discord",
		"slack.com":      "Slack",
		"slack-edge.com": "Slack",

		// Cloud Storage
		"dropbox.com":       "Dropbox",
		"dropboxapi.com":    "Dropbox",
		"drive.google.com":  "Google Drive",
		"docs.google.com":   "Google Docs",
		"onedrive.live.com": "OneDrive",
		"1drv.com":          "OneDrive",
		"icloud.com":        "iCloud",

		// Email
		"gmail.com":        "Gmail",
		"googlemail.com":   "Gmail",
		"outlook.com":      "Outlook",
		"outlook.live.com": "Outlook",
		"yahoo.com":        "Yahoo Mail",
		"ymail.com":        "Yahoo Mail",

		// Gaming
		"steampowered.com":    "Steam",
		"steamcommunity.com":  "Steam",
		"epicgames.com":       "Epic Games",
		"riotgames.com":       "Riot Games",
		"leagueoflegends.com": "League of Legends",
		"valorant.com":        "Valorant",
		"blizzard.com":        "Blizzard",
		"battle.net":          "Battle.net",
		"minecraft.net":       "Minecraft",
		"mojang.com":          "Minecraft",

		// CDN / Infrastructure
		"cloudflare.com": "Cloudflare",
		"akamai.net":     "Akamai CDN",
		"fastly.net":     "Fastly CDN",
		"amazonaws.com":  "AWS",
		"cloudfront.net": "AWS CloudFront",
	}
}

// Application name provides the most accurate classification signal.
func (tc *TrafficClassifier) classifyByApp(app string) string {
	app = strings.ToLower(app)

	// Video Streaming
	streamingApps := []string{"youtube", "netflix", "twitch", "hulu", "disney", "prime video", "vimeo"}
	for _, s := range streamingApps {
		if strings.Contains(app, s) {
			return "Streaming"
		}
	}

	// Music Streaming
	musicApps := []string{"spotify", "apple music", "pandora", "soundcloud", "tidal"}
	for _, m := range musicApps {
		if strings.Contains(app, m) {
			return "Music"
		}
	}

	// Social Media
	socialApps := []string{"facebook", "instagram", "twitter", "tiktok", "linkedin", "snapchat", "reddit", "pinterest"}
	for _, s := range socialApps {
		if strings.Contains(app, s) {
			return "Social Media"
		}
	}

	// Messaging
	messagingApps := []string{"whatsapp", "telegram", "discord", "slack", "signal", "messenger"}
	for _, m := range messagingApps {
		if strings.Contains(app, m) {
			return "Messaging"
		}
	}

	// Gaming
	gamingApps := []string{"steam", "epic games", "riot", "league", "valorant", "blizzard", "battle.net", "minecraft", "xbox", "playstation"}
	for _, g := range gamingApps {
		if strings.Contains(app, g) {
			return "Gaming"
		}
	}

	// Cloud Storage
	cloudApps := []string{"dropbox", "google drive", "onedrive", "icloud", "box"}
	for _, c := range cloudApps {
		if strings.Contains(app, c) {
			return "Cloud Storage"
		}
	}

	// Email
	emailApps := []string{"gmail", "outlook", "yahoo mail", "smtp", "imap", "pop3"}
	for _, e := range emailApps {
		if strings.Contains(app, e) {
			return "Email"
		}
	}

	// Remote Access
	remoteApps := []string{"rdp", "vnc", "ssh", "telnet", "teamviewer", "anydesk"}
	for _, r := range remoteApps {
		if strings.Contains(app, r) {
			return "Remote Access"
		}
	}

	// VoIP
	voipApps := []string{"sip", "zoom", "skype", "teams", "webex"}
	for _, v := range voipApps {
		if strings.Contains(app, v) {
			return "VoIP"
		}
	}

	// Web Browsing (generic)
	if strings.Contains(app, "http") || strings.Contains(app, "chrome") || strings.Contains(app, "firefox") || strings.Contains(app, "safari") {
		return "Web Browsing"
	}

	return ""
}

// Domain patterns help classify when application name is unavailable.
func (tc *TrafficClassifier) classifyByDomain(domain string) string {
	domain = strings.ToLower(domain)

	// CDN and infrastructure (usually indicates web content)
	cdnDomains := []string{"cloudflare", "akamai", "fastly", "cloudfront", "cdn"}
	for _, cdn := range cdnDomains {
		if strings.Contains(domain, cdn) {
			return "Web Browsing"
		}
	}

	return ""
}

// Port-based classification provides fallback when other signals are missing.
func (tc *TrafficClassifier) classifyByPort(port int, protocol string) string {
	switch port {
	case 53:
		return "DNS"
	case 80, 443, 8080, 8443:
		return "Web Browsing"
	case 25, 587, 465, 143, 993, 110, 995:
		return "Email"
	case 21, 22, 989, 990:
		return "File Transfer"
	case 3389, 5900, 23:
		return "Remote Access"
	case 5060, 5061:
		return "VoIP"
	case 3000, 6881, 6882, 6883, 6884, 6885, 6886, 6887, 6888, 6889:
		return "File Sharing"
	}

	// Gaming ports (common ranges)
	if port >= 27000 && port <= 27050 {
		return "Gaming"
	}
	if port >= 3074 && port <= 3076 {
		return "Gaming"
	}

	return ""
}
