// Package detection classifies URLs and email bodies for phishing
// likelihood. The scorer is a deterministic rule engine: additive weights
// and fixed thresholds rather than a trained model, so every verdict is
// reproducible and auditable after the fact.
package detection

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

const (
	// ModelHeuristic tags verdicts produced by the rule engine.
	ModelHeuristic = "heuristic"
	// ModelML tags verdicts produced by the external classifier.
	ModelML = "ml"

	urlPhishingThreshold   = 50
	emailPhishingThreshold = 40
	maxScore               = 100
	longURLLength          = 75
)

// blacklistedDomains is a static list of known phishing hosts.
var blacklistedDomains = []string{
	"phishing-site.com",
	"fake-bank.net",
	"secure-verify.xyz",
	"paypal-confirm.co",
	"amazon-verify.ru",
}

// suspiciousPhrases commonly appear in phishing emails. Each phrase class
// scores once regardless of how often it occurs.
var suspiciousPhrases = []string{
	"verify your account",
	"confirm your password",
	"update your payment",
	"urgent action required",
	"click here immediately",
	"validate your identity",
	"unauthorized access",
	"suspicious activity",
	"limited time offer",
}

var urgencyWords = []string{"urgent", "immediate", "asap", "now", "immediately"}

var (
	schemeRe = regexp.MustCompile(`(?i)^https?://`)
	httpsRe  = regexp.MustCompile(`(?i)^https://`)
	ipv4Re   = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
)

// ScoreURL classifies a URL. The function is pure: identical input always
// yields an identical verdict (up to the timestamp).
func ScoreURL(rawURL string) domain.ScanVerdict {
	var reasons []string
	score := 0

	trimmed := strings.TrimSpace(rawURL)
	forParsing := trimmed
	if !schemeRe.MatchString(trimmed) {
		forParsing = "http://" + trimmed
	}

	if !httpsRe.MatchString(trimmed) {
		reasons = append(reasons, "URL does not use HTTPS encryption")
		score += 20
	}

	if len(trimmed) > longURLLength {
		reasons = append(reasons, "Suspicious URL length (very long)")
		score += 15
	}

	if host, ok := parseHostname(forParsing); ok {
		for _, bl := range blacklistedDomains {
			if strings.Contains(host, bl) {
				reasons = append(reasons, "Domain found in phishing blacklist")
				score += 40
				break
			}
		}

		// An IPv4 literal would also trip the label-count rule below;
		// the two are mutually exclusive so an IP host scores once.
		if ipv4Re.MatchString(host) {
			reasons = append(reasons, "URL uses IP address instead of domain name")
			score += 35
		} else if len(strings.Split(host, ".")) > 3 {
			reasons = append(reasons, "Suspicious subdomain structure detected")
			score += 10
		}
	} else {
		reasons = append(reasons, "Invalid URL format")
		score += 50
	}

	return verdict(score, urlPhishingThreshold, reasons, "URL appears legitimate")
}

// ScoreEmail classifies an email body with a case-insensitive substring
// scan against the fixed rule set.
func ScoreEmail(body string) domain.ScanVerdict {
	var reasons []string
	score := 0

	lower := strings.ToLower(body)

	// Text matched by a specific phrase is scrubbed before the generic
	// rules run, so one fragment never scores under two rules.
	scrubbed := lower
	for _, phrase := range suspiciousPhrases {
		if strings.Contains(lower, phrase) {
			reasons = append(reasons, `Contains suspicious phrase: "`+phrase+`"`)
			score += 15
			scrubbed = strings.ReplaceAll(scrubbed, phrase, "")
		}
	}

	if containsAny(scrubbed, urgencyWords) {
		reasons = append(reasons, "Contains urgency language often used in phishing")
		score += 10
	}

	if strings.Contains(scrubbed, "click") || strings.Contains(scrubbed, "link") {
		reasons = append(reasons, "Email requests user to click a link")
		score += 5
	}

	if strings.Contains(scrubbed, "update") || strings.Contains(scrubbed, "confirm") || strings.Contains(scrubbed, "verify") {
		reasons = append(reasons, "Email requests to update or verify personal information")
		score += 10
	}

	if strings.Contains(scrubbed, "payment") || strings.Contains(scrubbed, "billing") || strings.Contains(scrubbed, "account suspended") {
		reasons = append(reasons, "Contains financial or account urgency language")
		score += 15
	}

	if strings.Contains(scrubbed, "dear user") || strings.Contains(scrubbed, "dear customer") || strings.Contains(scrubbed, "dear valued user") {
		reasons = append(reasons, "Generic greeting (not personalized)")
		score += 10
	}

	return verdict(score, emailPhishingThreshold, reasons, "Email appears legitimate")
}

// parseHostname extracts the hostname, treating a parse failure or an
// empty host as an invalid URL.
func parseHostname(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func verdict(score, threshold int, reasons []string, cleanReason string) domain.ScanVerdict {
	if score > maxScore {
		score = maxScore
	}
	if len(reasons) == 0 {
		reasons = []string{cleanReason}
	}
	return domain.ScanVerdict{
		IsPhishing: score >= threshold,
		Score:      score,
		Reasons:    reasons,
		Timestamp:  time.Now().UTC(),
		Model:      ModelHeuristic,
	}
}
